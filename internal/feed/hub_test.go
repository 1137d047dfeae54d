package feed_test

import (
	"SparkLedger/internal/feed"
	"SparkLedger/internal/ledger"
	"SparkLedger/internal/observability"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newHub() *feed.Hub {
	return feed.NewHub(nil, nil, observability.NewLoggerTo(io.Discard, "feed", 0))
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitForClients(t *testing.T, h *feed.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("got %d clients, want %d", h.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func transferMessage(seq int64, from, to string) feed.Message {
	return feed.Message{
		Sequence: seq,
		Kind:     "transfer",
		Transactions: []ledger.Transaction{
			{ID: "tx", From: from, To: to, Amount: 1, Type: ledger.TxTypeTransfer},
		},
	}
}

// ============================================================================
// Test: Filtering
// ============================================================================

func TestMessage_Involves(t *testing.T) {
	msg := transferMessage(1, "alice", "bob")
	if !msg.Involves("") || !msg.Involves("alice") || !msg.Involves("bob") {
		t.Error("expected parties and empty filter to match")
	}
	if msg.Involves("carol") {
		t.Error("carol is not a party")
	}

	bid := feed.Message{Auctions: []ledger.Auction{{Seller: "dave", CurrentBidder: "erin"}}}
	if !bid.Involves("erin") {
		t.Error("current bidder should match")
	}
}

// ============================================================================
// Test: Websocket Delivery
// ============================================================================

func TestHub_DeliversFilteredMessages(t *testing.T) {
	h := newHub()
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	all := dial(t, srv, "")
	defer all.Close()
	carol := dial(t, srv, "?player=carol")
	defer carol.Close()
	waitForClients(t, h, 2)

	h.Broadcast(transferMessage(1, "alice", "bob"))
	h.Broadcast(transferMessage(2, "carol", "bob"))

	var got feed.Message
	_ = all.SetReadDeadline(time.Now().Add(2 * time.Second))
	for _, want := range []int64{1, 2} {
		_, data, err := all.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Sequence != want {
			t.Errorf("unfiltered client: got seq %d, want %d", got.Sequence, want)
		}
	}

	_ = carol.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := carol.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Sequence != 2 {
		t.Errorf("filtered client: got seq %d, want 2", got.Sequence)
	}
}

func TestHub_UnregistersOnClose(t *testing.T) {
	h := newHub()
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	conn := dial(t, srv, "")
	waitForClients(t, h, 1)
	conn.Close()
	waitForClients(t, h, 0)
}
