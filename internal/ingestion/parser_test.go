package ingestion_test

import (
	"SparkLedger/internal/command"
	"SparkLedger/internal/core"
	"SparkLedger/internal/ingestion"
	"SparkLedger/internal/ledger"
	"SparkLedger/internal/market"
	"SparkLedger/internal/observability"
	"SparkLedger/internal/treasury"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func mustParser(t *testing.T) *ingestion.Parser {
	t.Helper()
	p, err := ingestion.NewParser()
	if err != nil {
		t.Fatalf("NewParser: %v", err)
	}
	return p
}

// ============================================================================
// Test: Schema Validation
// ============================================================================

func TestParse_Earn(t *testing.T) {
	p := mustParser(t)

	cmd, err := p.Parse(command.KindEarn, []byte(`{
		"command_id": "c-1",
		"timestamp": 1767441600000,
		"player": "player1",
		"activity": "craft",
		"complexity": 0.5
	}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	earn, ok := cmd.(*command.Earn)
	if !ok {
		t.Fatalf("expected *command.Earn, got %T", cmd)
	}
	if earn.Player != "player1" || earn.Activity != "craft" {
		t.Errorf("fields: got %+v", earn)
	}
	if earn.Complexity == nil || *earn.Complexity != 0.5 {
		t.Errorf("complexity: got %v, want 0.5", earn.Complexity)
	}
	if earn.CommandID() != "c-1" || earn.At() != 1767441600000 {
		t.Errorf("meta: got %s at %d", earn.CommandID(), earn.At())
	}
}

func TestParse_EveryIngestKind(t *testing.T) {
	p := mustParser(t)
	payloads := map[command.Kind]string{
		command.KindEarn:          `{"command_id":"a","timestamp":1,"player":"p","activity":"say"}`,
		command.KindSpend:         `{"command_id":"a","timestamp":1,"player":"p","amount":5}`,
		command.KindTransfer:      `{"command_id":"a","timestamp":1,"from":"p","to":"q","amount":5}`,
		command.KindListingCreate: `{"command_id":"a","timestamp":1,"seller":"p","item":"sword","price":10}`,
		command.KindListingBuy:    `{"command_id":"a","timestamp":1,"listing_id":"listing_1","buyer":"q"}`,
		command.KindListingCancel: `{"command_id":"a","timestamp":1,"listing_id":"listing_1","seller":"p"}`,
		command.KindAuctionCreate: `{"command_id":"a","timestamp":1,"seller":"p","item":"gem","starting_bid":3}`,
		command.KindAuctionBid:    `{"command_id":"a","timestamp":1,"auction_id":"auction_1","bidder":"q","amount":4}`,
	}
	for _, kind := range ingestion.IngestKinds {
		t.Run(string(kind), func(t *testing.T) {
			cmd, err := p.Parse(kind, []byte(payloads[kind]))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if cmd.Kind() != kind {
				t.Errorf("kind: got %s, want %s", cmd.Kind(), kind)
			}
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	p := mustParser(t)
	tests := []struct {
		name string
		kind command.Kind
		body string
	}{
		{"not json", command.KindSpend, `{"command_id":`},
		{"missing command id", command.KindSpend, `{"timestamp":1,"player":"p","amount":5}`},
		{"missing timestamp", command.KindSpend, `{"command_id":"a","player":"p","amount":5}`},
		{"zero amount", command.KindSpend, `{"command_id":"a","timestamp":1,"player":"p","amount":0}`},
		{"fractional amount", command.KindTransfer, `{"command_id":"a","timestamp":1,"from":"p","to":"q","amount":1.5}`},
		{"unknown field", command.KindEarn, `{"command_id":"a","timestamp":1,"player":"p","activity":"say","bonus":9}`},
		{"wrong type", command.KindAuctionBid, `{"command_id":"a","timestamp":1,"auction_id":7,"bidder":"q","amount":4}`},
		{"auction too long", command.KindAuctionCreate, `{"command_id":"a","timestamp":1,"seller":"p","item":"gem","starting_bid":3,"duration_ms":10000000000000}`},
		{"tick not ingestible", command.KindTick, `{"command_id":"a","timestamp":1}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Parse(tc.kind, []byte(tc.body))
			if !errors.Is(err, ingestion.ErrInvalidPayload) {
				t.Errorf("got %v, want ErrInvalidPayload", err)
			}
		})
	}
}

// ============================================================================
// Test: Subjects
// ============================================================================

func TestDefaultSubjects(t *testing.T) {
	subjects := ingestion.DefaultSubjects()
	if len(subjects) != len(ingestion.IngestKinds) {
		t.Fatalf("got %d subjects, want %d", len(subjects), len(ingestion.IngestKinds))
	}
	for _, s := range subjects {
		if s.StreamName != ingestion.CommandStream {
			t.Errorf("%s: stream %s", s.Kind, s.StreamName)
		}
		if want := "spark.commands." + string(s.Kind) + ".>"; s.Subject != want {
			t.Errorf("subject: got %s, want %s", s.Subject, want)
		}
		if strings.Contains(s.ConsumerName, ".") {
			t.Errorf("consumer name %q contains a dot", s.ConsumerName)
		}
	}
}

// ============================================================================
// Test: Ingestor Ack Policy
// ============================================================================

type settled struct{ acked, naked, termed int }

func rawCommand(kind command.Kind, body string, s *settled) ingestion.RawCommand {
	return ingestion.RawCommand{
		Subject:    "spark.commands." + string(kind) + ".test",
		Kind:       kind,
		Data:       []byte(body),
		ReceivedAt: time.Now(),
		Ack:        func() { s.acked++ },
		Nak:        func() { s.naked++ },
		Term:       func() { s.termed++ },
	}
}

func newIngestor(t *testing.T) (*ingestion.Ingestor, *core.Engine) {
	t.Helper()
	l := ledger.New(ledger.DefaultRules())
	if err := l.Seed("p", 20); err != nil {
		t.Fatalf("seed: %v", err)
	}
	m := market.New(market.DefaultConfig())
	e := core.NewEngine(l, m, treasury.New(treasury.DefaultConfig(), m), core.Options{})
	logger := observability.NewLoggerTo(io.Discard, "ingestion", 0)
	return ingestion.NewIngestor(e, mustParser(t), nil, nil, logger), e
}

func TestIngestor_AckPolicy(t *testing.T) {
	in, e := newIngestor(t)

	var s settled
	in.Handle(rawCommand(command.KindSpend, `{"command_id":"s1","timestamp":1767441600000,"player":"p","amount":5}`, &s))
	in.Handle(rawCommand(command.KindSpend, `{"command_id":"s1","timestamp":1767441600000,"player":"p","amount":5}`, &s))
	in.Handle(rawCommand(command.KindSpend, `{"command_id":"s2","timestamp":1767441601000,"player":"p","amount":500}`, &s))
	in.Handle(rawCommand(command.KindSpend, `{"command_id":"s3","amount":5}`, &s))

	if s.acked != 3 || s.termed != 1 || s.naked != 0 {
		t.Errorf("got acked=%d termed=%d naked=%d, want 3/1/0", s.acked, s.termed, s.naked)
	}
	if got := e.GetSequence(); got != 1 {
		t.Errorf("sequence: got %d, want 1", got)
	}
}

// ============================================================================
// Test: Outbound Messages
// ============================================================================

func TestOutboundMessages(t *testing.T) {
	persistCh := make(chan core.Output, 1)
	l := ledger.New(ledger.DefaultRules())
	if err := l.Seed("p", 100); err != nil {
		t.Fatalf("seed: %v", err)
	}
	m := market.New(market.DefaultConfig())
	e := core.NewEngine(l, m, treasury.New(treasury.DefaultConfig(), m), core.Options{PersistChan: persistCh})

	ts := time.Date(2026, time.January, 3, 12, 0, 0, 0, time.UTC).UnixMilli()
	if _, err := e.Submit(&command.Earn{Meta: command.Meta{ID: "e1", Timestamp: ts}, Player: "p", Activity: "daily_login"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	msgs := ingestion.OutboundMessages(<-persistCh)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if got := ingestion.Subject(msgs[0].Transaction); got != "spark.ledger.tx.earn" {
		t.Errorf("subject: got %s", got)
	}
	if got := ingestion.Subject(msgs[1].Transaction); got != "spark.ledger.tx.tax" {
		t.Errorf("subject: got %s", got)
	}
	for _, msg := range msgs {
		if msg.Sequence != 1 || msg.CommandID != "e1" || msg.CommandKind != "earn" || len(msg.StateHash) != 64 {
			t.Errorf("header: %+v", msg)
		}
	}
}
