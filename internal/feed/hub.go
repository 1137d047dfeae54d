package feed

import (
	"SparkLedger/internal/core"
	"SparkLedger/internal/ledger"
	"SparkLedger/internal/observability"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	clientQueue  = 64
	writeTimeout = 5 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = pongTimeout * 9 / 10
)

// Message is one committed command as seen by feed clients.
type Message struct {
	Sequence     int64                `json:"sequence"`
	CommandID    string               `json:"command_id"`
	Kind         string               `json:"kind"`
	StateHash    string               `json:"state_hash"`
	Transactions []ledger.Transaction `json:"transactions"`
	Auctions     []ledger.Auction     `json:"auctions,omitempty"`
	Listings     []ledger.Listing     `json:"listings,omitempty"`
}

// NewMessage converts an engine output.
func NewMessage(out core.Output) Message {
	env := out.Envelope
	return Message{
		Sequence:     env.Sequence,
		CommandID:    env.CommandID,
		Kind:         string(env.Kind),
		StateHash:    hex.EncodeToString(env.StateHash[:]),
		Transactions: out.Transactions,
		Auctions:     out.Auctions,
		Listings:     out.Listings,
	}
}

// Involves reports whether a player filter matches the message. An empty
// filter matches everything.
func (m Message) Involves(player string) bool {
	if player == "" {
		return true
	}
	for i := range m.Transactions {
		if m.Transactions[i].Involves(player) {
			return true
		}
	}
	for _, a := range m.Auctions {
		if a.Seller == player || a.CurrentBidder == player {
			return true
		}
	}
	for _, l := range m.Listings {
		if l.Seller == player || l.Buyer == player {
			return true
		}
	}
	return false
}

type client struct {
	id     string
	player string
	out    chan []byte
}

// Hub fans engine outputs out to websocket clients. A client whose queue is
// full misses that message; it never slows the engine.
type Hub struct {
	in       <-chan core.Output
	metrics  *observability.Metrics
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

func NewHub(in <-chan core.Output, metrics *observability.Metrics, logger zerolog.Logger) *Hub {
	return &Hub{
		in:      in,
		metrics: metrics,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Run broadcasts until ctx is cancelled or the input closes.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out, ok := <-h.in:
			if !ok {
				return nil
			}
			h.Broadcast(NewMessage(out))
		}
	}
}

// Broadcast queues msg for every interested client.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Int64("sequence", msg.Sequence).Msg("marshal feed message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !msg.Involves(c.player) {
			continue
		}
		select {
		case c.out <- data:
		default:
			if h.metrics != nil {
				h.metrics.FeedDrops.Inc()
			}
		}
	}
}

// Handler upgrades to a websocket. ?player=<id> restricts the stream to
// commands touching that player.
func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := &client{
			id:     uuid.NewString(),
			player: r.URL.Query().Get("player"),
			out:    make(chan []byte, clientQueue),
		}
		h.register(c)
		defer h.unregister(c)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine. Only it writes to conn.
		go func() {
			ping := time.NewTicker(pingInterval)
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ping.C:
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
						cancel()
						return
					}
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Clients send nothing; reading only detects close and handles pongs.
		_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.FeedClients.Set(float64(n))
	}
	h.logger.Debug().Str("session", c.id).Str("player", c.player).Msg("feed client connected")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.FeedClients.Set(float64(n))
	}
	h.logger.Debug().Str("session", c.id).Msg("feed client disconnected")
}
