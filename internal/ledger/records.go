package ledger

// Listing is a fixed-price market offer. Only Active ever changes, and only
// from true to false.
type Listing struct {
	ID        string `json:"id"`
	Seller    string `json:"seller"`
	Item      string `json:"item"`
	Price     int64  `json:"price"`
	Fee       int64  `json:"fee"`
	Timestamp int64  `json:"timestamp"` // Epoch milliseconds
	Active    bool   `json:"active"`

	// Set when Active flips to false
	Buyer     string `json:"buyer,omitempty"`
	ClosedAt  int64  `json:"closed_at,omitempty"`
	CloseKind string `json:"close_kind,omitempty"` // sold | cancelled | expired
}

// AuctionStatus tracks auction lifecycle
type AuctionStatus string

const (
	AuctionStatusActive  AuctionStatus = "active"
	AuctionStatusSold    AuctionStatus = "sold"
	AuctionStatusFailed  AuctionStatus = "failed"
	AuctionStatusExpired AuctionStatus = "expired"
)

// IsTerminal reports whether no further transitions are possible.
func (s AuctionStatus) IsTerminal() bool {
	return s == AuctionStatusSold || s == AuctionStatusFailed || s == AuctionStatusExpired
}

// CanTransitionTo validates state transitions
func (s AuctionStatus) CanTransitionTo(next AuctionStatus) bool {
	validTransitions := map[AuctionStatus][]AuctionStatus{
		AuctionStatusActive: {
			AuctionStatusSold,
			AuctionStatusFailed,
			AuctionStatusExpired,
		},
	}

	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Bid is one accepted bid. Bids are append-only.
type Bid struct {
	Bidder    string `json:"bidder"`
	Amount    int64  `json:"amount"`
	Timestamp int64  `json:"timestamp"`
}

// Auction is a timed English auction.
type Auction struct {
	ID            string        `json:"id"`
	Seller        string        `json:"seller"`
	Item          string        `json:"item"`
	StartingBid   int64         `json:"starting_bid"`
	CreatedAt     int64         `json:"created_at"`
	EndTime       int64         `json:"end_time"` // Epoch milliseconds, may be extended by anti-snipe
	CurrentBid    int64         `json:"current_bid"`
	CurrentBidder string        `json:"current_bidder,omitempty"`
	Bids          []Bid         `json:"bids"`
	Status        AuctionStatus `json:"status"`
	SettledAt     int64         `json:"settled_at,omitempty"`
	SettlementTx  string        `json:"settlement_tx,omitempty"`
}

// Structure is a player-built object charged daily maintenance.
type Structure struct {
	ID             string `json:"id"`
	Owner          string `json:"owner"`
	Kind           string `json:"kind,omitempty"`
	MissedPayments int    `json:"missed_payments"`
	BuiltAt        int64  `json:"built_at"`
}

// Counters hold the next numeric suffix for each generated ID kind.
type Counters struct {
	Transaction int64 `json:"transaction"`
	Listing     int64 `json:"listing"`
	Auction     int64 `json:"auction"`
	Structure   int64 `json:"structure"`
}
