package ledger

import (
	"SparkLedger/internal/earn"
	"SparkLedger/internal/events"
	"SparkLedger/internal/tax"
	"fmt"
	"time"
)

// Rules are the static tables and clock a ledger evaluates against.
// They are not part of the serialized state.
type Rules struct {
	Earn     earn.Table
	Tax      tax.Table
	Calendar *events.Calendar // nil disables event multipliers
	Clock    func() time.Time // nil means time.Now
}

// DefaultRules returns the stock earn table, tax schedule, and event calendar.
func DefaultRules() Rules {
	return Rules{
		Earn:     earn.DefaultTable(),
		Tax:      tax.DefaultTable(),
		Calendar: events.DefaultCalendar(),
	}
}

// Ledger is the root aggregate: balances, the append-only transaction log,
// listings, auctions, and structures.
//
// A Ledger is a single-owner handle. It is not safe for concurrent use; the
// owner must serialize every call. Every mutating call either commits fully
// or returns an error and leaves the ledger unchanged.
//
// Balances must only be changed through Post and the operations built on it.
type Ledger struct {
	Balances     map[string]int64 `json:"balances"`
	Opening      map[string]int64 `json:"opening_balances,omitempty"`
	Transactions []Transaction    `json:"transactions"`
	Listings     []Listing        `json:"listings"`
	Auctions     []Auction        `json:"auctions"`
	Structures   []Structure      `json:"structures,omitempty"`

	LastUBIDay         int64 `json:"last_ubi_day"`         // 0 = never
	LastMaintenanceDay int64 `json:"last_maintenance_day"` // 0 = never

	NextIDs Counters `json:"next_ids"`

	rules Rules
}

// New creates an empty ledger evaluating against rules.
func New(rules Rules) *Ledger {
	l := &Ledger{}
	l.Attach(rules)
	return l
}

// Attach sets the rules on a ledger decoded from a snapshot and fills any
// nil collections.
func (l *Ledger) Attach(rules Rules) {
	l.rules = rules
	if l.Balances == nil {
		l.Balances = make(map[string]int64)
	}
	if l.Opening == nil {
		l.Opening = make(map[string]int64)
	}
	if l.Transactions == nil {
		l.Transactions = make([]Transaction, 0)
	}
	if l.Listings == nil {
		l.Listings = make([]Listing, 0)
	}
	if l.Auctions == nil {
		l.Auctions = make([]Auction, 0)
	}
}

// Rules returns the attached rules.
func (l *Ledger) Rules() Rules {
	return l.rules
}

// Seed sets an opening balance for an account with no activity yet.
// Opening balances are the replay origin for CheckIntegrity.
func (l *Ledger) Seed(account string, amount int64) error {
	if account == SystemAccount {
		return fmt.Errorf("%w: SYSTEM holds no balance", ErrReservedAccount)
	}
	if amount < 0 && account == TreasuryAccount {
		return fmt.Errorf("%w: treasury cannot open negative", ErrInvalidAmount)
	}
	for i := range l.Transactions {
		if l.Transactions[i].Involves(account) {
			return fmt.Errorf("account %s already has transactions", account)
		}
	}
	l.Opening[account] = amount
	l.Balances[account] = amount
	return nil
}

// Now returns the ledger clock's current time.
func (l *Ledger) Now() time.Time {
	if l.rules.Clock != nil {
		return l.rules.Clock()
	}
	return time.Now()
}

// NowMillis returns the current time as epoch milliseconds.
func (l *Ledger) NowMillis() int64 {
	return l.Now().UnixMilli()
}

// GameDay returns the UTC day number (days since the Unix epoch) for t.
func GameDay(t time.Time) int64 {
	return t.UTC().Unix() / 86400
}

// Today returns the game day for the ledger clock.
func (l *Ledger) Today() int64 {
	return GameDay(l.Now())
}

// NextListingID allocates a listing identifier.
func (l *Ledger) NextListingID() string {
	l.NextIDs.Listing++
	return fmt.Sprintf("lst_%d", l.NextIDs.Listing)
}

// NextAuctionID allocates an auction identifier.
func (l *Ledger) NextAuctionID() string {
	l.NextIDs.Auction++
	return fmt.Sprintf("auc_%d", l.NextIDs.Auction)
}

// NextStructureID allocates a structure identifier.
func (l *Ledger) NextStructureID() string {
	l.NextIDs.Structure++
	return fmt.Sprintf("str_%d", l.NextIDs.Structure)
}

func (l *Ledger) nextTxID() string {
	l.NextIDs.Transaction++
	return fmt.Sprintf("tx_%d", l.NextIDs.Transaction)
}

// FindListing returns the index of a listing, or -1.
func (l *Ledger) FindListing(id string) int {
	for i := range l.Listings {
		if l.Listings[i].ID == id {
			return i
		}
	}
	return -1
}

// FindAuction returns the index of an auction, or -1.
func (l *Ledger) FindAuction(id string) int {
	for i := range l.Auctions {
		if l.Auctions[i].ID == id {
			return i
		}
	}
	return -1
}

// TransactionsSince returns the transactions appended after the first n.
func (l *Ledger) TransactionsSince(n int) []Transaction {
	if n >= len(l.Transactions) {
		return nil
	}
	if n < 0 {
		n = 0
	}
	return l.Transactions[n:]
}

// Clone returns a deep copy that shares no mutable state with l.
// Transaction payloads are immutable and are shared.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{
		Balances:           make(map[string]int64, len(l.Balances)),
		Opening:            make(map[string]int64, len(l.Opening)),
		Transactions:       append(make([]Transaction, 0, len(l.Transactions)), l.Transactions...),
		Listings:           append(make([]Listing, 0, len(l.Listings)), l.Listings...),
		Auctions:           make([]Auction, len(l.Auctions)),
		Structures:         append([]Structure(nil), l.Structures...),
		LastUBIDay:         l.LastUBIDay,
		LastMaintenanceDay: l.LastMaintenanceDay,
		NextIDs:            l.NextIDs,
		rules:              l.rules,
	}
	for k, v := range l.Balances {
		c.Balances[k] = v
	}
	for k, v := range l.Opening {
		c.Opening[k] = v
	}
	for i, a := range l.Auctions {
		a.Bids = append(make([]Bid, 0, len(a.Bids)), a.Bids...)
		c.Auctions[i] = a
	}
	return c
}
