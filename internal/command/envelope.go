package command

import (
	"time"
)

// Kind discriminates command payloads. The string form is also the NATS
// subject token and the persisted kind column.
type Kind string

const (
	KindEarn           Kind = "earn"
	KindSpend          Kind = "spend"
	KindTransfer       Kind = "transfer"
	KindListingCreate  Kind = "listing.create"
	KindListingBuy     Kind = "listing.buy"
	KindListingCancel  Kind = "listing.cancel"
	KindAuctionCreate  Kind = "auction.create"
	KindAuctionBid     Kind = "auction.bid"
	KindStructureBuild Kind = "structure.build"
	KindTick           Kind = "tick"
)

// AllKinds lists every command kind in a stable order.
var AllKinds = []Kind{
	KindEarn, KindSpend, KindTransfer,
	KindListingCreate, KindListingBuy, KindListingCancel,
	KindAuctionCreate, KindAuctionBid,
	KindStructureBuild, KindTick,
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Envelope wraps every applied command in the log
type Envelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64

	// Caller-supplied idempotency key
	CommandID string

	Kind Kind

	// Versioned input timestamp (NOT wall-clock at apply time)
	Timestamp time.Time

	// JSON-encoded command
	Payload []byte

	// SHA-256 of state AFTER applying this command
	StateHash [32]byte

	// Previous command's state hash (chain integrity)
	PrevHash [32]byte
}

// Command is the interface all command payloads implement
type Command interface {
	// CommandID returns the stable dedup key
	CommandID() string

	Kind() Kind

	// At returns the command's versioned timestamp in epoch milliseconds
	At() int64
}
