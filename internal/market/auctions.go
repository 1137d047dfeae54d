package market

import (
	"SparkLedger/internal/ledger"
	"fmt"
)

// BidResult describes an accepted bid.
type BidResult struct {
	Auction  ledger.Auction `json:"auction"`
	Extended bool           `json:"extended"` // Anti-snipe pushed EndTime out
}

// CreateAuction opens a timed auction. A non-positive duration uses the
// configured default.
func (m *Market) CreateAuction(l *ledger.Ledger, seller, item string, startingBid, durationMs int64) (ledger.Auction, error) {
	if err := ledger.ValidatePlayerID(seller); err != nil {
		return ledger.Auction{}, err
	}
	if item == "" {
		return ledger.Auction{}, fmt.Errorf("%w: empty item", ErrInvalidItem)
	}
	if startingBid < 1 {
		return ledger.Auction{}, fmt.Errorf("%w: starting bid must be at least 1, got %d", ledger.ErrInvalidAmount, startingBid)
	}
	if durationMs > MaxAuctionDurationMs {
		return ledger.Auction{}, fmt.Errorf("%w: duration %d ms exceeds %d", ledger.ErrInvalidAmount, durationMs, MaxAuctionDurationMs)
	}
	if durationMs <= 0 {
		durationMs = m.cfg.DefaultAuctionDuration.Milliseconds()
	}

	now := l.NowMillis()
	auction := ledger.Auction{
		ID:          l.NextAuctionID(),
		Seller:      seller,
		Item:        item,
		StartingBid: startingBid,
		CreatedAt:   now,
		EndTime:     now + durationMs,
		Bids:        make([]ledger.Bid, 0),
		Status:      ledger.AuctionStatusActive,
	}
	l.Auctions = append(l.Auctions, auction)
	return auction, nil
}

// PlaceBid records a bid. Funds are checked, not reserved; the winner's
// balance is checked again at finalization.
func (m *Market) PlaceBid(l *ledger.Ledger, id, bidder string, amount int64) (BidResult, error) {
	idx := l.FindAuction(id)
	if idx < 0 {
		return BidResult{}, fmt.Errorf("auction %s: %w", id, ErrNotFound)
	}
	a := &l.Auctions[idx]
	now := l.NowMillis()

	if a.Status != ledger.AuctionStatusActive {
		return BidResult{}, fmt.Errorf("auction %s is %s: %w", id, a.Status, ErrInactive)
	}
	if now >= a.EndTime {
		return BidResult{}, fmt.Errorf("auction %s: %w", id, ErrAuctionEnded)
	}
	if bidder == a.Seller {
		return BidResult{}, fmt.Errorf("auction %s: %w", id, ErrSelfTrade)
	}
	if err := ledger.ValidatePlayerID(bidder); err != nil {
		return BidResult{}, err
	}
	if amount <= a.CurrentBid {
		return BidResult{}, fmt.Errorf("%w: %d <= current %d", ErrBidTooLow, amount, a.CurrentBid)
	}
	if amount < a.StartingBid {
		return BidResult{}, fmt.Errorf("%w: %d < starting %d", ErrBidTooLow, amount, a.StartingBid)
	}
	if err := l.ValidateSufficient(bidder, amount); err != nil {
		return BidResult{}, err
	}

	a.CurrentBid = amount
	a.CurrentBidder = bidder
	a.Bids = append(a.Bids, ledger.Bid{Bidder: bidder, Amount: amount, Timestamp: now})

	// Anti-snipe
	extended := false
	window := m.cfg.AntiSnipeWindow.Milliseconds()
	if a.EndTime-now < window {
		a.EndTime = now + window
		extended = true
	}

	return BidResult{Auction: cloneAuction(*a), Extended: extended}, nil
}

// FinalizeAuctions settles every active auction whose end time has passed
// and returns them in their terminal state.
func (m *Market) FinalizeAuctions(l *ledger.Ledger) []ledger.Auction {
	now := l.NowMillis()
	finalized := make([]ledger.Auction, 0)

	for i := range l.Auctions {
		a := &l.Auctions[i]
		if a.Status != ledger.AuctionStatusActive || now < a.EndTime {
			continue
		}

		next := m.settle(l, a)
		if !a.Status.CanTransitionTo(next) {
			panic(fmt.Sprintf("FATAL: invalid auction transition %s -> %s", a.Status, next))
		}
		a.Status = next
		a.SettledAt = now
		finalized = append(finalized, cloneAuction(*a))
	}
	return finalized
}

// settle moves the winning bid if the bidder can still cover it and returns
// the terminal status.
func (m *Market) settle(l *ledger.Ledger, a *ledger.Auction) ledger.AuctionStatus {
	if a.CurrentBidder == "" {
		return ledger.AuctionStatusExpired
	}
	if l.ValidateSufficient(a.CurrentBidder, a.CurrentBid) != nil {
		return ledger.AuctionStatusFailed
	}

	tx, err := l.Post(ledger.Posting{
		From:   a.CurrentBidder,
		To:     a.Seller,
		Amount: a.CurrentBid,
		Payload: &ledger.AuctionDetails{
			AuctionID: a.ID,
			Item:      a.Item,
			Bids:      len(a.Bids),
		},
	})
	if err != nil {
		return ledger.AuctionStatusFailed
	}
	a.SettlementTx = tx.ID
	return ledger.AuctionStatusSold
}

// ActiveAuctions returns copies of the open auctions in creation order.
func (m *Market) ActiveAuctions(l *ledger.Ledger) []ledger.Auction {
	out := make([]ledger.Auction, 0)
	for _, a := range l.Auctions {
		if a.Status == ledger.AuctionStatusActive {
			out = append(out, cloneAuction(a))
		}
	}
	return out
}

func cloneAuction(a ledger.Auction) ledger.Auction {
	a.Bids = append(make([]ledger.Bid, 0, len(a.Bids)), a.Bids...)
	return a
}
