package market

import (
	"SparkLedger/internal/ledger"
	fpmath "SparkLedger/internal/math"
	"fmt"
	"time"
)

// ListingFee returns the fee a seller pays up front to list at price.
func (m *Market) ListingFee(price int64) int64 {
	fee := fpmath.MulBps(price, m.cfg.ListingFeeBps, fpmath.RoundDown)
	return fpmath.Max(fee, m.cfg.MinListingFee)
}

// CreateListing charges the listing fee and appends an active listing.
// If the seller cannot cover the fee no listing is created.
func (m *Market) CreateListing(l *ledger.Ledger, seller, item string, price int64) (ledger.Listing, error) {
	if err := ledger.ValidatePlayerID(seller); err != nil {
		return ledger.Listing{}, err
	}
	if item == "" {
		return ledger.Listing{}, fmt.Errorf("%w: empty item", ErrInvalidItem)
	}
	if price < 1 {
		return ledger.Listing{}, fmt.Errorf("%w: price must be at least 1, got %d", ledger.ErrInvalidAmount, price)
	}

	fee := m.ListingFee(price)
	if err := l.ValidateSufficient(seller, fee); err != nil {
		return ledger.Listing{}, fmt.Errorf("listing fee: %w", err)
	}

	id := l.NextListingID()
	if fee > 0 {
		if _, err := l.SpendFor(seller, fee, &ledger.SpendDetails{
			Reason:    ledger.SpendReasonListingFee,
			Item:      item,
			ListingID: id,
		}); err != nil {
			panic(fmt.Sprintf("FATAL: listing fee rejected after funds check: %v", err))
		}
	}

	listing := ledger.Listing{
		ID:        id,
		Seller:    seller,
		Item:      item,
		Price:     price,
		Fee:       fee,
		Timestamp: l.NowMillis(),
		Active:    true,
	}
	l.Listings = append(l.Listings, listing)
	return listing, nil
}

// BuyListing moves price from buyer to seller and closes the listing.
// Succeeds at most once per listing.
func (m *Market) BuyListing(l *ledger.Ledger, id, buyer string) (ledger.Transaction, error) {
	idx := l.FindListing(id)
	if idx < 0 {
		return ledger.Transaction{}, fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}
	listing := &l.Listings[idx]

	if !listing.Active {
		return ledger.Transaction{}, fmt.Errorf("listing %s: %w", id, ErrInactive)
	}
	if buyer == listing.Seller {
		return ledger.Transaction{}, fmt.Errorf("listing %s: %w", id, ErrSelfTrade)
	}
	if err := ledger.ValidatePlayerID(buyer); err != nil {
		return ledger.Transaction{}, err
	}

	tx, err := l.Post(ledger.Posting{
		From:   buyer,
		To:     listing.Seller,
		Amount: listing.Price,
		Payload: &ledger.PurchaseDetails{
			ListingID: listing.ID,
			Item:      listing.Item,
		},
	})
	if err != nil {
		return ledger.Transaction{}, err
	}

	m.close(listing, CloseSold, buyer, tx.Timestamp)
	return tx, nil
}

// CancelListing closes an active listing. Only the seller may cancel.
// The listing fee is not refunded.
func (m *Market) CancelListing(l *ledger.Ledger, id, caller string) error {
	idx := l.FindListing(id)
	if idx < 0 {
		return fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}
	listing := &l.Listings[idx]

	if caller != listing.Seller {
		return fmt.Errorf("listing %s: %w", id, ErrNotSeller)
	}
	if !listing.Active {
		return fmt.Errorf("listing %s: %w", id, ErrInactive)
	}

	m.close(listing, CloseCancelled, "", l.NowMillis())
	return nil
}

// ExpireListings closes active listings older than maxAge and returns their
// IDs. A non-positive maxAge uses the configured ListingMaxAge.
func (m *Market) ExpireListings(l *ledger.Ledger, maxAge time.Duration) []string {
	if maxAge <= 0 {
		maxAge = m.cfg.ListingMaxAge
	}
	if maxAge <= 0 {
		return nil
	}

	now := l.NowMillis()
	cutoff := now - maxAge.Milliseconds()

	var expired []string
	for i := range l.Listings {
		listing := &l.Listings[i]
		if listing.Active && listing.Timestamp < cutoff {
			m.close(listing, CloseExpired, "", now)
			expired = append(expired, listing.ID)
		}
	}
	return expired
}

// ActiveListings returns copies of the open listings in creation order.
func (m *Market) ActiveListings(l *ledger.Ledger) []ledger.Listing {
	out := make([]ledger.Listing, 0)
	for _, listing := range l.Listings {
		if listing.Active {
			out = append(out, listing)
		}
	}
	return out
}

func (m *Market) close(listing *ledger.Listing, kind, buyer string, at int64) {
	listing.Active = false
	listing.CloseKind = kind
	listing.Buyer = buyer
	listing.ClosedAt = at
}
