package query_test

import (
	"SparkLedger/internal/command"
	"SparkLedger/internal/core"
	"SparkLedger/internal/ledger"
	"SparkLedger/internal/market"
	"SparkLedger/internal/query"
	"SparkLedger/internal/treasury"
	"context"
	"errors"
	"testing"
	"time"
)

var restDay = time.Date(2026, time.January, 3, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T) *core.Engine {
	t.Helper()
	l := ledger.New(ledger.DefaultRules())
	for account, bal := range map[string]int64{"alice": 300, "bob": 50, "carol": 120, ledger.TreasuryAccount: 1000} {
		if err := l.Seed(account, bal); err != nil {
			t.Fatalf("seed %s: %v", account, err)
		}
	}
	m := market.New(market.DefaultConfig())
	return core.NewEngine(l, m, treasury.New(treasury.DefaultConfig(), m), core.Options{})
}

func submit(t *testing.T, e *core.Engine, cmd command.Command) {
	t.Helper()
	if _, err := e.Submit(cmd); err != nil {
		t.Fatalf("submit %s: %v", cmd.CommandID(), err)
	}
}

func meta(id string, offsetMs int64) command.Meta {
	return command.Meta{ID: id, Timestamp: restDay.UnixMilli() + offsetMs}
}

// ============================================================================
// Test: Balances & Leaderboard
// ============================================================================

func TestMemoryReader_Balance(t *testing.T) {
	e := newEngine(t)
	r := query.NewMemoryReader(e)
	ctx := context.Background()

	submit(t, e, &command.Transfer{Meta: meta("t1", 0), From: "alice", To: "bob", Amount: 25})

	got, err := r.GetBalance(ctx, "bob")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if got.Balance != 75 || got.AsOfSequence != 1 {
		t.Errorf("got balance=%d seq=%d, want 75 at 1", got.Balance, got.AsOfSequence)
	}

	if _, err := r.GetBalance(ctx, "nobody"); !errors.Is(err, query.ErrUnknownAccount) {
		t.Errorf("got %v, want ErrUnknownAccount", err)
	}
}

func TestMemoryReader_LeaderboardExcludesReserved(t *testing.T) {
	r := query.NewMemoryReader(newEngine(t))

	got, err := r.GetLeaderboard(context.Background(), 2)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	want := []query.LeaderboardEntry{
		{Rank: 1, Player: "alice", Balance: 300},
		{Rank: 2, Player: "carol", Balance: 120},
	}
	if len(got.Entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got.Entries), len(want))
	}
	for i := range want {
		if got.Entries[i] != want[i] {
			t.Errorf("entry %d: got %+v, want %+v", i, got.Entries[i], want[i])
		}
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, query.DefaultLimit},
		{-5, query.DefaultLimit},
		{7, 7},
		{1000, query.MaxLimit},
	}
	for _, tc := range tests {
		if got := query.ClampLimit(tc.in); got != tc.want {
			t.Errorf("ClampLimit(%d): got %d, want %d", tc.in, got, tc.want)
		}
	}
}

// ============================================================================
// Test: History
// ============================================================================

func TestMemoryReader_HistoryNewestFirstWithDelta(t *testing.T) {
	e := newEngine(t)
	r := query.NewMemoryReader(e)

	submit(t, e, &command.Spend{Meta: meta("s1", 0), Player: "bob", Amount: 5})
	submit(t, e, &command.Transfer{Meta: meta("t1", 1000), From: "alice", To: "bob", Amount: 10})
	submit(t, e, &command.Transfer{Meta: meta("t2", 2000), From: "carol", To: "alice", Amount: 1})

	got, err := r.GetHistory(context.Background(), "bob", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(got.Entries))
	}
	if got.Entries[0].Type != ledger.TxTypeTransfer || got.Entries[0].Delta != 10 {
		t.Errorf("newest: got %+v", got.Entries[0])
	}
	if got.Entries[1].Type != ledger.TxTypeSpend || got.Entries[1].Delta != -5 {
		t.Errorf("oldest: got %+v", got.Entries[1])
	}
	if got.AsOfSequence != 3 {
		t.Errorf("as of: got %d, want 3", got.AsOfSequence)
	}
}

// ============================================================================
// Test: Market, Treasury, Integrity
// ============================================================================

func TestMemoryReader_MarketAndTreasury(t *testing.T) {
	e := newEngine(t)
	r := query.NewMemoryReader(e)
	ctx := context.Background()

	submit(t, e, &command.CreateListing{Meta: meta("l1", 0), Seller: "alice", Item: "sword", Price: 40})
	submit(t, e, &command.CreateAuction{Meta: meta("a1", 1000), Seller: "carol", Item: "shield", StartingBid: 10})

	listings, err := r.GetListings(ctx)
	if err != nil || len(listings.Listings) != 1 || listings.Listings[0].Item != "sword" {
		t.Errorf("listings: got %+v, %v", listings, err)
	}
	auctions, err := r.GetAuctions(ctx)
	if err != nil || len(auctions.Auctions) != 1 || auctions.Auctions[0].Item != "shield" {
		t.Errorf("auctions: got %+v, %v", auctions, err)
	}

	tr, err := r.GetTreasury(ctx)
	if err != nil {
		t.Fatalf("treasury: %v", err)
	}
	if tr.Balance != 1000 || tr.EligiblePlayers != 3 {
		t.Errorf("treasury: got balance=%d eligible=%d", tr.Balance, tr.EligiblePlayers)
	}

	integrity, err := r.VerifyIntegrity(ctx)
	if err != nil || !integrity.Valid {
		t.Errorf("integrity: got %+v, %v", integrity, err)
	}
}
