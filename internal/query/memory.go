package query

import (
	"SparkLedger/internal/core"
	"SparkLedger/internal/ledger"
	"context"
	"fmt"
	"sort"
)

// MemoryReader answers queries from engine state under the engine lock.
// Market, treasury, and integrity views only exist here.
type MemoryReader struct {
	engine *core.Engine
}

func NewMemoryReader(engine *core.Engine) *MemoryReader {
	return &MemoryReader{engine: engine}
}

func (r *MemoryReader) GetBalance(_ context.Context, player string) (*BalanceResponse, error) {
	var (
		resp  *BalanceResponse
		known bool
	)
	r.engine.View(func(l *ledger.Ledger, seq int64) {
		_, known = l.Balances[player]
		resp = &BalanceResponse{Player: player, Balance: l.Balance(player), AsOfSequence: seq}
	})
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, player)
	}
	return resp, nil
}

func (r *MemoryReader) GetLeaderboard(_ context.Context, limit int) (*LeaderboardResponse, error) {
	limit = ClampLimit(limit)
	resp := &LeaderboardResponse{}
	r.engine.View(func(l *ledger.Ledger, seq int64) {
		resp.AsOfSequence = seq
		players := l.Players()
		sort.SliceStable(players, func(i, j int) bool {
			return l.Balance(players[i]) > l.Balance(players[j])
		})
		if len(players) > limit {
			players = players[:limit]
		}
		resp.Entries = make([]LeaderboardEntry, len(players))
		for i, p := range players {
			resp.Entries[i] = LeaderboardEntry{Rank: i + 1, Player: p, Balance: l.Balance(p)}
		}
	})
	return resp, nil
}

func (r *MemoryReader) GetHistory(_ context.Context, player string, limit int) (*HistoryResponse, error) {
	limit = ClampLimit(limit)
	resp := &HistoryResponse{Player: player, Entries: []HistoryEntry{}}
	r.engine.View(func(l *ledger.Ledger, seq int64) {
		resp.AsOfSequence = seq
		for i := len(l.Transactions) - 1; i >= 0 && len(resp.Entries) < limit; i-- {
			if tx := l.Transactions[i]; tx.Involves(player) {
				resp.Entries = append(resp.Entries, historyEntry(player, tx))
			}
		}
	})
	return resp, nil
}

func (r *MemoryReader) GetListings(_ context.Context) (*MarketResponse, error) {
	resp := &MarketResponse{Listings: []ledger.Listing{}}
	r.engine.View(func(l *ledger.Ledger, seq int64) {
		resp.AsOfSequence = seq
		resp.Listings = append(resp.Listings, r.engine.Market().ActiveListings(l)...)
	})
	return resp, nil
}

func (r *MemoryReader) GetAuctions(_ context.Context) (*MarketResponse, error) {
	resp := &MarketResponse{Auctions: []ledger.Auction{}}
	r.engine.View(func(l *ledger.Ledger, seq int64) {
		resp.AsOfSequence = seq
		resp.Auctions = append(resp.Auctions, r.engine.Market().ActiveAuctions(l)...)
	})
	return resp, nil
}

func (r *MemoryReader) GetTreasury(_ context.Context) (*TreasuryResponse, error) {
	resp := &TreasuryResponse{}
	r.engine.View(func(l *ledger.Ledger, seq int64) {
		t := r.engine.Treasury()
		resp.Info = t.TreasuryInfo(l)
		resp.EligiblePlayers = len(t.EligiblePlayers(l))
		resp.LastUBIDay = l.LastUBIDay
		resp.AsOfSequence = seq
	})
	return resp, nil
}

// VerifyIntegrity replays the transaction log against live balances.
func (r *MemoryReader) VerifyIntegrity(_ context.Context) (*IntegrityResponse, error) {
	resp := &IntegrityResponse{}
	r.engine.View(func(l *ledger.Ledger, seq int64) {
		resp.IntegrityReport = l.CheckIntegrity()
		resp.AsOfSequence = seq
	})
	return resp, nil
}
