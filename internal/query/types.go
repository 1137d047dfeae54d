package query

import (
	"SparkLedger/internal/ledger"
	"SparkLedger/internal/treasury"
	"context"
	"errors"
)

// ErrUnknownAccount is returned for accounts with no balance and no history.
var ErrUnknownAccount = errors.New("unknown account")

// ErrNoCommandLog is returned by chain checks when reads are served from
// engine memory only.
var ErrNoCommandLog = errors.New("command log not available")

// ChainVerifier checks the persisted command log's hash chain.
type ChainVerifier interface {
	VerifyChain(ctx context.Context) (*ChainReport, error)
}

// Reader serves balance reads. The engine-backed reader is always current;
// the projection-backed reader may lag and says so via AsOfSequence.
type Reader interface {
	GetBalance(ctx context.Context, player string) (*BalanceResponse, error)
	GetLeaderboard(ctx context.Context, limit int) (*LeaderboardResponse, error)
	GetHistory(ctx context.Context, player string, limit int) (*HistoryResponse, error)
}

// BalanceResponse represents a player balance for API queries.
type BalanceResponse struct {
	Player       string `json:"player"`
	Balance      int64  `json:"balance"`
	AsOfSequence int64  `json:"as_of_sequence"` // last applied command sequence
}

// LeaderboardEntry is one ranked player. Reserved accounts never appear.
type LeaderboardEntry struct {
	Rank    int    `json:"rank"`
	Player  string `json:"player"`
	Balance int64  `json:"balance"`
}

type LeaderboardResponse struct {
	Entries      []LeaderboardEntry `json:"entries"`
	AsOfSequence int64              `json:"as_of_sequence"`
}

// HistoryEntry is one transaction touching a player, newest first.
type HistoryEntry struct {
	TxID      string        `json:"tx_id"`
	Seq       int64         `json:"seq"`
	Type      ledger.TxType `json:"type"`
	From      string        `json:"from"`
	To        string        `json:"to"`
	Amount    int64         `json:"amount"`
	Delta     int64         `json:"delta"` // signed effect on the player
	Timestamp int64         `json:"timestamp"`
}

type HistoryResponse struct {
	Player       string         `json:"player"`
	Entries      []HistoryEntry `json:"entries"`
	AsOfSequence int64          `json:"as_of_sequence"`
}

type MarketResponse struct {
	Listings     []ledger.Listing `json:"listings,omitempty"`
	Auctions     []ledger.Auction `json:"auctions,omitempty"`
	AsOfSequence int64            `json:"as_of_sequence"`
}

type TreasuryResponse struct {
	treasury.Info
	EligiblePlayers int   `json:"eligible_players"`
	LastUBIDay      int64 `json:"last_ubi_day"`
	AsOfSequence    int64 `json:"as_of_sequence"`
}

type IntegrityResponse struct {
	ledger.IntegrityReport
	AsOfSequence int64 `json:"as_of_sequence"`
}

// ClampLimit bounds a caller-supplied page size.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

func historyEntry(player string, tx ledger.Transaction) HistoryEntry {
	h := HistoryEntry{
		TxID:      tx.ID,
		Seq:       tx.Seq,
		Type:      tx.Type,
		From:      tx.From,
		To:        tx.To,
		Amount:    tx.Amount,
		Timestamp: tx.Timestamp,
	}
	if tx.To == player {
		h.Delta += tx.Amount
	}
	if tx.From == player {
		h.Delta -= tx.Amount
	}
	return h
}
