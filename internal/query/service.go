package query

import (
	"SparkLedger/internal/ledger"
	"SparkLedger/internal/projection"
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// QueryService provides read-only access to projection tables and the
// persisted transaction log. Every response carries as_of_sequence, the
// projection watermark, so callers can judge freshness.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetBalance returns a player's projected balance.
func (qs *QueryService) GetBalance(ctx context.Context, player string) (*BalanceResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	resp := &BalanceResponse{Player: player, AsOfSequence: asOfSeq}
	err = qs.db.QueryRowContext(ctx, `
		SELECT balance FROM projections.balances WHERE account = $1
	`, player).Scan(&resp.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, player)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetLeaderboard ranks players by projected balance. Reserved accounts are
// filtered in SQL.
func (qs *QueryService) GetLeaderboard(ctx context.Context, limit int) (*LeaderboardResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT account, balance
		FROM projections.balances
		WHERE account <> $1 AND account <> $2
		ORDER BY balance DESC, account
		LIMIT $3
	`, ledger.TreasuryAccount, ledger.SystemAccount, ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resp := &LeaderboardResponse{Entries: []LeaderboardEntry{}, AsOfSequence: asOfSeq}
	for rows.Next() {
		e := LeaderboardEntry{Rank: len(resp.Entries) + 1}
		if err := rows.Scan(&e.Player, &e.Balance); err != nil {
			return nil, err
		}
		resp.Entries = append(resp.Entries, e)
	}
	return resp, rows.Err()
}

// GetHistory returns the newest transactions touching a player.
func (qs *QueryService) GetHistory(ctx context.Context, player string, limit int) (*HistoryResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT tx_id, seq, tx_type, from_account, to_account, amount, timestamp
		FROM spark.transactions
		WHERE from_account = $1 OR to_account = $1
		ORDER BY seq DESC
		LIMIT $2
	`, player, ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resp := &HistoryResponse{Player: player, Entries: []HistoryEntry{}, AsOfSequence: asOfSeq}
	for rows.Next() {
		var tx ledger.Transaction
		if err := rows.Scan(&tx.ID, &tx.Seq, &tx.Type, &tx.From, &tx.To, &tx.Amount, &tx.Timestamp); err != nil {
			return nil, err
		}
		resp.Entries = append(resp.Entries, historyEntry(player, tx))
	}
	return resp, rows.Err()
}

// ChainReport lists persisted commands whose prev_hash does not match the
// state_hash of the command before them.
type ChainReport struct {
	HashChainBreaks []int64 `json:"hash_chain_breaks"`
	LastSequence    int64   `json:"last_sequence"`
	IsHealthy       bool    `json:"is_healthy"`
}

// VerifyChain checks hash chain continuity of spark.commands.
func (qs *QueryService) VerifyChain(ctx context.Context) (*ChainReport, error) {
	report := &ChainReport{HashChainBreaks: []int64{}}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT c1.sequence
		FROM spark.commands c1
		JOIN spark.commands c2 ON c2.sequence = c1.sequence - 1
		WHERE c1.prev_hash <> c2.state_hash
		ORDER BY c1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sequence), 0) FROM spark.commands
	`).Scan(&report.LastSequence); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE projection_name = $1
	`, projection.Name).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return seq, err
}
