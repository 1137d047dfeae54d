package projection

import (
	"SparkLedger/internal/core"
	"SparkLedger/internal/ledger"
	"SparkLedger/internal/observability"
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// Name identifies this worker's row in projections.watermark.
const Name = "balances"

// ProjectionWorker keeps projections.balances in step with the engine.
// The projection channel drops on overflow, so a lagging projection is
// rebuilt from spark.transactions rather than caught up in place.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan core.Output
	metrics   *observability.Metrics
	logger    zerolog.Logger
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan core.Output, metrics *observability.Metrics, logger zerolog.Logger) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		logger:    logger,
	}
}

// LastSequence is the last engine sequence this worker has applied.
func (pw *ProjectionWorker) LastSequence() int64 { return pw.lastSeq }

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			seq := output.Envelope.Sequence
			if err := pw.processOutput(ctx, output); err != nil {
				pw.logger.Warn().Err(err).Int64("sequence", seq).Msg("projection update failed")
				continue
			}
			pw.lastSeq = seq
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output core.Output) error {
	start := time.Now()
	seq := output.Envelope.Sequence

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, d := range Deltas(output.Transactions) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.balances (account, balance, last_seq, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (account)
			DO UPDATE SET balance = projections.balances.balance + $2, last_seq = $3, updated_at = NOW()
		`, d.Account, d.Delta, seq); err != nil {
			return fmt.Errorf("balance projection %s: %w", d.Account, err)
		}
	}

	if err := setWatermark(ctx, tx, seq); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if pw.metrics != nil {
		pw.metrics.ProjectionUpdateDur.WithLabelValues(Name).Observe(time.Since(start).Seconds())
	}
	return nil
}

// Delta is the net balance change of one account within a command.
type Delta struct {
	Account string
	Delta   int64
}

// Deltas nets the transactions of one command per account, sorted by
// account. SYSTEM is not balance-tracked and never appears.
func Deltas(txs []ledger.Transaction) []Delta {
	net := make(map[string]int64)
	for _, tx := range txs {
		if tx.From != ledger.SystemAccount {
			net[tx.From] -= tx.Amount
		}
		if tx.To != ledger.SystemAccount {
			net[tx.To] += tx.Amount
		}
	}

	out := make([]Delta, 0, len(net))
	for account, d := range net {
		out = append(out, Delta{Account: account, Delta: d})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out
}

func setWatermark(ctx context.Context, tx *sql.Tx, seq int64) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (projection_name, last_sequence, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (projection_name) DO UPDATE SET last_sequence = $2, updated_at = NOW()
	`, Name, seq); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}
	return nil
}

// RebuildProjections recomputes projections.balances from spark.transactions.
// Accounts seeded outside the transaction log (opening balances) are taken
// from opening, which may be nil.
func RebuildProjections(ctx context.Context, db *sql.DB, opening map[string]int64, logger zerolog.Logger) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `TRUNCATE projections.balances`); err != nil {
		return fmt.Errorf("truncate failed: %w", err)
	}

	for account, balance := range opening {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.balances (account, balance, last_seq) VALUES ($1, $2, 0)
		`, account, balance); err != nil {
			return fmt.Errorf("opening balance %s: %w", account, err)
		}
	}

	// Credits and debits folded in one pass; SYSTEM is excluded on both sides.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account, balance, last_seq)
		SELECT account, SUM(delta), MAX(sequence)
		FROM (
			SELECT to_account AS account, amount AS delta, sequence
			FROM spark.transactions WHERE to_account <> $1
			UNION ALL
			SELECT from_account AS account, -amount AS delta, sequence
			FROM spark.transactions WHERE from_account <> $1
		) moves
		GROUP BY account
		ON CONFLICT (account) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_seq = EXCLUDED.last_seq,
			    updated_at = NOW()
	`, ledger.SystemAccount); err != nil {
		return fmt.Errorf("rebuild balances: %w", err)
	}

	var last int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM spark.commands`).Scan(&last); err != nil {
		return fmt.Errorf("latest sequence: %w", err)
	}
	if err := setWatermark(ctx, tx, last); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	logger.Info().Int64("last_sequence", last).Msg("projection rebuild complete")
	return nil
}
