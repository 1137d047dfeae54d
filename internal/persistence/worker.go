package persistence

import (
	"SparkLedger/internal/core"
	"SparkLedger/internal/observability"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

// PersistenceWorker drains the persist channel and batch-writes to Postgres.
// The engine's send on this channel is BLOCKING, so if this worker falls
// behind the engine stalls and no applied command is lost.
type PersistenceWorker struct {
	db           *sql.DB
	writer       *CommandLogWriter
	inputChan    <-chan core.Output
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	logger       zerolog.Logger
}

func NewPersistenceWorker(
	db *sql.DB,
	inputChan <-chan core.Output,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *PersistenceWorker {
	return &PersistenceWorker{
		db:           db,
		writer:       &CommandLogWriter{},
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		logger:       logger,
	}
}

// Run batches incoming outputs and flushes either when the batch is full or
// the flush timeout expires. Blocks until the input channel is closed or ctx
// is cancelled; the pending batch is flushed in both cases.
func (pw *PersistenceWorker) Run(ctx context.Context) error {
	commands := make([]CommandRow, 0, pw.batchSize)
	txs := make([]TransactionRow, 0, pw.batchSize*2)

	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	flush := func(ctx context.Context, reason string) {
		if len(commands) == 0 {
			return
		}
		if err := pw.flushWithRetry(ctx, commands, txs); err != nil {
			pw.logger.Error().Err(err).Str("reason", reason).Int("commands", len(commands)).Msg("flush failed")
		}
		commands = commands[:0]
		txs = txs[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush(context.Background(), "shutdown")
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				flush(context.Background(), "closed")
				return nil
			}

			batch, err := BatchFromOutput(output)
			if err != nil {
				// Cannot happen for ledger transactions; skip rather than wedge the log
				pw.logger.Error().Err(err).Int64("sequence", output.Envelope.Sequence).Msg("convert output")
				if pw.metrics != nil {
					pw.metrics.PersistErrors.WithLabelValues("encode").Inc()
				}
				continue
			}
			commands = append(commands, batch.Command)
			txs = append(txs, batch.Transactions...)

			if len(commands) >= pw.batchSize {
				flush(ctx, "full")
				timer.Reset(pw.flushTimeout)
			}

		case <-timer.C:
			flush(ctx, "timeout")
			timer.Reset(pw.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff until the write succeeds or
// ctx is cancelled. It never drops a batch; on shutdown it makes one final
// attempt with a background context.
func (pw *PersistenceWorker) flushWithRetry(ctx context.Context, commands []CommandRow, txs []TransactionRow) error {
	backoff := initialBackoff

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			pw.logger.Warn().Int("attempt", attempt).Dur("backoff", backoff).Int("commands", len(commands)).Msg("persistence retry")
			if pw.metrics != nil {
				pw.metrics.PersistRetry.Inc()
			}
			select {
			case <-ctx.Done():
				if err := pw.flush(context.Background(), commands, txs); err != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", err)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff)
		}

		err := pw.flush(ctx, commands, txs)
		if err == nil {
			if attempt > 0 {
				pw.logger.Info().Int("retries", attempt).Msg("persistence flush recovered")
			}
			return nil
		}
		pw.logger.Warn().Err(err).Msg("persistence flush failed")
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func (pw *PersistenceWorker) flush(ctx context.Context, commands []CommandRow, txs []TransactionRow) error {
	start := time.Now()

	// Commands and transactions commit together
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		pw.countError("tx_begin")
		return err
	}
	defer tx.Rollback()

	if err := pw.writer.WriteCommandBatch(ctx, tx, commands); err != nil {
		pw.countError("write_commands")
		return err
	}
	if err := pw.writer.WriteTransactionBatch(ctx, tx, txs); err != nil {
		pw.countError("write_transactions")
		return err
	}
	if err := tx.Commit(); err != nil {
		pw.countError("tx_commit")
		return err
	}

	if pw.metrics != nil {
		pw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		pw.metrics.PersistBatchSize.Observe(float64(len(commands)))
		pw.metrics.PersistCommandsWritten.Add(float64(len(commands)))
		pw.metrics.PersistTransactionsWritten.Add(float64(len(txs)))
		pw.metrics.PersistLastSequence.Set(float64(commands[len(commands)-1].Sequence))
	}
	return nil
}

func (pw *PersistenceWorker) countError(kind string) {
	if pw.metrics != nil {
		pw.metrics.PersistErrors.WithLabelValues(kind).Inc()
	}
}
