package main

import (
	"SparkLedger/internal/command"
	"SparkLedger/internal/core"
	"SparkLedger/internal/ledger"
	"SparkLedger/internal/observability"
	"SparkLedger/internal/persistence"
	"SparkLedger/internal/treasury"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	replayBatchSize = 1000
	snapshotTimeout = 30 * time.Second
)

// recoverEngine restores the latest verified snapshot, if any, and replays
// the command log after it. Every replayed command must reproduce its
// logged state hash.
func recoverEngine(
	ctx context.Context,
	engine *core.Engine,
	snapMgr *persistence.SnapshotManager,
	rules ledger.Rules,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) error {
	start := time.Now()

	snap, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load snapshot, replaying the full log")
		snap = nil
	}
	if snap != nil {
		state, err := snap.State(rules)
		if err != nil {
			return err
		}
		if err := engine.RestoreFromSnapshot(state); err != nil {
			return err
		}
		logger.Info().Int64("sequence", snap.Sequence).Str("snapshot_id", snap.SnapshotID).Msg("restored snapshot")
	} else {
		logger.Info().Msg("no snapshot found, cold start")
	}

	replayed, err := replayCommandLog(ctx, engine, snapMgr, engine.GetSequence()+1)
	if err != nil {
		return err
	}

	if metrics != nil {
		metrics.ReplayDuration.Set(time.Since(start).Seconds())
	}
	logger.Info().
		Int64("replayed", replayed).
		Int64("sequence", engine.GetSequence()).
		Str("state_hash", core.HashHex(engine.GetStateHash())).
		Dur("took", time.Since(start)).
		Msg("recovery complete")
	return nil
}

func replayCommandLog(ctx context.Context, engine *core.Engine, snapMgr *persistence.SnapshotManager, from int64) (int64, error) {
	var total int64
	for {
		rows, err := snapMgr.LoadCommandsFrom(ctx, from, replayBatchSize)
		if err != nil {
			return total, fmt.Errorf("load commands from %d: %w", from, err)
		}
		if len(rows) == 0 {
			return total, nil
		}

		for _, row := range rows {
			if want := engine.GetSequence() + 1; row.Sequence != want {
				return total, fmt.Errorf("command log gap: got sequence %d, want %d", row.Sequence, want)
			}
			cmd, err := command.Decode(command.Kind(row.Kind), row.Payload)
			if err != nil {
				return total, fmt.Errorf("decode sequence %d: %w", row.Sequence, err)
			}
			var expected [32]byte
			copy(expected[:], row.StateHash)
			if err := engine.Replay(cmd, expected); err != nil {
				return total, err
			}
			total++
		}
		from = rows[len(rows)-1].Sequence + 1
	}
}

// runTicker submits a tick every interval. The engine derives the game day
// from the tick timestamp.
func runTicker(ctx context.Context, engine *core.Engine, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			tick := &command.Tick{Meta: command.Meta{ID: uuid.NewString(), Timestamp: now.UnixMilli()}}
			res, err := engine.Submit(tick)
			if err != nil {
				logger.Error().Err(err).Msg("tick failed")
				continue
			}
			if report, ok := res.Value.(treasury.TickReport); ok && len(res.Transactions) > 0 {
				logger.Info().
					Int64("sequence", res.Sequence).
					Int64("day", report.Day).
					Int("finalized", len(report.Finalized)).
					Int("expired_listings", len(report.ExpiredListings)).
					Int("transactions", len(res.Transactions)).
					Msg("tick applied")
			}
		}
	}
}

// runPeriodicSnapshots snapshots the engine once interval commands have been
// applied since the last one. interval 0 disables periodic snapshots.
func runPeriodicSnapshots(
	ctx context.Context,
	engine *core.Engine,
	snapMgr *persistence.SnapshotManager,
	interval int64,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) {
	if interval <= 0 {
		return
	}

	lastSnapshotSeq := engine.GetSequence()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			currentSeq := engine.GetSequence()
			if currentSeq-lastSnapshotSeq < interval {
				continue
			}
			snapCtx, cancel := context.WithTimeout(ctx, snapshotTimeout)
			err := takeSnapshot(snapCtx, engine, snapMgr, metrics)
			cancel()
			if err != nil {
				logger.Warn().Err(err).Msg("periodic snapshot failed")
				continue
			}
			lastSnapshotSeq = currentSeq
			logger.Info().Int64("sequence", currentSeq).Msg("periodic snapshot")
		}
	}
}

// takeSnapshot captures engine state and saves it unverified. It is marked
// verified once the command log is durable through its sequence, so a
// verified snapshot is never ahead of spark.commands.
func takeSnapshot(ctx context.Context, engine *core.Engine, snapMgr *persistence.SnapshotManager, metrics *observability.Metrics) error {
	start := time.Now()

	state := engine.CreateSnapshotState()
	if state.Sequence <= 0 {
		return nil
	}
	data := persistence.NewSnapshotData(state, time.Now().UTC())

	size, err := snapMgr.SaveSnapshot(ctx, data)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := waitForCommandLog(ctx, snapMgr, data.Sequence, logPollInterval); err != nil {
		return fmt.Errorf("snapshot %d left unverified: %w", data.Sequence, err)
	}
	if err := snapMgr.MarkVerified(ctx, data.Sequence); err != nil {
		return fmt.Errorf("mark snapshot %d verified: %w", data.Sequence, err)
	}

	if metrics != nil {
		metrics.SnapshotTaken.Inc()
		metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		metrics.SnapshotSizeBytes.Set(float64(size))
		metrics.SnapshotLastSeq.Set(float64(data.Sequence))
	}
	return nil
}

const logPollInterval = 50 * time.Millisecond

// commandLog reports the highest persisted sequence.
type commandLog interface {
	GetLatestSequence(ctx context.Context) (int64, error)
}

// waitForCommandLog blocks until the log holds sequence or ctx ends. The
// persistence worker commits batches in sequence order, so the maximum
// persisted sequence covers everything below it.
func waitForCommandLog(ctx context.Context, log commandLog, sequence int64, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		latest, err := log.GetLatestSequence(ctx)
		if err != nil {
			return fmt.Errorf("read command log: %w", err)
		}
		if latest >= sequence {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("command log at %d, want %d: %w", latest, sequence, ctx.Err())
		case <-ticker.C:
		}
	}
}
