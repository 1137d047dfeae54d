package persistence

import (
	"SparkLedger/internal/core"
	"SparkLedger/internal/ledger"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// SnapshotFormatVersion 2 is zstd-compressed JSON of SnapshotData.
const SnapshotFormatVersion = 2

// SnapshotManager stores engine snapshots and reads the command log back
// for recovery.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData is the serialized engine state.
type SnapshotData struct {
	SnapshotID      string         `json:"snapshot_id"`
	Sequence        int64          `json:"sequence"`
	StateHash       string         `json:"state_hash"` // Hex
	Timeline        int64          `json:"timeline"`
	Ledger          *ledger.Ledger `json:"ledger"`
	IdempotencyKeys []string       `json:"idempotency_keys"`
	CreatedAt       time.Time      `json:"created_at"`
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// NewSnapshotData wraps engine state for storage.
func NewSnapshotData(s core.SnapshotState, createdAt time.Time) *SnapshotData {
	return &SnapshotData{
		SnapshotID:      uuid.NewString(),
		Sequence:        s.Sequence,
		StateHash:       core.HashHex(s.StateHash),
		Timeline:        s.Timeline,
		Ledger:          s.Ledger,
		IdempotencyKeys: s.IdempotencyKeys,
		CreatedAt:       createdAt,
	}
}

// State converts stored data back to engine state, attaching rules to the
// decoded ledger.
func (d *SnapshotData) State(rules ledger.Rules) (core.SnapshotState, error) {
	hash, err := core.ParseHash(d.StateHash)
	if err != nil {
		return core.SnapshotState{}, fmt.Errorf("snapshot %d state hash: %w", d.Sequence, err)
	}
	if d.Ledger == nil {
		return core.SnapshotState{}, fmt.Errorf("snapshot %d has no ledger", d.Sequence)
	}
	d.Ledger.Attach(rules)
	return core.SnapshotState{
		Sequence:        d.Sequence,
		StateHash:       hash,
		Timeline:        d.Timeline,
		Ledger:          d.Ledger,
		IdempotencyKeys: d.IdempotencyKeys,
	}, nil
}

// EncodeSnapshot compresses snapshot data.
func EncodeSnapshot(snap *SnapshotData) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	if err := json.NewEncoder(enc).Encode(snap); err != nil {
		enc.Close()
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot reverses EncodeSnapshot.
func DecodeSnapshot(data []byte) (*SnapshotData, error) {
	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	var snap SnapshotData
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// SaveSnapshot persists a snapshot. It is stored unverified; callers mark
// it verified once they trust it.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) (int, error) {
	data, err := EncodeSnapshot(snap)
	if err != nil {
		return 0, err
	}

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO spark.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snap.SnapshotID, snap.Sequence, data, snap.StateHash, SnapshotFormatVersion, len(data), snap.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	return len(data), nil
}

// LoadLatestSnapshot loads the most recent verified snapshot, or nil.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data, format_version FROM spark.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var (
		data    []byte
		version int
	)
	if err := row.Scan(&data, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Cold start
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if version != SnapshotFormatVersion {
		return nil, fmt.Errorf("unsupported snapshot format version %d", version)
	}
	return DecodeSnapshot(data)
}

// MarkVerified marks a snapshot as verified after integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE spark.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadCommandsFrom loads logged commands from a sequence for replay.
func (sm *SnapshotManager) LoadCommandsFrom(ctx context.Context, fromSequence int64, limit int) ([]CommandRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, command_id, kind, payload, state_hash, prev_hash, timestamp
		FROM spark.commands
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commands []CommandRow
	for rows.Next() {
		var c CommandRow
		if err := rows.Scan(
			&c.Sequence, &c.CommandID, &c.Kind, &c.Payload,
			&c.StateHash, &c.PrevHash, &c.Timestamp,
		); err != nil {
			return nil, err
		}
		commands = append(commands, c)
	}
	return commands, rows.Err()
}

// GetLatestSequence returns the highest sequence in the command log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM spark.commands
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
