package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresIdempotencyChecker is the cold-path dedup lookup against the
// command log.
type PostgresIdempotencyChecker struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresIdempotencyChecker(db *sql.DB) *PostgresIdempotencyChecker {
	return &PostgresIdempotencyChecker{
		db:      db,
		timeout: 500 * time.Millisecond,
	}
}

// IsDuplicate checks if a command exists in spark.commands
func (pic *PostgresIdempotencyChecker) IsDuplicate(kind string, commandID string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), pic.timeout)
	defer cancel()

	const query = `
        SELECT 1
        FROM spark.commands
        WHERE kind = $1 AND command_id = $2
        LIMIT 1
    `

	var exists int
	err := pic.db.QueryRowContext(ctx, query, kind, commandID).Scan(&exists)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
