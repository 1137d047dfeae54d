package persistence

import (
	"SparkLedger/internal/core"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CommandLogWriter writes applied commands and their transactions to
// Postgres using multi-row INSERTs. Writes are idempotent on their primary
// keys, so a retried batch never duplicates rows.
type CommandLogWriter struct{}

// CommandRow represents a row in spark.commands
type CommandRow struct {
	Sequence  int64
	CommandID string
	Kind      string
	Payload   []byte // JSON-encoded command
	StateHash []byte
	PrevHash  []byte
	Timestamp time.Time
}

// TransactionRow represents a row in spark.transactions
type TransactionRow struct {
	TxID      string
	Sequence  int64 // Command that produced it
	Seq       int64 // Position in the ledger log
	From      string
	To        string
	Amount    int64
	Type      string
	Payload   []byte // JSON-encoded ledger.Transaction
	Timestamp int64  // Epoch milliseconds
}

// Batch is everything one applied command persists.
type Batch struct {
	Command      CommandRow
	Transactions []TransactionRow
}

// BatchFromOutput converts an engine output into rows.
func BatchFromOutput(out core.Output) (Batch, error) {
	env := out.Envelope
	b := Batch{
		Command: CommandRow{
			Sequence:  env.Sequence,
			CommandID: env.CommandID,
			Kind:      string(env.Kind),
			Payload:   env.Payload,
			StateHash: append([]byte(nil), env.StateHash[:]...),
			PrevHash:  append([]byte(nil), env.PrevHash[:]...),
			Timestamp: env.Timestamp,
		},
		Transactions: make([]TransactionRow, 0, len(out.Transactions)),
	}

	for i := range out.Transactions {
		tx := &out.Transactions[i]
		payload, err := json.Marshal(tx)
		if err != nil {
			return Batch{}, fmt.Errorf("marshal transaction %s: %w", tx.ID, err)
		}
		b.Transactions = append(b.Transactions, TransactionRow{
			TxID:      tx.ID,
			Sequence:  env.Sequence,
			Seq:       tx.Seq,
			From:      tx.From,
			To:        tx.To,
			Amount:    tx.Amount,
			Type:      string(tx.Type),
			Payload:   payload,
			Timestamp: tx.Timestamp,
		})
	}
	return b, nil
}

// WriteCommandBatch writes a batch of commands to spark.commands.
func (w *CommandLogWriter) WriteCommandBatch(ctx context.Context, ex execer, rows []CommandRow) error {
	if len(rows) == 0 {
		return nil
	}
	query, args := buildCommandInsert(rows)
	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// WriteTransactionBatch writes a batch of transactions to spark.transactions.
func (w *CommandLogWriter) WriteTransactionBatch(ctx context.Context, ex execer, rows []TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}
	query, args := buildTransactionInsert(rows)
	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

func buildCommandInsert(rows []CommandRow) (string, []any) {
	const cols = 7
	query := `INSERT INTO spark.commands
		(sequence, command_id, kind, payload, state_hash, prev_hash, timestamp)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*cols)

	for i, r := range rows {
		values = append(values, placeholders(i*cols, cols))
		args = append(args,
			r.Sequence, r.CommandID, r.Kind, r.Payload,
			r.StateHash, r.PrevHash, r.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"
	return query, args
}

func buildTransactionInsert(rows []TransactionRow) (string, []any) {
	const cols = 9
	query := `INSERT INTO spark.transactions
		(tx_id, sequence, seq, from_account, to_account, amount, tx_type, payload, timestamp)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*cols)

	for i, r := range rows {
		values = append(values, placeholders(i*cols, cols))
		args = append(args,
			r.TxID, r.Sequence, r.Seq, r.From, r.To,
			r.Amount, r.Type, r.Payload, r.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (tx_id) DO NOTHING"
	return query, args
}

// placeholders renders "($base+1, ..., $base+n)".
func placeholders(base, n int) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i := 1; i <= n; i++ {
		if i > 1 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "$%d", base+i)
	}
	sb.WriteByte(')')
	return sb.String()
}
