package ingestion

import (
	"SparkLedger/internal/core"
	"SparkLedger/internal/ledger"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	LedgerStream  = "SPARK_LEDGER"
	LedgerSubject = "spark.ledger.tx"
)

// OutboundPublisher publishes committed transactions to NATS for downstream
// consumers. The publish channel drops on overflow; consumers that need
// every transaction read spark.transactions instead.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan core.Output
	logger    zerolog.Logger
}

// PublishedTransaction is the outbound wire format.
type PublishedTransaction struct {
	Sequence    int64              `json:"sequence"`
	CommandID   string             `json:"command_id"`
	CommandKind string             `json:"command_kind"`
	StateHash   string             `json:"state_hash"`
	Transaction ledger.Transaction `json:"transaction"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan core.Output, logger zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		logger:    logger,
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			for _, msg := range OutboundMessages(out) {
				if err := op.publish(ctx, msg); err != nil {
					op.logger.Warn().Err(err).
						Int64("sequence", msg.Sequence).
						Str("tx_id", msg.Transaction.ID).
						Msg("outbound publish failed")
				}
			}
		}
	}
}

// OutboundMessages expands one engine output into a message per transaction.
func OutboundMessages(out core.Output) []PublishedTransaction {
	env := out.Envelope
	msgs := make([]PublishedTransaction, 0, len(out.Transactions))
	for _, tx := range out.Transactions {
		msgs = append(msgs, PublishedTransaction{
			Sequence:    env.Sequence,
			CommandID:   env.CommandID,
			CommandKind: string(env.Kind),
			StateHash:   hex.EncodeToString(env.StateHash[:]),
			Transaction: tx,
		})
	}
	return msgs
}

// Subject is spark.ledger.tx.<type>.
func Subject(tx ledger.Transaction) string {
	return fmt.Sprintf("%s.%s", LedgerSubject, tx.Type)
}

func (op *OutboundPublisher) publish(ctx context.Context, msg PublishedTransaction) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}
	// Transaction ids are unique per ledger, so JetStream dedups republished outputs.
	_, err = op.js.Publish(ctx, Subject(msg.Transaction), data, jetstream.WithMsgID(msg.Transaction.ID))
	return err
}

// EnsureOutboundStream creates the outbound transaction stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream, logger zerolog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       LedgerStream,
		Subjects:   []string{LedgerSubject + ".>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     72 * time.Hour,
		Replicas:   1,
		Duplicates: 10 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	logger.Info().Str("stream", LedgerStream).Msg("ensured outbound stream")
	return nil
}
