package ingestion

import (
	"SparkLedger/internal/command"
	"SparkLedger/internal/core"
	"SparkLedger/internal/observability"
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Submitter is the engine surface the ingestion loop needs.
type Submitter interface {
	Submit(cmd command.Command) (core.Result, error)
}

// Ingestor drains raw NATS messages into the engine, one at a time.
//
// Ack policy: applied, duplicate, and domain-rejected commands are acked,
// since redelivery would produce the same outcome. Malformed payloads are
// terminated.
type Ingestor struct {
	engine  Submitter
	parser  *Parser
	rawChan <-chan RawCommand
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewIngestor(engine Submitter, parser *Parser, rawChan <-chan RawCommand, metrics *observability.Metrics, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		engine:  engine,
		parser:  parser,
		rawChan: rawChan,
		metrics: metrics,
		logger:  logger,
	}
}

// Run processes messages until ctx is cancelled or the channel closes.
func (in *Ingestor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-in.rawChan:
			if !ok {
				return nil
			}
			in.Handle(raw)
		}
	}
}

// Handle parses, submits, and settles one message.
func (in *Ingestor) Handle(raw RawCommand) {
	cmd, err := in.parser.Parse(raw.Kind, raw.Data)
	if err != nil {
		in.rejected("invalid_payload")
		in.logger.Warn().Err(err).Str("subject", raw.Subject).Msg("terminating malformed command")
		raw.Term()
		return
	}

	res, err := in.engine.Submit(cmd)
	switch {
	case errors.Is(err, core.ErrMissingCommandID), errors.Is(err, core.ErrMissingTimestamp):
		in.rejected("missing_identity")
		raw.Term()
		return
	case err != nil:
		in.logger.Info().Err(err).
			Str("kind", string(raw.Kind)).
			Str("command_id", cmd.CommandID()).
			Msg("command rejected")
	case res.Duplicate:
		in.logger.Debug().Str("command_id", cmd.CommandID()).Msg("duplicate command")
	default:
		if in.metrics != nil {
			in.metrics.IngestToApply.WithLabelValues(string(raw.Kind)).Observe(time.Since(raw.ReceivedAt).Seconds())
		}
	}
	raw.Ack()
}

func (in *Ingestor) rejected(reason string) {
	if in.metrics != nil {
		in.metrics.IngestRejected.WithLabelValues(reason).Inc()
	}
}
