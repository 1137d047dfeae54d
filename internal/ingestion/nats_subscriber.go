package ingestion

import (
	"SparkLedger/internal/command"
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	CommandStream  = "SPARK_COMMANDS"
	CommandSubject = "spark.commands"
)

// IngestKinds are the command kinds accepted over NATS. Ticks come from the
// host's own ticker and structures are built over HTTP.
var IngestKinds = []command.Kind{
	command.KindEarn, command.KindSpend, command.KindTransfer,
	command.KindListingCreate, command.KindListingBuy, command.KindListingCancel,
	command.KindAuctionCreate, command.KindAuctionBid,
}

// NATSSubscriber consumes command subjects from JetStream and queues raw
// messages for the ingestion loop.
type NATSSubscriber struct {
	js        jetstream.JetStream
	rawChan   chan<- RawCommand
	consumers []jetstream.ConsumeContext
	logger    zerolog.Logger
}

// RawCommand is an unparsed inbound message. Exactly one of Ack, Nak, or
// Term must be called once the message has been handled.
type RawCommand struct {
	Subject    string
	Kind       command.Kind
	Data       []byte
	ReceivedAt time.Time
	Ack        func()
	Nak        func() // redeliver
	Term       func() // never redeliver
}

// SubjectConfig binds one subject filter to a command kind. Kinds contain
// dots, so the kind cannot be recovered from the subject alone.
type SubjectConfig struct {
	Subject      string
	Kind         command.Kind
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns one durable consumer per ingest kind:
// spark.commands.<kind>.> on SPARK_COMMANDS.
func DefaultSubjects() []SubjectConfig {
	subjects := make([]SubjectConfig, 0, len(IngestKinds))
	for _, kind := range IngestKinds {
		subjects = append(subjects, SubjectConfig{
			Subject:      fmt.Sprintf("%s.%s.>", CommandSubject, kind),
			Kind:         kind,
			ConsumerName: "ledger-" + consumerToken(kind),
			StreamName:   CommandStream,
		})
	}
	return subjects
}

// consumer names may not contain dots
func consumerToken(kind command.Kind) string {
	b := []byte(kind)
	for i := range b {
		if b[i] == '.' {
			b[i] = '-'
		}
	}
	return string(b)
}

func NewNATSSubscriber(js jetstream.JetStream, rawChan chan<- RawCommand, logger zerolog.Logger) *NATSSubscriber {
	return &NATSSubscriber{
		js:      js,
		rawChan: rawChan,
		logger:  logger,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		kind := cfg.Kind
		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawCommand{
				Subject:    msg.Subject(),
				Kind:       kind,
				Data:       msg.Data(),
				ReceivedAt: time.Now(),
				Ack:        func() { _ = msg.Ack() },
				Nak:        func() { _ = msg.Nak() },
				Term:       func() { _ = msg.Term() },
			}

			select {
			case ns.rawChan <- raw:
			case <-ctx.Done():
				_ = msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		ns.logger.Info().Str("subject", cfg.Subject).Str("consumer", cfg.ConsumerName).Msg("subscribed")
	}

	return nil
}

// EnsureStreams creates the inbound command stream if it does not exist.
// FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, logger zerolog.Logger) error {
	cfg := jetstream.StreamConfig{
		Name:       CommandStream,
		Subjects:   []string{CommandSubject + ".>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     72 * time.Hour,
		Replicas:   1,
		Duplicates: 10 * time.Minute,
	}
	if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
		return fmt.Errorf("create stream %s: %w", cfg.Name, err)
	}
	logger.Info().Str("stream", cfg.Name).Msg("ensured stream")
	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.logger.Info().Msg("NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("sparkledger"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
