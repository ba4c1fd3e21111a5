package publisher

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/pkg/circuitbreaker"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// OutboxRepository is the slice of the store the relay needs.
type OutboxRepository interface {
	GetUnpublishedEvents(ctx context.Context, limit int) ([]*repository.OutboxEvent, error)
	MarkEventPublished(ctx context.Context, id int64) error
	DeletePublishedBefore(ctx context.Context, before time.Time) (int64, error)
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	Brokers        []string
	Topic          string
	PollInterval   time.Duration
	CleanupEvery   time.Duration
	Retention      time.Duration
	BreakerTimeout time.Duration
}

const batchSize = 100

// OutboxPoller relays order events from the outbox table to Kafka and
// prunes rows that were published longer than the retention period ago.
type OutboxPoller struct {
	timeout     time.Duration
	eventTick   time.Duration
	cleanupTick time.Duration
	retention   time.Duration
	repo        OutboxRepository
	writer      MessageWriter
	cb          *gobreaker.CircuitBreaker[struct{}]
	logger      *zap.Logger
	tracer      trace.Tracer
}

func NewOutboxPoller(repo OutboxRepository, cfg Config, logger *zap.Logger) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
	}
	return newOutboxPoller(repo, w, cfg, logger)
}

func newOutboxPoller(repo OutboxRepository, writer MessageWriter, cfg Config, logger *zap.Logger) *OutboxPoller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.CleanupEvery <= 0 {
		cfg.CleanupEvery = time.Hour
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 10 * time.Second
	}
	return &OutboxPoller{
		timeout:     5 * time.Second,
		eventTick:   cfg.PollInterval,
		cleanupTick: cfg.CleanupEvery,
		retention:   cfg.Retention,
		repo:        repo,
		writer:      writer,
		cb:          circuitbreaker.New[struct{}]("kafka-outbox", cfg.BreakerTimeout, logger),
		logger:      logger,
		tracer:      otel.Tracer("github.com/fjod/storefront/internal/publisher"),
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	cleanupTicker := time.NewTicker(p.cleanupTick)
	defer eventTicker.Stop()
	defer cleanupTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-cleanupTicker.C:
			p.cleanupPublished(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

// Start runs the poller in the background. The returned stop cancels it,
// waits for Run to return and only then closes the writer, so no batch is
// left writing to a closed connection.
func (p *OutboxPoller) Start(ctx context.Context) (stop func() error) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	return func() error {
		cancel()
		<-done
		return p.Close()
	}
}

// processUnpublishedEvents publishes in id order and stops at the first
// failure so events of one order never overtake each other.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnpublishedEvents(ctx, batchSize)
	if err != nil {
		p.logger.Error("failed to fetch outbox events", zap.Error(err))
		return
	}

	for _, event := range events {
		errPublish := circuitbreaker.Do(p.cb, func() error {
			return p.publishToKafka(ctx, event)
		})
		if errPublish != nil {
			if errors.Is(errPublish, gobreaker.ErrOpenState) || errors.Is(errPublish, gobreaker.ErrTooManyRequests) {
				p.logger.Debug("kafka breaker open, postponing outbox batch", zap.Int64("event_id", event.ID))
			} else {
				p.logger.Error("failed to publish outbox event", zap.Int64("event_id", event.ID), zap.Error(errPublish))
			}
			return
		}

		if errMark := p.repo.MarkEventPublished(ctx, event.ID); errMark != nil {
			p.logger.Error("failed to mark outbox event published", zap.Int64("event_id", event.ID), zap.Error(errMark))
			return
		}
	}
}

func (p *OutboxPoller) cleanupPublished(ctx context.Context) {
	if p.retention <= 0 {
		return
	}
	n, err := p.repo.DeletePublishedBefore(ctx, time.Now().UTC().Add(-p.retention))
	if err != nil {
		p.logger.Error("failed to prune outbox", zap.Error(err))
		return
	}
	if n > 0 {
		p.logger.Info("pruned published outbox events", zap.Int64("deleted", n))
	}
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *repository.OutboxEvent) error {
	ctx, span := p.tracer.Start(ctx, "outbox.publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.Int64("outbox.event_id", event.ID),
		attribute.String("outbox.event_type", event.EventType),
	)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order number keeps one order on one partition
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "aggregate_type", Value: []byte(event.AggregateType)},
		},
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for k, v := range carrier {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}
