package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/circuitbreaker"
	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/fjod/go_cart/storefront-service/internal/metrics"
	"github.com/fjod/go_cart/storefront-service/internal/repository"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultTopic     = "order-events"
	defaultBatchSize = 100
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxPoller relays outbox rows to Kafka. Delivery is at least once:
// an event is marked published only after the broker acknowledged it.
type OutboxPoller struct {
	timeout   time.Duration
	eventTick time.Duration
	batchSize int
	uow       repository.UnitOfWork
	writer    MessageWriter
	breaker   *circuitbreaker.Breaker[struct{}]
	metrics   *metrics.Metrics
}

func NewOutboxPoller(uow repository.UnitOfWork, m *metrics.Metrics, topic string, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return newOutboxPoller(uow, w, m)
}

func newOutboxPoller(uow repository.UnitOfWork, w MessageWriter, m *metrics.Metrics) *OutboxPoller {
	return &OutboxPoller{
		timeout:   time.Second * 10,
		eventTick: time.Second,
		batchSize: defaultBatchSize,
		uow:       uow,
		writer:    w,
		breaker:   circuitbreaker.New[struct{}](circuitbreaker.Settings{Name: "kafka-outbox"}),
		metrics:   m,
	}
}

// WithInterval overrides the poll interval; non-positive values are ignored.
func (p *OutboxPoller) WithInterval(d time.Duration) *OutboxPoller {
	if d > 0 {
		p.eventTick = d
	}
	return p
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	defer eventTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

// processUnpublishedEvents publishes one batch in creation order and stops
// at the first failure so events of one order are never reordered.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	tx, err := p.uow.Begin(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to begin outbox transaction", "error", err)
		return 0
	}
	defer tx.Rollback() //nolint:errcheck

	events, err := tx.Outbox().ListUnpublished(ctx, p.batchSize)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch events", "error", err)
		return 0
	}

	published := 0
	for i := range events {
		event := &events[i]
		if err := p.publish(ctx, event); err != nil {
			slog.WarnContext(ctx, "failed to publish event", "event_id", event.ID, "error", err)
			p.metrics.ObserveOutbox("failed")
			break
		}
		if err := tx.Outbox().MarkPublished(ctx, event.ID); err != nil {
			slog.ErrorContext(ctx, "failed to mark event as published", "event_id", event.ID, "error", err)
			break
		}
		p.metrics.ObserveOutbox("published")
		published++
	}

	if published == 0 {
		return 0
	}
	if err := tx.Commit(); err != nil {
		slog.ErrorContext(ctx, "failed to commit published events", "count", published, "error", err)
		return 0
	}
	return published
}

func (p *OutboxPoller) publish(ctx context.Context, event *domain.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order id keeps per-order ordering
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}

	_, err := p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.writer.WriteMessages(ctx, msg)
	})
	return err
}
