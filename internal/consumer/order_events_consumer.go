package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/fjod/go_cart/storefront-service/internal/notify"
	"github.com/segmentio/kafka-go"
)

const GroupID = "storefront-notifications"

// defaultFetchRetryDelay paces fetch retries while the broker is unreachable.
const defaultFetchRetryDelay = time.Second

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type CustomerLookup interface {
	GetCustomer(ctx context.Context, customerID int64) (*domain.Customer, error)
}

// Consumer turns order events into customer notifications.
type Consumer struct {
	reader    MessageReader
	customers CustomerLookup
	notifier  notify.Notifier

	fetchRetryDelay time.Duration
}

func NewConsumer(customers CustomerLookup, notifier notify.Notifier, topic string, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  GroupID,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, customers: customers, notifier: notifier, fetchRetryDelay: defaultFetchRetryDelay}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		slog.Error("error closing kafka reader", "error", err)
	}
}

// processMessage handles one message and commits it. Messages that cannot be
// handled are logged and skipped so one bad event never blocks the partition.
func (c *Consumer) processMessage(ctx context.Context) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		slog.ErrorContext(ctx, "error reading message", "error", err)
		c.waitBeforeRetry(ctx)
		return
	}

	if err := c.handle(ctx, m); err != nil {
		slog.ErrorContext(ctx, "failed to handle order event",
			"partition", m.Partition, "offset", m.Offset, "key", string(m.Key), "error", err)
	}

	if err := c.reader.CommitMessages(ctx, m); err != nil {
		slog.ErrorContext(ctx, "failed to commit message", "offset", m.Offset, "error", err)
	}
}

func (c *Consumer) waitBeforeRetry(ctx context.Context) {
	delay := c.fetchRetryDelay
	if delay <= 0 {
		delay = defaultFetchRetryDelay
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) error {
	switch eventType := header(m, "event_type"); eventType {
	case domain.EventTypeOrderCreated:
		var event domain.OrderCreatedEvent
		if err := json.Unmarshal(m.Value, &event); err != nil {
			return fmt.Errorf("error parsing message: %w", err)
		}
		customer, err := c.customers.GetCustomer(ctx, event.CustomerID)
		if err != nil {
			return fmt.Errorf("lookup customer %d: %w", event.CustomerID, err)
		}
		return c.notifier.Send(ctx, notify.OrderConfirmation(customer, event))

	case domain.EventTypeOrderStatusChanged:
		var event domain.OrderStatusChangedEvent
		if err := json.Unmarshal(m.Value, &event); err != nil {
			return fmt.Errorf("error parsing message: %w", err)
		}
		customer, err := c.customers.GetCustomer(ctx, event.CustomerID)
		if err != nil {
			return fmt.Errorf("lookup customer %d: %w", event.CustomerID, err)
		}
		return c.notifier.Send(ctx, notify.OrderStatusUpdate(customer, event))

	default:
		slog.DebugContext(ctx, "ignoring event", "event_type", eventType)
		return nil
	}
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
