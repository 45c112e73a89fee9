package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/fjod/go_cart/storefront-service/internal/circuitbreaker"
	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSender struct {
	status int
	err    error
	sent   []*mail.SGMailV3
}

func (m *mockSender) SendWithContext(_ context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	m.sent = append(m.sent, email)
	if m.err != nil {
		return nil, m.err
	}
	return &rest.Response{StatusCode: m.status}, nil
}

var customer = &domain.Customer{ID: 1, Email: "alice@example.com", FullName: "Alice"}

func TestOrderConfirmation(t *testing.T) {
	msg := OrderConfirmation(customer, domain.OrderCreatedEvent{
		OrderNumber: "ORD20240309140405000042",
		TotalAmount: domain.MustMoney("25.50"),
		Items: []domain.OrderCreatedItem{
			{ProductName: "Mug <large>", Quantity: 2, UnitPrice: domain.MustMoney("10")},
		},
	})

	assert.Equal(t, "alice@example.com", msg.To)
	assert.Contains(t, msg.Subject, "ORD20240309140405000042")
	assert.Contains(t, msg.Text, "2 x Mug <large> @ 10.00")
	assert.Contains(t, msg.Text, "Total: 25.50")
	assert.Contains(t, msg.HTML, "Mug &lt;large&gt;")
}

func TestOrderStatusUpdate(t *testing.T) {
	msg := OrderStatusUpdate(customer, domain.OrderStatusChangedEvent{
		OrderNumber: "ORD1",
		From:        domain.OrderStatusConfirmed,
		To:          domain.OrderStatusShipped,
	})
	assert.Equal(t, "Order ORD1 shipped", msg.Subject)
	assert.Contains(t, msg.Text, "is now shipped")
}

func TestSendGridNotifier_Send(t *testing.T) {
	sender := &mockSender{status: 202}
	n := newSendGridNotifier(sender, "Shop", "shop@example.com")

	err := n.Send(context.Background(), Message{To: "alice@example.com", Subject: "hi", Text: "hello"})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "hi", sender.sent[0].Subject)
	assert.Equal(t, "shop@example.com", sender.sent[0].From.Address)
}

func TestSendGridNotifier_RejectsEmptyRecipient(t *testing.T) {
	sender := &mockSender{status: 202}
	n := newSendGridNotifier(sender, "Shop", "shop@example.com")

	assert.Error(t, n.Send(context.Background(), Message{Subject: "hi"}))
	assert.Empty(t, sender.sent)
}

func TestSendGridNotifier_ClientErrorDoesNotTrip(t *testing.T) {
	sender := &mockSender{status: 400}
	n := newSendGridNotifier(sender, "Shop", "shop@example.com")

	for i := 0; i < 10; i++ {
		assert.Error(t, n.Send(context.Background(), Message{To: "a@example.com"}))
	}
	assert.Equal(t, "closed", n.breaker.State())
}

func TestSendGridNotifier_TripsOnOutage(t *testing.T) {
	sender := &mockSender{err: errors.New("connection refused")}
	n := newSendGridNotifier(sender, "Shop", "shop@example.com")

	for i := 0; i < 5; i++ {
		require.Error(t, n.Send(context.Background(), Message{To: "a@example.com"}))
	}
	err := n.Send(context.Background(), Message{To: "a@example.com"})
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Len(t, sender.sent, 5)
}

func TestNewSendGridNotifier_RequiresConfig(t *testing.T) {
	_, err := NewSendGridNotifier("", "Shop", "shop@example.com")
	assert.Error(t, err)
	_, err = NewSendGridNotifier("key", "Shop", "")
	assert.Error(t, err)
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, LogNotifier{}.Send(context.Background(), Message{To: "a@example.com"}))
}
