package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
)

type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to the log instead of delivering them. Used
// when no mail provider is configured.
type LogNotifier struct{}

func (LogNotifier) Send(ctx context.Context, msg Message) error {
	slog.InfoContext(ctx, "notification", "to", msg.To, "subject", msg.Subject)
	return nil
}

func OrderConfirmation(c *domain.Customer, e domain.OrderCreatedEvent) Message {
	var text strings.Builder
	fmt.Fprintf(&text, "Hi %s,\n\nThank you for your order %s.\n\n", c.FullName, e.OrderNumber)
	for _, item := range e.Items {
		fmt.Fprintf(&text, "  %d x %s @ %s\n", item.Quantity, item.ProductName, domain.FormatMoney(item.UnitPrice))
	}
	fmt.Fprintf(&text, "\nTotal: %s\n", domain.FormatMoney(e.TotalAmount))

	return Message{
		To:      c.Email,
		ToName:  c.FullName,
		Subject: "Order " + e.OrderNumber + " received",
		Text:    text.String(),
		HTML:    "<pre>" + html.EscapeString(text.String()) + "</pre>",
	}
}

func OrderStatusUpdate(c *domain.Customer, e domain.OrderStatusChangedEvent) Message {
	text := fmt.Sprintf("Hi %s,\n\nYour order %s is now %s.\n", c.FullName, e.OrderNumber, strings.ToLower(e.To.String()))
	return Message{
		To:      c.Email,
		ToName:  c.FullName,
		Subject: fmt.Sprintf("Order %s %s", e.OrderNumber, strings.ToLower(e.To.String())),
		Text:    text,
		HTML:    "<pre>" + html.EscapeString(text) + "</pre>",
	}
}
