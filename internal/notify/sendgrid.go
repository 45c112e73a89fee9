package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fjod/go_cart/storefront-service/internal/circuitbreaker"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type mailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridNotifier delivers mail through SendGrid behind a circuit breaker.
type SendGridNotifier struct {
	client  mailSender
	from    *mail.Email
	breaker *circuitbreaker.Breaker[*rest.Response]
}

func NewSendGridNotifier(apiKey, fromName, fromAddress string) (*SendGridNotifier, error) {
	if apiKey == "" {
		return nil, errors.New("sendgrid api key is empty")
	}
	if fromAddress == "" {
		return nil, errors.New("from address is empty")
	}
	return newSendGridNotifier(sendgrid.NewSendClient(apiKey), fromName, fromAddress), nil
}

func newSendGridNotifier(client mailSender, fromName, fromAddress string) *SendGridNotifier {
	return &SendGridNotifier{
		client:  client,
		from:    mail.NewEmail(fromName, fromAddress),
		breaker: circuitbreaker.New[*rest.Response](circuitbreaker.Settings{Name: "sendgrid"}),
	}
}

func (n *SendGridNotifier) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("to address is empty")
	}

	message := mail.NewSingleEmail(n.from, msg.Subject, mail.NewEmail(msg.ToName, msg.To), msg.Text, msg.HTML)

	response, err := n.breaker.Execute(func() (*rest.Response, error) {
		resp, err := n.client.SendWithContext(ctx, message)
		if err != nil {
			return nil, fmt.Errorf("sendgrid send error: %w", err)
		}
		if resp.StatusCode >= 500 || resp.StatusCode == 429 {
			return resp, fmt.Errorf("sendgrid send failed: status=%d, body=%s", resp.StatusCode, resp.Body)
		}
		return resp, nil
	})
	if err != nil {
		return err
	}
	// 4xx other than 429 is our fault and does not count against the breaker.
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid rejected message: status=%d, body=%s", response.StatusCode, response.Body)
	}

	slog.InfoContext(ctx, "mail sent", "status", response.StatusCode, "to", msg.To, "subject", msg.Subject)
	return nil
}
