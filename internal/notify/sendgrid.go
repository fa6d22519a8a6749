package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendgridNotifier sends mail through the SendGrid v3 API.
type SendgridNotifier struct {
	key  string
	host string
	from *sgmail.Email
	// api is sendgrid.API, swapped in tests.
	api func(rest.Request) (*rest.Response, error)
}

var _ Notifier = (*SendgridNotifier)(nil)

func NewSendgridNotifier(apiKey, fromName, fromAddress string) *SendgridNotifier {
	return &SendgridNotifier{
		key:  apiKey,
		host: sendgridHost,
		from: sgmail.NewEmail(fromName, fromAddress),
		api:  sendgrid.API,
	}
}

func (n *SendgridNotifier) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("notify: message %q has no recipient", msg.Subject)
	}

	req := sendgrid.GetRequest(n.key, sendgridEndpoint, n.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(n.prepare(msg))

	res, err := n.api(req)
	if err != nil {
		return fmt.Errorf("notify: sending %q: %w", msg.Subject, err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("notify: sending %q: status %d: %s", msg.Subject, res.StatusCode, res.Body)
	}
	return nil
}

func (n *SendgridNotifier) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail("", msg.To))

	m := sgmail.NewV3Mail()
	m.SetFrom(n.from)
	m.AddPersonalizations(p)
	m.AddContent(
		sgmail.NewContent("text/plain", msg.Text),
		sgmail.NewContent("text/html", msg.HTML),
	)
	return m
}
