package sendgridmail

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/EcoCycle/PickupDesk/internal/integrations/mailer"
)

type Client struct {
	sg        *sendgrid.Client
	fromName  string
	fromEmail string
	sandbox   bool
}

func New(apiKey, fromName, fromEmail string, sandbox bool) *Client {
	return &Client{
		sg:        sendgrid.NewSendClient(apiKey),
		fromName:  fromName,
		fromEmail: fromEmail,
		sandbox:   sandbox,
	}
}

func (c *Client) Send(ctx context.Context, msg mailer.Message) error {
	from := mail.NewEmail(c.fromName, c.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.ToEmail)
	m := mail.NewSingleEmail(from, msg.Subject, to, msg.Plain, msg.HTML)

	if c.sandbox {
		ms := mail.NewMailSettings()
		ms.SetSandboxMode(mail.NewSetting(true))
		m.MailSettings = ms
	}

	resp, err := c.sg.SendWithContext(ctx, m)
	if err != nil {
		return errors.Wrap(err, "sendgrid send")
	}
	if resp.StatusCode >= 400 {
		return errors.Errorf("sendgrid send: status %d", resp.StatusCode)
	}
	return nil
}
