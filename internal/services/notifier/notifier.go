// Package notifier превращает события request.updated в письма.
// Потребляется из Kafka: ошибка отправки не коммитит оффсет, письмо
// уйдёт при повторной доставке сообщения.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/EcoCycle/PickupDesk/internal/broker/messages"
	"github.com/EcoCycle/PickupDesk/internal/integrations/mailer"
)

type Notifier struct {
	mail       mailer.Client
	log        *slog.Logger
	adminEmail string
}

func New(mail mailer.Client, log *slog.Logger, adminEmail string) *Notifier {
	return &Notifier{mail: mail, log: log, adminEmail: adminEmail}
}

// Handle — обработчик для kafka.Consumer.Consume.
func (n *Notifier) Handle(ctx context.Context) func(key, value []byte) error {
	return func(_, value []byte) error {
		var m messages.RequestUpdated
		if err := json.Unmarshal(value, &m); err != nil {
			// битое сообщение ретраить бессмысленно
			n.log.Error("decode request event", "err", err)
			return nil
		}
		return n.notify(ctx, m)
	}
}

func (n *Notifier) notify(ctx context.Context, m messages.RequestUpdated) error {
	for _, msg := range n.render(m) {
		if err := n.mail.Send(ctx, msg); err != nil {
			return errors.Wrapf(err, "send %s mail for request %d", m.Event, m.RequestID)
		}
		n.log.Info("notification sent", "event", m.Event, "request_id", m.RequestID, "to", msg.ToEmail)
	}
	return nil
}

func (n *Notifier) render(m messages.RequestUpdated) []mailer.Message {
	device := fmt.Sprintf("%s %s", m.Brand, m.DeviceType)
	var out []mailer.Message

	toUser := func(subject, plain string) {
		out = append(out, mailer.Message{
			ToName: m.UserName, ToEmail: m.UserEmail,
			Subject: subject, Plain: plain,
			HTML: "<p>" + plain + "</p>",
		})
	}
	toPersonnel := func(subject, plain string) {
		if m.PickupPersonnelEmail == "" {
			return
		}
		out = append(out, mailer.Message{
			ToName: m.PickupPersonnelName, ToEmail: m.PickupPersonnelEmail,
			Subject: subject, Plain: plain,
			HTML: "<p>" + plain + "</p>",
		})
	}
	toAdmin := func(subject, plain string) {
		if n.adminEmail == "" {
			return
		}
		out = append(out, mailer.Message{
			ToName: "Admin", ToEmail: n.adminEmail,
			Subject: subject, Plain: plain,
			HTML: "<p>" + plain + "</p>",
		})
	}

	switch m.Event {
	case messages.EventSubmitted:
		toUser(
			fmt.Sprintf("Pickup request #%d received", m.RequestID),
			fmt.Sprintf("We received your pickup request for %s. You will be notified after review.", device))
	case messages.EventApproved:
		toUser(
			fmt.Sprintf("Pickup request #%d approved", m.RequestID),
			fmt.Sprintf("Your request for %s was approved. Estimated payout: %s.", device, m.AllocatedRange))
	case messages.EventRejected:
		toUser(
			fmt.Sprintf("Pickup request #%d rejected", m.RequestID),
			fmt.Sprintf("Your request for %s was rejected. Reason: %s.", device, m.RejectionReason))
	case messages.EventScheduled:
		when := ""
		if m.PickupDateTime != nil {
			when = m.PickupDateTime.Format("02 Jan 2006 15:04 MST")
		}
		toUser(
			fmt.Sprintf("Pickup scheduled for request #%d", m.RequestID),
			fmt.Sprintf("Pickup of %s is scheduled for %s. Agent: %s.", device, when, m.PickupPersonnelName))
		toPersonnel(
			fmt.Sprintf("New pickup assignment #%d", m.RequestID),
			fmt.Sprintf("You are assigned to pick up %s at %s on %s. Please accept or reject the assignment.", device, m.PickupAddress, when))
	case messages.EventPickupAccepted:
		toUser(
			fmt.Sprintf("Pickup confirmed for request #%d", m.RequestID),
			fmt.Sprintf("%s confirmed the pickup of your %s.", m.PickupPersonnelName, device))
	case messages.EventPickupRejected:
		toAdmin(
			fmt.Sprintf("Pickup assignment #%d declined", m.RequestID),
			fmt.Sprintf("%s declined request #%d. Reason: %s. The request is back in the pending queue.", m.PickupPersonnelName, m.RequestID, m.RejectionReason))
	case messages.EventPickupExpired:
		toAdmin(
			fmt.Sprintf("Pickup assignment #%d expired", m.RequestID),
			fmt.Sprintf("%s did not respond to request #%d before the deadline. The request is back in the pending queue.", m.PickupPersonnelName, m.RequestID))
	case messages.EventOTPRequested:
		toUser(
			fmt.Sprintf("Confirmation code for request #%d", m.RequestID),
			fmt.Sprintf("Your pickup confirmation code is %s. Share it with the agent only at handover.", m.OTP))
	case messages.EventCompleted:
		toUser(
			fmt.Sprintf("Pickup request #%d completed", m.RequestID),
			fmt.Sprintf("Pickup of your %s is complete. %.2f has been credited to your wallet.", device, m.PaymentAmount))
	default:
		n.log.Warn("unknown request event", "event", m.Event, "request_id", m.RequestID)
	}
	return out
}
