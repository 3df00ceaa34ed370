package notifier

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/EcoCycle/PickupDesk/internal/broker/messages"
	"github.com/EcoCycle/PickupDesk/internal/integrations/mailer/fake"
)

func newNotifier(t *testing.T) (*Notifier, *fake.FakeClient) {
	t.Helper()
	fc := fake.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(fc, log, "admin@ecocycle.io"), fc
}

func handle(t *testing.T, n *Notifier, m messages.RequestUpdated) {
	t.Helper()
	b, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, n.Handle(context.Background())(nil, b))
}

func baseEvent(event string) messages.RequestUpdated {
	return messages.RequestUpdated{
		RequestID: 5, Event: event, At: time.Now().UTC(),
		UserID: 1, UserName: "Ivan", UserEmail: "ivan@example.com",
		DeviceType: "LAPTOP", Brand: "Lenovo",
	}
}

func TestNotify_Submitted(t *testing.T) {
	n, fc := newNotifier(t)
	handle(t, n, baseEvent(messages.EventSubmitted))

	sent := fc.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "ivan@example.com", sent[0].ToEmail)
	require.Contains(t, sent[0].Subject, "#5")
}

func TestNotify_Scheduled_UserAndPersonnel(t *testing.T) {
	n, fc := newNotifier(t)
	when := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	m := baseEvent(messages.EventScheduled)
	m.PickupPersonnelName = "Petr"
	m.PickupPersonnelEmail = "petr@example.com"
	m.PickupDateTime = &when
	m.PickupAddress = "Tverskaya 1"
	handle(t, n, m)

	sent := fc.Sent()
	require.Len(t, sent, 2)
	require.Equal(t, "ivan@example.com", sent[0].ToEmail)
	require.Equal(t, "petr@example.com", sent[1].ToEmail)
	require.Contains(t, sent[1].Plain, "Tverskaya 1")
}

func TestNotify_OTP_GoesToOwnerOnly(t *testing.T) {
	n, fc := newNotifier(t)
	m := baseEvent(messages.EventOTPRequested)
	m.OTP = "123456"
	m.PickupPersonnelEmail = "petr@example.com"
	handle(t, n, m)

	sent := fc.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "ivan@example.com", sent[0].ToEmail)
	require.Contains(t, sent[0].Plain, "123456")
}

func TestNotify_PickupRejected_GoesToAdmin(t *testing.T) {
	n, fc := newNotifier(t)
	m := baseEvent(messages.EventPickupRejected)
	m.PickupPersonnelName = "Petr"
	m.RejectionReason = "vehicle breakdown"
	handle(t, n, m)

	sent := fc.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "admin@ecocycle.io", sent[0].ToEmail)
	require.Contains(t, sent[0].Plain, "vehicle breakdown")
}

func TestNotify_Completed_MentionsCredit(t *testing.T) {
	n, fc := newNotifier(t)
	m := baseEvent(messages.EventCompleted)
	m.PaymentAmount = 650
	handle(t, n, m)

	sent := fc.Sent()
	require.Len(t, sent, 1)
	require.Contains(t, sent[0].Plain, "650.00")
}

func TestHandle_BadPayloadIsSkipped(t *testing.T) {
	n, fc := newNotifier(t)
	require.NoError(t, n.Handle(context.Background())(nil, []byte("not-json")))
	require.Empty(t, fc.Sent())
}
