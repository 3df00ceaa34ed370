package fake

import (
	"context"
	"sync"

	"github.com/EcoCycle/PickupDesk/internal/integrations/mailer"
)

// FakeClient пишет письма в память вместо SendGrid. Используется в тестах
// и при пустом API-ключе, чтобы стенд работал без внешнего сервиса.
type FakeClient struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func New() *FakeClient { return &FakeClient{} }

func (f *FakeClient) Send(_ context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *FakeClient) Sent() []mailer.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]mailer.Message, len(f.sent))
	copy(out, f.sent)
	return out
}
