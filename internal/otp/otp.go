// Package otp реализует второй шаг завершения вывоза: выдачу одноразового
// кода владельцу заявки и его проверку персоналом. Код живёт в Redis с TTL,
// повторная выдача при живом коде блокируется на сервере.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrAlreadyRequested = errors.New("otp already requested")
	ErrCodeExpired      = errors.New("otp expired or never issued")
	ErrCodeMismatch     = errors.New("otp mismatch")
	ErrTooManyAttempts  = errors.New("too many otp attempts")
)

type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
	Reset(ctx context.Context, key string) error
}

type Service struct {
	store       Store
	rl          RateLimiter
	ttl         time.Duration
	maxAttempts int64
}

func New(store Store, rl RateLimiter, ttl time.Duration, maxAttempts int64) *Service {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Service{store: store, rl: rl, ttl: ttl, maxAttempts: maxAttempts}
}

// Issue генерирует 6-значный код и кладёт его под заявку. Если код уже
// выдан и ещё жив, возвращает ErrAlreadyRequested — клиент не должен
// молча перевыпускать OTP.
func (s *Service) Issue(ctx context.Context, requestID uint64) (string, error) {
	code, err := randomCode()
	if err != nil {
		return "", errors.Wrap(err, "generate otp")
	}
	ok, err := s.store.SetNX(ctx, codeKey(requestID), []byte(code), s.ttl)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrAlreadyRequested
	}
	return code, nil
}

// Verify сравнивает код и при совпадении удаляет его. Неверный код
// оставляет выданный OTP на месте — персонал повторяет ввод без
// перевыпуска. Счётчик попыток ограничен.
func (s *Service) Verify(ctx context.Context, requestID uint64, code string) error {
	if s.rl != nil {
		allowed, _, err := s.rl.Allow(ctx, attemptsKey(requestID), s.maxAttempts, s.ttl)
		if err != nil {
			return err
		}
		if !allowed {
			return ErrTooManyAttempts
		}
	}

	stored, found, err := s.store.Get(ctx, codeKey(requestID))
	if err != nil {
		return err
	}
	if !found {
		return ErrCodeExpired
	}
	if subtle.ConstantTimeCompare(stored, []byte(code)) != 1 {
		return ErrCodeMismatch
	}

	if err := s.store.Del(ctx, codeKey(requestID)); err != nil {
		return err
	}
	if s.rl != nil {
		_ = s.rl.Reset(ctx, attemptsKey(requestID))
	}
	return nil
}

// Clear снимает выданный код (заявка ушла из OTP_REQUESTED другим путём).
func (s *Service) Clear(ctx context.Context, requestID uint64) error {
	return s.store.Del(ctx, codeKey(requestID))
}

func codeKey(id uint64) string     { return fmt.Sprintf("otp:request:%d:code", id) }
func attemptsKey(id uint64) string { return fmt.Sprintf("otp:request:%d:attempts", id) }

func randomCode() (string, error) {
	const digits = "0123456789"
	b := make([]byte, 6)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", err
		}
		b[i] = digits[n.Int64()]
	}
	return string(b), nil
}
