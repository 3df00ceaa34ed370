package otp

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/EcoCycle/PickupDesk/internal/cache/rediscache"
)

func newService(t *testing.T, maxAttempts int64) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	return New(rediscache.New(mr.Addr()), rediscache.NewRateLimiter(mr.Addr()), 10*time.Minute, maxAttempts)
}

func TestIssue_format(t *testing.T) {
	s := newService(t, 5)
	code, err := s.Issue(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, code, 6)
	for i := 0; i < len(code); i++ {
		require.True(t, code[i] >= '0' && code[i] <= '9')
	}
}

func TestIssue_idempotenceGuard(t *testing.T) {
	s := newService(t, 5)
	ctx := context.Background()

	_, err := s.Issue(ctx, 42)
	require.NoError(t, err)

	_, err = s.Issue(ctx, 42)
	require.ErrorIs(t, err, ErrAlreadyRequested)

	// другой запрос не задет
	_, err = s.Issue(ctx, 43)
	require.NoError(t, err)
}

func TestVerify_flow(t *testing.T) {
	s := newService(t, 5)
	ctx := context.Background()

	code, err := s.Issue(ctx, 7)
	require.NoError(t, err)

	// неверный код: ошибка, но выданный код остаётся для повторной попытки
	require.ErrorIs(t, s.Verify(ctx, 7, "000000"), ErrCodeMismatch)
	require.NoError(t, s.Verify(ctx, 7, code))

	// после успеха код потреблён
	require.ErrorIs(t, s.Verify(ctx, 7, code), ErrCodeExpired)

	// и можно выдать новый
	_, err = s.Issue(ctx, 7)
	require.NoError(t, err)
}

func TestVerify_neverIssued(t *testing.T) {
	s := newService(t, 5)
	require.ErrorIs(t, s.Verify(context.Background(), 99, "123456"), ErrCodeExpired)
}

func TestVerify_attemptLimit(t *testing.T) {
	s := newService(t, 2)
	ctx := context.Background()

	code, err := s.Issue(ctx, 5)
	require.NoError(t, err)

	require.ErrorIs(t, s.Verify(ctx, 5, "000000"), ErrCodeMismatch)
	require.ErrorIs(t, s.Verify(ctx, 5, "111111"), ErrCodeMismatch)
	require.ErrorIs(t, s.Verify(ctx, 5, code), ErrTooManyAttempts)
}
