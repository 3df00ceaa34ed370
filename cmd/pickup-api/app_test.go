package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	requestsapi "github.com/EcoCycle/PickupDesk/internal/api/requests_api"
	mailerfake "github.com/EcoCycle/PickupDesk/internal/integrations/mailer/fake"
	"github.com/EcoCycle/PickupDesk/internal/models"
	"github.com/EcoCycle/PickupDesk/internal/services/notifier"
	"github.com/EcoCycle/PickupDesk/internal/services/requests"
	"github.com/EcoCycle/PickupDesk/internal/storage/pgrequests"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct{}

func (r *fakeRepo) CreateRequest(ctx context.Context, in models.RequestCreateInput) (*models.PickupRequest, error) {
	return &models.PickupRequest{}, nil
}
func (r *fakeRepo) GetRequestByID(ctx context.Context, id uint64) (*models.PickupRequest, error) {
	return nil, pgrequests.ErrRequestNotFound
}
func (r *fakeRepo) ListRequests(ctx context.Context, f pgrequests.RequestFilter) ([]*models.PickupRequest, error) {
	return []*models.PickupRequest{}, nil
}
func (r *fakeRepo) UpdateRequest(ctx context.Context, id uint64, mutate func(*models.PickupRequest) error) (*models.PickupRequest, error) {
	return nil, pgrequests.ErrRequestNotFound
}
func (r *fakeRepo) CompleteWithCredit(ctx context.Context, id uint64, mutate func(*models.PickupRequest) error) (*models.PickupRequest, error) {
	return nil, pgrequests.ErrRequestNotFound
}

type fakeUsers struct{}

func (u *fakeUsers) CreateUser(ctx context.Context, in *models.User) (*models.User, error) {
	return in, nil
}
func (u *fakeUsers) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, pgrequests.ErrUserNotFound
}
func (u *fakeUsers) GetUserByID(ctx context.Context, id uint64) (*models.User, error) {
	return nil, pgrequests.ErrUserNotFound
}
func (u *fakeUsers) ListUsersByRole(ctx context.Context, role string) ([]*models.User, error) {
	return []*models.User{}, nil
}
func (u *fakeUsers) DeleteUser(ctx context.Context, id uint64) error { return nil }
func (u *fakeUsers) GetWallet(ctx context.Context, userID uint64) (*models.Wallet, error) {
	return nil, pgrequests.ErrWalletNotFound
}
func (u *fakeUsers) ListTransactions(ctx context.Context, userID uint64, limit, offset int) ([]*models.Transaction, error) {
	return []*models.Transaction{}, nil
}

type fakeConsumer struct{}

func (c fakeConsumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRunPickupAPI_HealthServed(t *testing.T) {
	log := slog.Default()
	svc := requests.New(&fakeRepo{}, nil, nil, nil, log, "t", time.Minute, time.Hour)
	api := requestsapi.New(svc, &fakeUsers{}, nil, log, requestsapi.Options{JWTSecret: "s"})
	notif := notifier.New(mailerfake.New(), log, "admin@ecocycle.io")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	opts := pickupAPIOpts{
		httpAddr:      "127.0.0.1:0",
		topic:         "t",
		consumerGroup: "g",
		onListen:      func(httpAddr string) { addrCh <- httpAddr },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- runPickupAPI(ctx, opts, api.Router(), notif, fakeConsumer{})
	}()

	httpAddr := <-addrCh

	resp, err := http.Get("http://" + httpAddr + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	require.Contains(t, string(body), `"ok"`)

	cancel()

	select {
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting server to stop")
	case err := <-errCh:
		require.Error(t, err)
	}
}
