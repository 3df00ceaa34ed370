package pgrequests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/EcoCycle/PickupDesk/internal/lifecycle"
	"github.com/EcoCycle/PickupDesk/internal/models"
)

func TestPGRequests_RepoFlow(t *testing.T) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "pickupdesk_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/pickupdesk_test?sslmode=disable"
	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)

	owner, err := st.CreateUser(ctx, &models.User{
		Name: "Ivan", Email: "ivan@example.com", Role: models.RoleUser, PasswordHash: "x",
	})
	require.NoError(t, err)
	require.NotZero(t, owner.ID)

	_, err = st.CreateUser(ctx, &models.User{
		Name: "Ivan2", Email: "ivan@example.com", Role: models.RoleUser, PasswordHash: "x",
	})
	require.ErrorIs(t, err, ErrEmailTaken)

	courier, err := st.CreateUser(ctx, &models.User{
		Name: "Petr", Email: "petr@example.com", Role: models.RolePickup, PasswordHash: "x",
	})
	require.NoError(t, err)

	// кошелёк заводится вместе с пользователем
	w, err := st.GetWallet(ctx, owner.ID)
	require.NoError(t, err)
	require.Zero(t, w.Balance)

	created, err := st.CreateRequest(ctx, models.RequestCreateInput{
		UserID: owner.ID, UserName: owner.Name, UserEmail: owner.Email,
		DeviceType: "LAPTOP", Brand: "Lenovo", Model: "T480",
		DeviceCondition: "WORKING", Qty: 1, PickupAddress: "Tverskaya 1",
		ImagePaths: []string{"uploads/a.jpg", "uploads/b.jpg"},
	})
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusPending, created.Status)
	require.Equal(t, []string{"uploads/a.jpg", "uploads/b.jpg"}, created.ImagePaths)

	_, err = st.GetRequestByID(ctx, created.RequestID+1000)
	require.ErrorIs(t, err, ErrRequestNotFound)

	// approve -> schedule с дедлайном в прошлом, чтобы проверить подборщик
	now := time.Now().UTC()
	_, err = st.UpdateRequest(ctx, created.RequestID, func(r *models.PickupRequest) error {
		return lifecycle.Approve(r, "500-700", now)
	})
	require.NoError(t, err)

	sched := models.ScheduleInput{
		PickupDateTime:       now.Add(24 * time.Hour),
		PickupPersonnelID:    courier.ID,
		PickupPersonnelName:  courier.Name,
		PickupPersonnelEmail: courier.Email,
	}
	_, err = st.UpdateRequest(ctx, created.RequestID, func(r *models.PickupRequest) error {
		return lifecycle.Schedule(r, sched, -time.Minute, now)
	})
	require.NoError(t, err)

	expired, err := st.ClaimExpiredAssignments(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, created.RequestID, expired[0].RequestID)

	bounced, err := st.GetRequestByID(ctx, created.RequestID)
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusPending, bounced.Status)
	require.Nil(t, bounced.PickupPersonnelID)
	require.Nil(t, bounced.AllocatedRange)
	require.NoError(t, lifecycle.CheckRecord(bounced))

	// нарушенный гвард не трогает запись
	_, err = st.UpdateRequest(ctx, created.RequestID, func(r *models.PickupRequest) error {
		return lifecycle.Complete(r, 100, now)
	})
	var viol *lifecycle.Violation
	require.ErrorAs(t, err, &viol)
	require.Equal(t, lifecycle.CodeIllegalTransition, viol.Code)

	// mutate, ломающий согласованность полей, хранилище отклоняет само
	_, err = st.UpdateRequest(ctx, created.RequestID, func(r *models.PickupRequest) error {
		amount := 100.0
		r.PaymentAmount = &amount
		return nil
	})
	require.ErrorAs(t, err, &viol)
	require.Equal(t, lifecycle.CodeInconsistentRecord, viol.Code)
	intact, err := st.GetRequestByID(ctx, created.RequestID)
	require.NoError(t, err)
	require.Nil(t, intact.PaymentAmount)

	// полный путь до COMPLETED
	_, err = st.UpdateRequest(ctx, created.RequestID, func(r *models.PickupRequest) error {
		return lifecycle.Approve(r, "500-700", now)
	})
	require.NoError(t, err)
	_, err = st.UpdateRequest(ctx, created.RequestID, func(r *models.PickupRequest) error {
		return lifecycle.Schedule(r, sched, 12*time.Hour, now)
	})
	require.NoError(t, err)
	_, err = st.UpdateRequest(ctx, created.RequestID, func(r *models.PickupRequest) error {
		return lifecycle.AcceptPickup(r, now)
	})
	require.NoError(t, err)
	_, err = st.UpdateRequest(ctx, created.RequestID, func(r *models.PickupRequest) error {
		return lifecycle.RequestOTP(r, now)
	})
	require.NoError(t, err)

	done, err := st.CompleteWithCredit(ctx, created.RequestID, func(r *models.PickupRequest) error {
		return lifecycle.Complete(r, 650, now)
	})
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusCompleted, done.Status)

	w, err = st.GetWallet(ctx, owner.ID)
	require.NoError(t, err)
	require.Equal(t, float64(650), w.Balance)

	txs, err := st.ListTransactions(ctx, owner.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, models.TransactionTypeCredit, txs[0].Type)
	require.Equal(t, models.TransactionStatusSuccess, txs[0].Status)
	require.Equal(t, created.RequestID, txs[0].RequestID)

	// фильтры выборки
	mine, err := st.ListRequests(ctx, RequestFilter{UserID: owner.ID})
	require.NoError(t, err)
	require.Len(t, mine, 1)

	assigned, err := st.ListRequests(ctx, RequestFilter{PersonnelID: courier.ID})
	require.NoError(t, err)
	require.Len(t, assigned, 1)

	completed, err := st.ListRequests(ctx, RequestFilter{Status: lifecycle.StatusCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 1)

	personnel, err := st.ListUsersByRole(ctx, models.RolePickup)
	require.NoError(t, err)
	require.Len(t, personnel, 1)
	require.Equal(t, courier.ID, personnel[0].ID)
}
