package pgrequests

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/EcoCycle/PickupDesk/internal/lifecycle"
	"github.com/EcoCycle/PickupDesk/internal/models"
)

var ErrRequestNotFound = errors.New("request not found")

const requestColumns = `
  id, user_id, user_name, user_email,
  device_type, brand, model, device_condition, qty,
  pickup_address, remarks, image_paths,
  status, rejection_reason, allocated_range,
  payment_amount, payment_status,
  pickup_personnel_id, pickup_personnel_name, pickup_personnel_email,
  pickup_date_time, pickup_response_status,
  pickup_assigned_at, pickup_responded_at, pickup_response_deadline,
  created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.PickupRequest, error) {
	var r models.PickupRequest
	var imagePaths []byte
	if err := row.Scan(
		&r.RequestID, &r.UserID, &r.UserName, &r.UserEmail,
		&r.DeviceType, &r.Brand, &r.Model, &r.DeviceCondition, &r.Qty,
		&r.PickupAddress, &r.Remarks, &imagePaths,
		&r.Status, &r.RejectionReason, &r.AllocatedRange,
		&r.PaymentAmount, &r.PaymentStatus,
		&r.PickupPersonnelID, &r.PickupPersonnelName, &r.PickupPersonnelEmail,
		&r.PickupDateTime, &r.PickupResponseStatus,
		&r.PickupAssignedAt, &r.PickupRespondedAt, &r.PickupResponseDeadline,
		&r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(imagePaths) > 0 {
		if err := json.Unmarshal(imagePaths, &r.ImagePaths); err != nil {
			return nil, errors.Wrap(err, "decode image paths")
		}
	}
	return &r, nil
}

func (s *Storage) CreateRequest(ctx context.Context, in models.RequestCreateInput) (*models.PickupRequest, error) {
	now := time.Now().UTC()

	var imagePaths []byte
	if len(in.ImagePaths) > 0 {
		b, err := json.Marshal(in.ImagePaths)
		if err != nil {
			return nil, errors.Wrap(err, "encode image paths")
		}
		imagePaths = b
	}

	row := s.db.QueryRow(ctx, `
INSERT INTO requests (
  user_id, user_name, user_email,
  device_type, brand, model, device_condition, qty,
  pickup_address, remarks, image_paths,
  status, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)
RETURNING `+requestColumns,
		in.UserID, in.UserName, in.UserEmail,
		in.DeviceType, in.Brand, in.Model, in.DeviceCondition, in.Qty,
		in.PickupAddress, in.Remarks, imagePaths,
		lifecycle.StatusPending, now)

	r, err := scanRequest(row)
	if err != nil {
		return nil, errors.Wrap(err, "insert request")
	}
	return r, nil
}

func (s *Storage) GetRequestByID(ctx context.Context, id uint64) (*models.PickupRequest, error) {
	row := s.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1`, id)
	r, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select request")
	}
	return r, nil
}

// RequestFilter — выборки для трёх ролей: свои заявки, вся очередь (с
// необязательным статусом), назначенные персоналу.
type RequestFilter struct {
	UserID      uint64
	PersonnelID uint64
	Status      string
	Limit       int
	Offset      int
}

func (s *Storage) ListRequests(ctx context.Context, f RequestFilter) ([]*models.PickupRequest, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := `SELECT ` + requestColumns + ` FROM requests WHERE 1=1`
	args := []any{}
	if f.UserID != 0 {
		args = append(args, f.UserID)
		q += ` AND user_id = $` + strconv.Itoa(len(args))
	}
	if f.PersonnelID != 0 {
		args = append(args, f.PersonnelID)
		q += ` AND pickup_personnel_id = $` + strconv.Itoa(len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		q += ` AND status = $` + strconv.Itoa(len(args))
	}
	args = append(args, f.Limit)
	q += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args))
	args = append(args, f.Offset)
	q += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select requests")
	}
	defer rows.Close()

	out := make([]*models.PickupRequest, 0)
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan request")
		}
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}


// UpdateRequest перечитывает запись под FOR UPDATE, применяет mutate и
// пишет результат в той же транзакции. Гварды переходов проверяются
// против строки из БД, а не против снапшота клиента.
func (s *Storage) UpdateRequest(ctx context.Context, id uint64, mutate func(*models.PickupRequest) error) (*models.PickupRequest, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	r, err := s.mutateInTx(ctx, tx, id, mutate)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return r, nil
}

// CompleteWithCredit выполняет переход (обычно в COMPLETED) и атомарно
// зачисляет paymentAmount на кошелёк владельца, фиксируя транзакцию
// типа CREDIT. Либо всё, либо ничего.
func (s *Storage) CompleteWithCredit(ctx context.Context, id uint64, mutate func(*models.PickupRequest) error) (*models.PickupRequest, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	r, err := s.mutateInTx(ctx, tx, id, mutate)
	if err != nil {
		return nil, err
	}
	if r.PaymentAmount == nil {
		return nil, errors.New("complete without payment amount")
	}

	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `
INSERT INTO wallets (user_id, balance, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id)
DO UPDATE SET balance = wallets.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
`, r.UserID, *r.PaymentAmount, now)
	if err != nil {
		return nil, errors.Wrap(err, "credit wallet")
	}

	_, err = tx.Exec(ctx, `
INSERT INTO transactions (user_id, request_id, amount, type, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, r.UserID, r.RequestID, *r.PaymentAmount, models.TransactionTypeCredit, models.TransactionStatusSuccess, now)
	if err != nil {
		return nil, errors.Wrap(err, "insert transaction")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return r, nil
}

func (s *Storage) mutateInTx(ctx context.Context, tx pgx.Tx, id uint64, mutate func(*models.PickupRequest) error) (*models.PickupRequest, error) {
	row := tx.QueryRow(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1 FOR UPDATE`, id)
	r, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select request for update")
	}

	if err := mutate(r); err != nil {
		return nil, err
	}
	// Несогласованную запись не пишем: mutate обязан оставить поля
	// в соответствии со статусом.
	if err := lifecycle.CheckRecord(r); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
UPDATE requests
SET
  status = $2,
  rejection_reason = $3,
  allocated_range = $4,
  payment_amount = $5,
  payment_status = $6,
  pickup_personnel_id = $7,
  pickup_personnel_name = $8,
  pickup_personnel_email = $9,
  pickup_date_time = $10,
  pickup_response_status = $11,
  pickup_assigned_at = $12,
  pickup_responded_at = $13,
  pickup_response_deadline = $14,
  updated_at = $15
WHERE id = $1
`, r.RequestID,
		r.Status, r.RejectionReason, r.AllocatedRange,
		r.PaymentAmount, r.PaymentStatus,
		r.PickupPersonnelID, r.PickupPersonnelName, r.PickupPersonnelEmail,
		r.PickupDateTime, r.PickupResponseStatus,
		r.PickupAssignedAt, r.PickupRespondedAt, r.PickupResponseDeadline,
		r.UpdatedAt.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "update request")
	}
	return r, nil
}

// ClaimExpiredAssignments выбирает заявки, по которым персонал не ответил
// до дедлайна, и возвращает их в очередь админа. SELECT ... FOR UPDATE
// SKIP LOCKED позволяет гонять несколько воркеров без двойной обработки.
// Возвращает снимки заявок до сброса назначения (для писем).
func (s *Storage) ClaimExpiredAssignments(ctx context.Context, now time.Time, limit int) ([]*models.PickupRequest, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT `+requestColumns+`
FROM requests
WHERE status = $1
  AND pickup_response_status = $2
  AND pickup_response_deadline <= $3
ORDER BY pickup_response_deadline ASC
LIMIT $4
FOR UPDATE SKIP LOCKED
`, lifecycle.StatusScheduled, lifecycle.ResponsePending, now.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "select expired assignments")
	}

	var expired []*models.PickupRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan expired assignment")
		}
		expired = append(expired, r)
	}
	if rows.Err() != nil {
		rows.Close()
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	rows.Close()

	for _, r := range expired {
		_, err := tx.Exec(ctx, `
UPDATE requests
SET
  status = $2,
  allocated_range = NULL,
  pickup_personnel_id = NULL,
  pickup_personnel_name = NULL,
  pickup_personnel_email = NULL,
  pickup_date_time = NULL,
  pickup_response_status = NULL,
  pickup_assigned_at = NULL,
  pickup_responded_at = NULL,
  pickup_response_deadline = NULL,
  updated_at = now()
WHERE id = $1
`, r.RequestID, lifecycle.StatusPending)
		if err != nil {
			return nil, errors.Wrap(err, "bounce expired assignment")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return expired, nil
}
