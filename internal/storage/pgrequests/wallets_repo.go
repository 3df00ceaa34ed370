package pgrequests

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/EcoCycle/PickupDesk/internal/models"
)

var ErrWalletNotFound = errors.New("wallet not found")

func (s *Storage) GetWallet(ctx context.Context, userID uint64) (*models.Wallet, error) {
	var w models.Wallet
	err := s.db.QueryRow(ctx, `
SELECT id, user_id, balance, updated_at FROM wallets WHERE user_id = $1
`, userID).Scan(&w.ID, &w.UserID, &w.Balance, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select wallet")
	}
	return &w, nil
}

func (s *Storage) ListTransactions(ctx context.Context, userID uint64, limit, offset int) ([]*models.Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT id, user_id, request_id, amount, type, status, created_at
FROM transactions
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`, userID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select transactions")
	}
	defer rows.Close()

	out := make([]*models.Transaction, 0)
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.RequestID, &t.Amount, &t.Type, &t.Status, &t.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan transaction")
		}
		out = append(out, &t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
