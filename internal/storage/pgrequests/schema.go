package pgrequests

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS users (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL,
  email TEXT NOT NULL UNIQUE,
  phone TEXT NOT NULL DEFAULT '',
  address TEXT NOT NULL DEFAULT '',
  city TEXT NOT NULL DEFAULT '',
  role TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS wallets (
  id BIGSERIAL PRIMARY KEY,
  user_id BIGINT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
  balance DOUBLE PRECISION NOT NULL DEFAULT 0,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS transactions (
  id BIGSERIAL PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  request_id BIGINT NOT NULL,
  amount DOUBLE PRECISION NOT NULL,
  type TEXT NOT NULL,
  status TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_user_id ON transactions(user_id, created_at DESC)`,
		`
CREATE TABLE IF NOT EXISTS requests (
  id BIGSERIAL PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(id),
  user_name TEXT NOT NULL,
  user_email TEXT NOT NULL,
  device_type TEXT NOT NULL,
  brand TEXT NOT NULL,
  model TEXT NOT NULL,
  device_condition TEXT NOT NULL,
  qty INT NOT NULL,
  pickup_address TEXT NOT NULL,
  remarks TEXT NOT NULL DEFAULT '',
  image_paths JSONB NULL,
  status TEXT NOT NULL,
  rejection_reason TEXT NULL,
  allocated_range TEXT NULL,
  payment_amount DOUBLE PRECISION NULL,
  payment_status TEXT NULL,
  pickup_personnel_id BIGINT NULL,
  pickup_personnel_name TEXT NULL,
  pickup_personnel_email TEXT NULL,
  pickup_date_time TIMESTAMPTZ NULL,
  pickup_response_status TEXT NULL,
  pickup_assigned_at TIMESTAMPTZ NULL,
  pickup_responded_at TIMESTAMPTZ NULL,
  pickup_response_deadline TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_user_id ON requests(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_personnel ON requests(pickup_personnel_id) WHERE pickup_personnel_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_requests_response_deadline ON requests(pickup_response_deadline) WHERE pickup_response_deadline IS NOT NULL`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
