package models

import "time"

// Роли пользователей. PICKUP — выездной персонал.
const (
	RoleUser   = "USER"
	RoleAdmin  = "ADMIN"
	RolePickup = "PICKUP"
)

type User struct {
	ID           uint64    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	Address      string    `json:"address,omitempty"`
	City         string    `json:"city,omitempty"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Wallet struct {
	ID        uint64    `json:"id"`
	UserID    uint64    `json:"userId"`
	Balance   float64   `json:"balance"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Типы и статусы операций кошелька.
const (
	TransactionTypeCredit    = "CREDIT"
	TransactionTypeDebit     = "DEBIT"
	TransactionStatusSuccess = "SUCCESS"
	TransactionStatusFailed  = "FAILED"
)

type Transaction struct {
	ID        uint64    `json:"id"`
	UserID    uint64    `json:"userId"`
	RequestID uint64    `json:"requestId"`
	Amount    float64   `json:"amount"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}
