package messages

import "time"

// Типы событий жизненного цикла заявки. Нотификатор выбирает шаблон
// письма по типу, ничего не выводя из текста.
const (
	EventSubmitted       = "SUBMITTED"
	EventApproved        = "APPROVED"
	EventRejected        = "REJECTED"
	EventScheduled       = "SCHEDULED"
	EventPickupAccepted  = "PICKUP_ACCEPTED"
	EventPickupRejected  = "PICKUP_REJECTED"
	EventPickupExpired   = "PICKUP_EXPIRED"
	EventOTPRequested    = "OTP_REQUESTED"
	EventCompleted       = "COMPLETED"
)

// RequestUpdated публикуется после каждого успешного перехода.
type RequestUpdated struct {
	RequestID uint64    `json:"request_id"`
	Event     string    `json:"event"`
	Status    string    `json:"status"`
	At        time.Time `json:"at"`

	UserID    uint64 `json:"user_id"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`

	DeviceType string `json:"device_type,omitempty"`
	Brand      string `json:"brand,omitempty"`

	AllocatedRange  string `json:"allocated_range,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`

	PickupPersonnelName  string     `json:"pickup_personnel_name,omitempty"`
	PickupPersonnelEmail string     `json:"pickup_personnel_email,omitempty"`
	PickupDateTime       *time.Time `json:"pickup_date_time,omitempty"`
	PickupAddress        string     `json:"pickup_address,omitempty"`

	// Код доставляется пользователю только письмом, в API-ответы не попадает.
	OTP string `json:"otp,omitempty"`

	PaymentAmount float64 `json:"payment_amount,omitempty"`
}
