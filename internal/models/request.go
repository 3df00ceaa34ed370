package models

import "time"

type PickupRequest struct {
	RequestID uint64 `json:"requestId"`
	UserID    uint64 `json:"userId"`
	UserName  string `json:"userName"`
	UserEmail string `json:"userEmail"`

	DeviceType      string   `json:"deviceType"`
	Brand           string   `json:"brand"`
	Model           string   `json:"model"`
	DeviceCondition string   `json:"deviceCondition"`
	Qty             int32    `json:"qty"`
	PickupAddress   string   `json:"pickupAddress"`
	Remarks         string   `json:"remarks,omitempty"`
	ImagePaths      []string `json:"imagePaths,omitempty"`

	Status          string  `json:"status"`
	RejectionReason *string `json:"rejectionReason,omitempty"`
	AllocatedRange  *string `json:"allocatedRange,omitempty"`
	PaymentAmount   *float64 `json:"paymentAmount,omitempty"`
	PaymentStatus   *string `json:"paymentStatus,omitempty"`

	PickupPersonnelID    *uint64    `json:"pickupPersonnelId,omitempty"`
	PickupPersonnelName  *string    `json:"pickupPersonnelName,omitempty"`
	PickupPersonnelEmail *string    `json:"pickupPersonnelEmail,omitempty"`
	PickupDateTime       *time.Time `json:"pickupDateTime,omitempty"`

	PickupResponseStatus   *string    `json:"pickupResponseStatus,omitempty"`
	PickupAssignedAt       *time.Time `json:"pickupAssignedAt,omitempty"`
	PickupRespondedAt      *time.Time `json:"pickupRespondedAt,omitempty"`
	PickupResponseDeadline *time.Time `json:"pickupResponseDeadline,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Заполняется на выдаче из lifecycle.ActionsFor, в БД не хранится.
	AvailableActions []string `json:"availableActions,omitempty"`
}

type RequestCreateInput struct {
	UserID    uint64 `validate:"required"`
	UserName  string `validate:"required"`
	UserEmail string `validate:"required,email"`

	DeviceType      string `validate:"required"`
	Brand           string `validate:"required"`
	Model           string `validate:"required"`
	DeviceCondition string `validate:"required,oneof=NEW WORKING DAMAGED DEAD"`
	Qty             int32  `validate:"required,gt=0"`
	PickupAddress   string `validate:"required"`
	Remarks         string
	ImagePaths      []string
}

type ScheduleInput struct {
	PickupDateTime       time.Time
	PickupPersonnelID    uint64
	PickupPersonnelName  string
	PickupPersonnelEmail string
}
