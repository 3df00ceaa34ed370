package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/EcoCycle/PickupDesk/internal/models"
)

// Статусы заявки. Сервер — единственный владелец поля status.
const (
	StatusPending      = "PENDING"
	StatusApproved     = "APPROVED"
	StatusRejected     = "REJECTED"
	StatusScheduled    = "SCHEDULED"
	StatusOTPRequested = "OTP_REQUESTED"
	StatusCompleted    = "COMPLETED"
)

// Ответ назначенного персонала на запланированный вывоз.
const (
	ResponsePending  = "PENDING"
	ResponseAccepted = "ACCEPTED"
	ResponseRejected = "REJECTED"
)

// Действия, которые роль может запросить над заявкой. Строки попадают
// в availableActions и в пути API, поэтому фиксированы.
const (
	ActionApprove    = "approve"
	ActionReject     = "reject"
	ActionSchedule   = "schedule"
	ActionAccept     = "accept"
	ActionRequestOTP = "requestOtp"
	ActionVerify     = "verify"
)

// Violation — структурированное нарушение правил жизненного цикла.
// Код машиночитаемый, без разбора текста на стороне клиента.
type Violation struct {
	Code    string
	Message string
}

func (v *Violation) Error() string { return v.Code + ": " + v.Message }

func violationf(code, format string, args ...any) *Violation {
	return &Violation{Code: code, Message: fmt.Sprintf(format, args...)}
}

const (
	CodeIllegalTransition  = "illegal_transition"
	CodeRangeRequired      = "allocated_range_required"
	CodeReasonRequired     = "reason_required"
	CodePersonnelIncomplete = "personnel_incomplete"
	CodeInvalidOTPFormat   = "invalid_otp_format"
	CodeInvalidAmount      = "invalid_amount"
	CodeInconsistentRecord = "inconsistent_record"
)

// ActionsFor возвращает набор действий, доступных роли над заявкой в её
// текущем состоянии. Единственное место, где закодирована таблица
// "статус x роль x ответ персонала" — обработчики и выдача используют её,
// собственных копий не держат.
func ActionsFor(status, role string, responseStatus *string) []string {
	resp := ResponsePending
	if responseStatus != nil {
		resp = *responseStatus
	}

	switch role {
	case models.RoleAdmin:
		switch status {
		case StatusPending:
			return []string{ActionApprove, ActionReject}
		case StatusApproved:
			return []string{ActionSchedule}
		}
	case models.RolePickup:
		switch status {
		case StatusScheduled:
			if resp == ResponseAccepted {
				return []string{ActionRequestOTP}
			}
			if resp == ResponsePending {
				return []string{ActionAccept, ActionReject}
			}
		case StatusOTPRequested:
			return []string{ActionVerify}
		}
	}
	return nil
}

// Allowed проверяет, что действие входит в поверхность роли для текущего
// состояния заявки.
func Allowed(r *models.PickupRequest, role, action string) bool {
	for _, a := range ActionsFor(r.Status, role, r.PickupResponseStatus) {
		if a == action {
			return true
		}
	}
	return false
}

func Terminal(status string) bool {
	return status == StatusRejected || status == StatusCompleted
}

// ValidOTP — ровно 6 десятичных цифр. Формат проверяется до любого
// обращения к хранилищу кода.
func ValidOTP(code string) bool {
	if len(code) != 6 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// Approve: PENDING -> APPROVED. allocatedRange для клиента непрозрачная
// обязательная строка.
func Approve(r *models.PickupRequest, allocatedRange string, now time.Time) error {
	if r.Status != StatusPending {
		return violationf(CodeIllegalTransition, "approve requires PENDING, got %s", r.Status)
	}
	allocatedRange = strings.TrimSpace(allocatedRange)
	if allocatedRange == "" {
		return violationf(CodeRangeRequired, "allocatedRange must not be empty")
	}
	r.Status = StatusApproved
	r.AllocatedRange = &allocatedRange
	r.UpdatedAt = now
	return nil
}

// Reject (админ): PENDING -> REJECTED, терминальное.
func Reject(r *models.PickupRequest, reason string, now time.Time) error {
	if r.Status != StatusPending {
		return violationf(CodeIllegalTransition, "reject requires PENDING, got %s", r.Status)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return violationf(CodeReasonRequired, "rejection reason must not be empty")
	}
	r.Status = StatusRejected
	r.RejectionReason = &reason
	r.UpdatedAt = now
	return nil
}

// Schedule: APPROVED -> SCHEDULED. Все четыре поля назначения ставятся
// вместе и ровно один раз; ответ персонала сбрасывается в PENDING.
func Schedule(r *models.PickupRequest, in models.ScheduleInput, responseDeadline time.Duration, now time.Time) error {
	if r.Status != StatusApproved {
		return violationf(CodeIllegalTransition, "schedule requires APPROVED, got %s", r.Status)
	}
	if in.PickupPersonnelID == 0 || strings.TrimSpace(in.PickupPersonnelName) == "" || strings.TrimSpace(in.PickupPersonnelEmail) == "" {
		return violationf(CodePersonnelIncomplete, "personnel id, name and email are required")
	}
	if in.PickupDateTime.IsZero() {
		return violationf(CodePersonnelIncomplete, "pickupDateTime is required")
	}

	dt := in.PickupDateTime.UTC()
	resp := ResponsePending
	deadline := now.Add(responseDeadline)

	r.Status = StatusScheduled
	r.PickupPersonnelID = &in.PickupPersonnelID
	r.PickupPersonnelName = &in.PickupPersonnelName
	r.PickupPersonnelEmail = &in.PickupPersonnelEmail
	r.PickupDateTime = &dt
	r.PickupResponseStatus = &resp
	r.PickupAssignedAt = &now
	r.PickupResponseDeadline = &deadline
	r.PickupRespondedAt = nil
	r.UpdatedAt = now
	return nil
}

// AcceptPickup: персонал подтверждает назначение, статус заявки не меняется.
func AcceptPickup(r *models.PickupRequest, now time.Time) error {
	if r.Status != StatusScheduled {
		return violationf(CodeIllegalTransition, "accept requires SCHEDULED, got %s", r.Status)
	}
	if r.PickupResponseStatus == nil || *r.PickupResponseStatus != ResponsePending {
		return violationf(CodeIllegalTransition, "pickup already responded")
	}
	resp := ResponseAccepted
	r.PickupResponseStatus = &resp
	r.PickupRespondedAt = &now
	r.UpdatedAt = now
	return nil
}

// RejectPickup: персонал отказывается, заявка возвращается в очередь админа
// (PENDING), назначение полностью снимается. Причина не хранится на записи —
// она уходит в событие и письмо админу. allocatedRange тоже снимается:
// в PENDING заявка проходит аппрув заново.
func RejectPickup(r *models.PickupRequest, reason string, now time.Time) error {
	if r.Status != StatusScheduled {
		return violationf(CodeIllegalTransition, "reject requires SCHEDULED, got %s", r.Status)
	}
	if r.PickupResponseStatus == nil || *r.PickupResponseStatus != ResponsePending {
		return violationf(CodeIllegalTransition, "pickup already responded")
	}
	if strings.TrimSpace(reason) == "" {
		return violationf(CodeReasonRequired, "pickup rejection reason must not be empty")
	}
	ClearAssignment(r)
	r.AllocatedRange = nil
	r.Status = StatusPending
	r.UpdatedAt = now
	return nil
}

// ClearAssignment снимает все поля назначения и ответ персонала.
func ClearAssignment(r *models.PickupRequest) {
	r.PickupPersonnelID = nil
	r.PickupPersonnelName = nil
	r.PickupPersonnelEmail = nil
	r.PickupDateTime = nil
	r.PickupResponseStatus = nil
	r.PickupAssignedAt = nil
	r.PickupResponseDeadline = nil
	r.PickupRespondedAt = nil
}

// RequestOTP: SCHEDULED+ACCEPTED -> OTP_REQUESTED. Сам код живёт в otp-сервисе,
// здесь только смена статуса.
func RequestOTP(r *models.PickupRequest, now time.Time) error {
	if r.Status != StatusScheduled {
		return violationf(CodeIllegalTransition, "requestOtp requires SCHEDULED, got %s", r.Status)
	}
	if r.PickupResponseStatus == nil || *r.PickupResponseStatus != ResponseAccepted {
		return violationf(CodeIllegalTransition, "requestOtp requires accepted pickup response")
	}
	r.Status = StatusOTPRequested
	r.UpdatedAt = now
	return nil
}

// Complete: OTP_REQUESTED -> COMPLETED. Проверка самого кода — забота
// otp-сервиса; здесь гард по статусу и сумме.
func Complete(r *models.PickupRequest, amount float64, now time.Time) error {
	if r.Status != StatusOTPRequested {
		return violationf(CodeIllegalTransition, "complete requires OTP_REQUESTED, got %s", r.Status)
	}
	if amount <= 0 {
		return violationf(CodeInvalidAmount, "amount must be positive")
	}
	paid := "PAID"
	r.Status = StatusCompleted
	r.PaymentAmount = &amount
	r.PaymentStatus = &paid
	r.UpdatedAt = now
	return nil
}

// CheckRecord проверяет согласованность статуса и опциональных полей.
// Хранилище не должно отдавать запись, нарушающую эти правила.
func CheckRecord(r *models.PickupRequest) error {
	switch r.Status {
	case StatusPending, StatusApproved, StatusRejected, StatusScheduled, StatusOTPRequested, StatusCompleted:
	default:
		return violationf(CodeInconsistentRecord, "unknown status %q", r.Status)
	}

	if r.Status == StatusRejected && (r.RejectionReason == nil || *r.RejectionReason == "") {
		return violationf(CodeInconsistentRecord, "REJECTED requires rejectionReason")
	}
	if r.Status != StatusRejected && r.RejectionReason != nil {
		return violationf(CodeInconsistentRecord, "rejectionReason set while status=%s", r.Status)
	}

	switch r.Status {
	case StatusApproved, StatusScheduled, StatusOTPRequested, StatusCompleted:
		if r.AllocatedRange == nil || *r.AllocatedRange == "" {
			return violationf(CodeInconsistentRecord, "%s requires allocatedRange", r.Status)
		}
	default:
		if r.AllocatedRange != nil {
			return violationf(CodeInconsistentRecord, "allocatedRange set while status=%s", r.Status)
		}
	}

	switch r.Status {
	case StatusScheduled, StatusOTPRequested, StatusCompleted:
		if r.PickupPersonnelID == nil || r.PickupPersonnelName == nil || r.PickupPersonnelEmail == nil || r.PickupDateTime == nil {
			return violationf(CodeInconsistentRecord, "%s requires full pickup assignment", r.Status)
		}
	default:
		if r.PickupPersonnelID != nil || r.PickupDateTime != nil {
			return violationf(CodeInconsistentRecord, "assignment set while status=%s", r.Status)
		}
	}

	if r.Status == StatusCompleted {
		if r.PaymentAmount == nil || *r.PaymentAmount <= 0 {
			return violationf(CodeInconsistentRecord, "COMPLETED requires positive paymentAmount")
		}
	} else if r.PaymentAmount != nil {
		return violationf(CodeInconsistentRecord, "paymentAmount set while status=%s", r.Status)
	}

	return nil
}
