package requests_api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/EcoCycle/PickupDesk/internal/lifecycle"
	"github.com/EcoCycle/PickupDesk/internal/otp"
	"github.com/EcoCycle/PickupDesk/internal/services/requests"
	"github.com/EcoCycle/PickupDesk/internal/storage/pgrequests"
)

// writeServiceError переводит ошибку сервиса в (HTTP-статус, машинный код).
// Клиент ветвится по коду, не по тексту.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var viol *lifecycle.Violation
	if errors.As(err, &viol) {
		switch viol.Code {
		case lifecycle.CodeIllegalTransition:
			writeError(w, http.StatusConflict, viol.Code)
		case lifecycle.CodeInconsistentRecord:
			writeError(w, http.StatusInternalServerError, viol.Code)
		default:
			writeError(w, http.StatusBadRequest, viol.Code)
		}
		return
	}

	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) {
		writeError(w, http.StatusBadRequest, "validation_failed")
		return
	}

	switch {
	case errors.Is(err, otp.ErrAlreadyRequested):
		writeError(w, http.StatusConflict, "otp_already_requested")
	case errors.Is(err, otp.ErrCodeMismatch):
		writeError(w, http.StatusBadRequest, "otp_mismatch")
	case errors.Is(err, otp.ErrCodeExpired):
		writeError(w, http.StatusBadRequest, "otp_expired")
	case errors.Is(err, otp.ErrTooManyAttempts):
		writeError(w, http.StatusTooManyRequests, "otp_too_many_attempts")
	case errors.Is(err, requests.ErrNotAssigned):
		writeError(w, http.StatusForbidden, "not_assigned")
	case errors.Is(err, pgrequests.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, "request_not_found")
	case errors.Is(err, pgrequests.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found")
	case errors.Is(err, pgrequests.ErrWalletNotFound):
		writeError(w, http.StatusNotFound, "wallet_not_found")
	case errors.Is(err, pgrequests.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken")
	default:
		s.log.Error("internal error", "err", err)
		writeError(w, http.StatusInternalServerError, "internal")
	}
}
