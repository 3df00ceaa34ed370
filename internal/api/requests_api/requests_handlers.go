package requests_api

import (
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/EcoCycle/PickupDesk/internal/lifecycle"
	"github.com/EcoCycle/PickupDesk/internal/models"
	"github.com/EcoCycle/PickupDesk/internal/services/requests"
	"github.com/EcoCycle/PickupDesk/internal/storage/pgrequests"
)

type submitRequest struct {
	DeviceType      string   `json:"deviceType"`
	Brand           string   `json:"brand"`
	Model           string   `json:"model"`
	DeviceCondition string   `json:"deviceCondition"`
	Qty             int32    `json:"qty"`
	PickupAddress   string   `json:"pickupAddress"`
	Remarks         string   `json:"remarks"`
	ImagePaths      []string `json:"imagePaths"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	owner, err := s.users.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	var in submitRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(s.opts.MaxUploadSize); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_multipart")
			return
		}
		qty, _ := strconv.Atoi(r.FormValue("qty"))
		in = submitRequest{
			DeviceType:      r.FormValue("deviceType"),
			Brand:           r.FormValue("brand"),
			Model:           r.FormValue("model"),
			DeviceCondition: r.FormValue("deviceCondition"),
			Qty:             int32(qty),
			PickupAddress:   r.FormValue("pickupAddress"),
			Remarks:         r.FormValue("remarks"),
		}
		if r.MultipartForm != nil {
			for _, fh := range r.MultipartForm.File["images"] {
				path, err := s.saveUpload(fh)
				if err != nil {
					s.writeServiceError(w, err)
					return
				}
				in.ImagePaths = append(in.ImagePaths, path)
			}
		}
	} else {
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body")
			return
		}
	}

	created, err := s.svc.Submit(r.Context(), models.RequestCreateInput{
		UserID: owner.ID, UserName: owner.Name, UserEmail: owner.Email,
		DeviceType: in.DeviceType, Brand: in.Brand, Model: in.Model,
		DeviceCondition: strings.ToUpper(in.DeviceCondition), Qty: in.Qty,
		PickupAddress: in.PickupAddress, Remarks: in.Remarks,
		ImagePaths: in.ImagePaths,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, requests.Decorate(created, claims.Role))
}

// saveUpload кладёт файл в uploadDir под uuid-префиксом, в записи заявки
// остаётся относительный путь uploads/<имя>.
func (s *Server) saveUpload(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", errors.Wrap(err, "open upload")
	}
	defer src.Close()

	name := uuid.NewString() + "_" + filepath.Base(fh.Filename)
	if err := os.MkdirAll(s.opts.UploadDir, 0o755); err != nil {
		return "", errors.Wrap(err, "mkdir uploads")
	}
	dst, err := os.Create(filepath.Join(s.opts.UploadDir, name))
	if err != nil {
		return "", errors.Wrap(err, "create upload")
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", errors.Wrap(err, "write upload")
	}
	return "uploads/" + name, nil
}

func (s *Server) handleListMine(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	userID, ok := pathID(r, "userId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return
	}
	if claims.Role != models.RoleAdmin && claims.UserID != userID {
		writeError(w, http.StatusForbidden, "not_owner")
		return
	}

	list, err := s.svc.List(r.Context(), pgrequests.RequestFilter{
		UserID: userID,
		Limit:  queryInt(r, "limit", 100),
		Offset: queryInt(r, "offset", 0),
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decorateAll(list, claims.Role))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return
	}

	req, err := s.svc.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if !canView(req, claims.UserID, claims.Role) {
		writeError(w, http.StatusForbidden, "not_owner")
		return
	}
	writeJSON(w, http.StatusOK, requests.Decorate(req, claims.Role))
}

func canView(r *models.PickupRequest, userID uint64, role string) bool {
	switch role {
	case models.RoleAdmin:
		return true
	case models.RoleUser:
		return r.UserID == userID
	case models.RolePickup:
		return r.PickupPersonnelID != nil && *r.PickupPersonnelID == userID
	}
	return false
}

func (s *Server) handleListAll(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	list, err := s.svc.List(r.Context(), pgrequests.RequestFilter{
		Limit:  queryInt(r, "limit", 100),
		Offset: queryInt(r, "offset", 0),
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decorateAll(list, claims.Role))
}

func (s *Server) handleListByStatus(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	status := strings.ToUpper(chi.URLParam(r, "status"))
	switch status {
	case lifecycle.StatusPending, lifecycle.StatusApproved, lifecycle.StatusRejected,
		lifecycle.StatusScheduled, lifecycle.StatusOTPRequested, lifecycle.StatusCompleted:
	default:
		writeError(w, http.StatusBadRequest, "invalid_status")
		return
	}

	list, err := s.svc.List(r.Context(), pgrequests.RequestFilter{
		Status: status,
		Limit:  queryInt(r, "limit", 100),
		Offset: queryInt(r, "offset", 0),
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decorateAll(list, claims.Role))
}

func (s *Server) handleListAssigned(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	personnelID := uint64(queryInt(r, "personnelId", 0))
	if personnelID == 0 {
		personnelID = claims.UserID
	}
	if personnelID != claims.UserID {
		writeError(w, http.StatusForbidden, "not_assigned")
		return
	}

	list, err := s.svc.List(r.Context(), pgrequests.RequestFilter{
		PersonnelID: personnelID,
		Limit:       queryInt(r, "limit", 100),
		Offset:      queryInt(r, "offset", 0),
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decorateAll(list, claims.Role))
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return
	}
	var in struct {
		AllocatedRange string `json:"allocatedRange"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	req, err := s.svc.Approve(r.Context(), id, in.AllocatedRange)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requests.Decorate(req, claims.Role))
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return
	}
	var in struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	req, err := s.svc.Reject(r.Context(), id, in.Reason)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requests.Decorate(req, claims.Role))
}

type scheduleRequest struct {
	PickupDateTime    time.Time `json:"pickupDateTime"`
	PickupPersonnelID uint64    `json:"pickupPersonnelId"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return
	}
	var in scheduleRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	// имя и почта берутся из справочника, а не из тела запроса
	p, err := s.users.GetUserByID(r.Context(), in.PickupPersonnelID)
	if err != nil || p.Role != models.RolePickup {
		writeError(w, http.StatusBadRequest, "invalid_personnel")
		return
	}

	req, err := s.svc.Schedule(r.Context(), id, models.ScheduleInput{
		PickupDateTime:       in.PickupDateTime,
		PickupPersonnelID:    p.ID,
		PickupPersonnelName:  p.Name,
		PickupPersonnelEmail: p.Email,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requests.Decorate(req, claims.Role))
}

func (s *Server) handlePickupResponse(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return
	}
	var in struct {
		Response string `json:"response"`
		Reason   string `json:"reason"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	var req *models.PickupRequest
	var err error
	switch strings.ToUpper(in.Response) {
	case "ACCEPT":
		req, err = s.svc.AcceptPickup(r.Context(), id, claims.UserID)
	case "REJECT":
		req, err = s.svc.RejectPickup(r.Context(), id, claims.UserID, in.Reason)
	default:
		writeError(w, http.StatusBadRequest, "invalid_response")
		return
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requests.Decorate(req, claims.Role))
}

func (s *Server) handleRequestCompletion(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return
	}

	req, err := s.svc.RequestOTP(r.Context(), id, claims.UserID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requests.Decorate(req, claims.Role))
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return
	}
	var in struct {
		OTP    string  `json:"otp"`
		Amount float64 `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	req, err := s.svc.VerifyAndComplete(r.Context(), id, claims.UserID, in.OTP, in.Amount)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requests.Decorate(req, claims.Role))
}

func decorateAll(list []*models.PickupRequest, role string) []*models.PickupRequest {
	for _, r := range list {
		requests.Decorate(r, role)
	}
	return list
}
