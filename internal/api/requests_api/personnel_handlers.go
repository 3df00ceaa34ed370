package requests_api

import (
	"net/http"
	"strings"

	"github.com/EcoCycle/PickupDesk/internal/auth"
	"github.com/EcoCycle/PickupDesk/internal/models"
)

type personnelView struct {
	ID      uint64 `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
}

func toPersonnelView(u *models.User) personnelView {
	return personnelView{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone, Address: u.Address, City: u.City}
}

func (s *Server) handleListPersonnel(w http.ResponseWriter, r *http.Request) {
	list, err := s.users.ListUsersByRole(r.Context(), models.RolePickup)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	out := make([]personnelView, 0, len(list))
	for _, u := range list {
		out = append(out, toPersonnelView(u))
	}
	writeJSON(w, http.StatusOK, out)
}

type createPersonnelRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	City     string `json:"city"`
}

// Персонал — это пользователь с ролью PICKUP: та же таблица, тот же логин.
func (s *Server) handleCreatePersonnel(w http.ResponseWriter, r *http.Request) {
	var in createPersonnelRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Name == "" || in.Email == "" || len(in.Password) < 6 {
		writeError(w, http.StatusBadRequest, "validation_failed")
		return
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	u, err := s.users.CreateUser(r.Context(), &models.User{
		Name: in.Name, Email: in.Email,
		Phone: in.Phone, Address: in.Address, City: in.City,
		Role: models.RolePickup, PasswordHash: hash,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPersonnelView(u))
}

func (s *Server) handleDeletePersonnel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return
	}

	u, err := s.users.GetUserByID(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if u.Role != models.RolePickup {
		writeError(w, http.StatusBadRequest, "invalid_personnel")
		return
	}

	if err := s.users.DeleteUser(r.Context(), id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
