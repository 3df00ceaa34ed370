package requests_api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/EcoCycle/PickupDesk/internal/auth"
	"github.com/EcoCycle/PickupDesk/internal/models"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	City     string `json:"city"`
}

type userView struct {
	ID    uint64 `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func toUserView(u *models.User) userView {
	return userView{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
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
		Role: models.RoleUser, PasswordHash: hash,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "registration successful",
		"user":    toUserView(u),
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if s.rl != nil {
		key := fmt.Sprintf("rl:login:%s", in.Email)
		allowed, _, err := s.rl.Allow(r.Context(), key, s.opts.LoginPerMin, time.Minute)
		if err == nil && !allowed {
			writeError(w, http.StatusTooManyRequests, "too_many_attempts")
			return
		}
	}

	u, err := s.users.GetUserByEmail(r.Context(), in.Email)
	if err != nil || !auth.CheckPassword(u.PasswordHash, in.Password) {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	token, err := auth.NewAccessToken(s.opts.JWTSecret, s.opts.JWTIssuer, s.opts.TokenTTL, auth.Claims{
		UserID: u.ID, Email: u.Email, Role: u.Role,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "login successful",
		"token":   token,
		"user":    toUserView(u),
	})
}
