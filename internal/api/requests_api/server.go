// Package requests_api — REST-поверхность сервиса под /api.
// Обработчики тонкие: разбор запроса, проверка роли, вызов сервиса,
// выдача снапшота с availableActions под роль смотрящего.
package requests_api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/EcoCycle/PickupDesk/internal/auth"
	"github.com/EcoCycle/PickupDesk/internal/models"
	"github.com/EcoCycle/PickupDesk/internal/services/requests"
)

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uint64) (*models.User, error)
	ListUsersByRole(ctx context.Context, role string) ([]*models.User, error)
	DeleteUser(ctx context.Context, id uint64) error
	GetWallet(ctx context.Context, userID uint64) (*models.Wallet, error)
	ListTransactions(ctx context.Context, userID uint64, limit, offset int) ([]*models.Transaction, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Options struct {
	JWTSecret     string
	JWTIssuer     string
	TokenTTL      time.Duration
	UploadDir     string
	SwaggerPath   string
	LoginPerMin   int64
	MaxUploadSize int64
}

type Server struct {
	svc   *requests.Service
	users UserStore
	rl    RateLimiter
	log   *slog.Logger
	opts  Options
}

func New(svc *requests.Service, users UserStore, rl RateLimiter, log *slog.Logger, opts Options) *Server {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.JWTIssuer == "" {
		opts.JWTIssuer = "pickupdesk"
	}
	if opts.LoginPerMin <= 0 {
		opts.LoginPerMin = 10
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = 20 << 20
	}
	return &Server{svc: svc, users: users, rl: rl, log: log, opts: opts}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	if s.opts.SwaggerPath != "" {
		r.Get("/swagger.json", func(w http.ResponseWriter, req *http.Request) {
			http.ServeFile(w, req, s.opts.SwaggerPath)
		})
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/swagger.json")))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.With(s.requireRole(models.RoleUser)).Post("/ewaste/submit", s.handleSubmit)
			r.Get("/ewaste/user/{userId}", s.handleListMine)
			r.Get("/ewaste/{id}", s.handleGet)

			r.With(s.requireRole(models.RoleAdmin)).Get("/ewaste/admin/all", s.handleListAll)
			r.With(s.requireRole(models.RoleAdmin)).Get("/ewaste/admin/status/{status}", s.handleListByStatus)
			r.With(s.requireRole(models.RoleAdmin)).Put("/ewaste/{id}/approve", s.handleApprove)
			r.With(s.requireRole(models.RoleAdmin)).Put("/ewaste/{id}/reject", s.handleReject)
			r.With(s.requireRole(models.RoleAdmin)).Put("/ewaste/{id}/schedule", s.handleSchedule)

			r.With(s.requireRole(models.RolePickup)).Get("/ewaste/pickup-requests", s.handleListAssigned)
			r.With(s.requireRole(models.RolePickup)).Put("/ewaste/{id}/pickup-response", s.handlePickupResponse)
			r.With(s.requireRole(models.RolePickup)).Put("/ewaste/{id}/request-completion", s.handleRequestCompletion)
			r.With(s.requireRole(models.RolePickup)).Put("/ewaste/{id}/complete", s.handleComplete)

			r.With(s.requireRole(models.RoleAdmin)).Get("/pickup-personnels", s.handleListPersonnel)
			r.With(s.requireRole(models.RoleAdmin)).Post("/pickup-personnels", s.handleCreatePersonnel)
			r.With(s.requireRole(models.RoleAdmin)).Delete("/pickup-personnels/{id}", s.handleDeletePersonnel)

			r.Get("/users/{id}/wallet", s.handleWallet)
			r.Get("/users/{id}/transactions", s.handleTransactions)
		})
	})

	return r
}

// Auth

type claimsKey struct{}

// authMiddleware принимает Bearer JWT, а как fallback — Basic с парой
// email/пароль, которая сверяется с таблицей пользователей.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")

		if token := bearerToken(header); token != "" {
			claims, err := auth.ParseToken(s.opts.JWTSecret, token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid_token")
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if email, password, ok := basicCredentials(header); ok {
			u, err := s.users.GetUserByEmail(r.Context(), email)
			if err != nil || !auth.CheckPassword(u.PasswordHash, password) {
				writeError(w, http.StatusUnauthorized, "invalid_credentials")
				return
			}
			claims := &auth.Claims{UserID: u.ID, Email: u.Email, Role: u.Role}
			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		writeError(w, http.StatusUnauthorized, "missing_token")
	})
}

func (s *Server) requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := claimsFromContext(r.Context())
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "missing_token")
				return
			}
			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "role_not_allowed")
		})
	}
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func basicCredentials(header string) (string, string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "basic" {
		return "", "", false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(parts[1]))
	if err != nil {
		return "", "", false
	}
	creds := strings.SplitN(string(raw), ":", 2)
	if len(creds) != 2 {
		return "", "", false
	}
	return creds[0], creds[1], true
}

// Helpers

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func pathID(r *http.Request, name string) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
