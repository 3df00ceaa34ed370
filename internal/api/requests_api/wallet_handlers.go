package requests_api

import (
	"net/http"

	"github.com/EcoCycle/PickupDesk/internal/models"
)

func (s *Server) walletOwnerAllowed(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	claims := claimsFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return 0, false
	}
	if claims.Role != models.RoleAdmin && claims.UserID != id {
		writeError(w, http.StatusForbidden, "not_owner")
		return 0, false
	}
	return id, true
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.walletOwnerAllowed(w, r)
	if !ok {
		return
	}
	wallet, err := s.users.GetWallet(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := s.walletOwnerAllowed(w, r)
	if !ok {
		return
	}
	txs, err := s.users.ListTransactions(r.Context(), id, queryInt(r, "limit", 100), queryInt(r, "offset", 0))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}
