package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/polytracker/scanner/internal/service"
)

// handleListTrackedWallets handles GET /api/tracked/wallets?all=true
func (s *Server) handleListTrackedWallets(w http.ResponseWriter, r *http.Request) {
	wallets, err := s.tracking.ListWallets(r.Context(), queryBool(r, "all"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"wallets": wallets,
		"count":   len(wallets),
	})
}

// handleAddTrackedWallet handles POST /api/tracked/wallets
func (s *Server) handleAddTrackedWallet(w http.ResponseWriter, r *http.Request) {
	var req service.AddWalletInput
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	tw, err := s.tracking.AddWallet(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, tw)
}

// handleRemoveTrackedWallet handles DELETE /api/tracked/wallets/{wallet}
func (s *Server) handleRemoveTrackedWallet(w http.ResponseWriter, r *http.Request) {
	if err := s.tracking.RemoveWallet(r.Context(), mux.Vars(r)["wallet"]); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListTrackedMarkets handles GET /api/tracked/markets?all=true
func (s *Server) handleListTrackedMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.tracking.ListMarkets(r.Context(), queryBool(r, "all"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"markets": markets,
		"count":   len(markets),
	})
}

// handleAddTrackedMarket handles POST /api/tracked/markets
func (s *Server) handleAddTrackedMarket(w http.ResponseWriter, r *http.Request) {
	var req service.AddMarketInput
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	tm, err := s.tracking.AddMarket(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, tm)
}

// handleRemoveTrackedMarket handles DELETE /api/tracked/markets/{market}
func (s *Server) handleRemoveTrackedMarket(w http.ResponseWriter, r *http.Request) {
	if err := s.tracking.RemoveMarket(r.Context(), mux.Vars(r)["market"]); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
