package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// handleListTrades handles GET /api/trades - newest suspicious trades first
func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 0)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset", 0)
	if !ok {
		return
	}

	page, err := s.query.ListTrades(r.Context(), limit, offset)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// handleGetTrade handles GET /api/trades/{ref}
func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request) {
	detail, err := s.query.GetTrade(r.Context(), mux.Vars(r)["ref"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

// handleGetWallet handles GET /api/wallets/{wallet} - aggregate plus recent trades
func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 0)
	if !ok {
		return
	}

	profile, err := s.query.GetWallet(r.Context(), mux.Vars(r)["wallet"], limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

// handleStats handles GET /api/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	top, ok := queryInt(w, r, "top", 0)
	if !ok {
		return
	}

	stats, err := s.query.Stats(r.Context(), top)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// queryInt reads an optional integer query parameter, responding 400 when it is malformed
func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid "+name+" parameter", map[string]interface{}{
			"parameter": name,
			"value":     raw,
		})
		return 0, false
	}
	return v, true
}

// queryBool reads an optional boolean query parameter
func queryBool(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}
