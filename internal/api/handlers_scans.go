package api

import (
	stderrors "errors"
	"io"
	"net/http"

	"github.com/polytracker/scanner/internal/scanner"
	"github.com/polytracker/scanner/internal/types"
)

// handleListScans handles GET /api/scans - scan history, newest first
func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 0)
	if !ok {
		return
	}

	runs, err := s.query.ListScans(r.Context(), limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"scans": runs,
		"count": len(runs),
	})
}

// handleTriggerScan handles POST /api/scans - starts an ad-hoc scan in the background.
// An empty body runs the scheduler's configured mode.
func (s *Server) handleTriggerScan(w http.ResponseWriter, r *http.Request) {
	if s.scans == nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Scan scheduler is not running in this process", nil)
		return
	}

	var req struct {
		Mode types.ScanMode `json:"mode"`
	}
	if err := parseJSONBody(r, &req); err != nil && !stderrors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	mode := req.Mode
	if mode == "" {
		mode = s.scans.Status().Mode
	}
	parsed, ok := types.ParseScanMode(string(mode))
	if !ok {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Unknown scan mode", map[string]interface{}{
			"mode": mode,
		})
		return
	}

	err := s.scans.Trigger(parsed)
	switch {
	case err == nil:
		respondJSON(w, http.StatusAccepted, map[string]interface{}{
			"status": "accepted",
			"mode":   parsed,
		})
	case stderrors.Is(err, scanner.ErrScanInProgress):
		respondError(w, http.StatusConflict, ErrCodeScanInProgress, err.Error(), nil)
	case stderrors.Is(err, scanner.ErrSchedulerStopped):
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, err.Error(), nil)
	default:
		respondServiceError(w, r, err)
	}
}

// handleScanStatus handles GET /api/scans/status
func (s *Server) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	if s.scans == nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Scan scheduler is not running in this process", nil)
		return
	}
	respondJSON(w, http.StatusOK, s.scans.Status())
}
