package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"device-pairing-service/internal/domain"
	"device-pairing-service/internal/infra/logging"
)

type issueRequest struct {
	DeviceIdentifier string `json:"device_identifier"`
	DeviceName       string `json:"device_name"`
}

type issueResponse struct {
	Code      string `json:"code"`
	ExpiresIn int    `json:"expires_in"`
}

type claimRequest struct {
	Code   string `json:"code"`
	UserID string `json:"user_id"`
}

type consumeRequest struct {
	Code   string `json:"code"`
	UserID string `json:"user_id"`
}

type pollResponse struct {
	Status string  `json:"status"`
	UserID *string `json:"user_id,omitempty"`
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	r = r.WithContext(logging.WithDeviceID(r.Context(), req.DeviceIdentifier))
	res, err := s.pairing.Issue(r.Context(), req.DeviceIdentifier, req.DeviceName)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, issueResponse{Code: res.Code, ExpiresIn: res.ExpiresIn})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	r = r.WithContext(logging.WithUserID(r.Context(), req.UserID))
	err := s.pairing.Claim(r.Context(), req.Code, req.UserID, callerKey(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	res, err := s.pairing.Poll(r.Context(), code)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pollResponse{
		Status: strings.ToUpper(string(res.Status)),
		UserID: res.UserID,
	})
}

func (s *Server) handleConsume(w http.ResponseWriter, r *http.Request) {
	var req consumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	r = r.WithContext(logging.WithUserID(r.Context(), req.UserID))
	res, err := s.pairing.Consume(r.Context(), req.Code, req.UserID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"session_token": res.SessionToken,
	})
}

// writeDomainError maps domain errors to HTTP statuses. Claim/consume
// failures collapse into one body so the public surface does not reveal
// whether a code exists, is expired, or was claimed by someone else.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "missing or malformed field")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "too many attempts")
	case errors.Is(err, domain.ErrNotClaimable), errors.Is(err, domain.ErrNotConsumable):
		writeError(w, http.StatusNotFound, "activation not available")
	case errors.Is(err, domain.ErrOperationFailed):
		writeError(w, http.StatusServiceUnavailable, "storage unavailable, retry later")
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Str("path", r.URL.Path).Msg("unhandled pairing error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// callerKey extracts the remote IP used for per-caller claim throttling.
func callerKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
