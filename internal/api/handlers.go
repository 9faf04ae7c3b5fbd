package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"warden/internal/cache"
)

// evaluateRequest is the body of POST /api/v1/evaluate.
type evaluateRequest struct {
	Text    string         `json:"text"`
	Context map[string]any `json:"context,omitempty"`
}

// evaluateResponse wraps the verdict with the convenience bool callers
// branch on.
type evaluateResponse struct {
	Blocked bool `json:"blocked"`
	Verdict any  `json:"verdict"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestBudget)
	defer cancel()

	verdict := s.deps.Tower.Evaluate(ctx, req.Text, req.Context)
	writeJSON(w, http.StatusOK, evaluateResponse{
		Blocked: verdict.ShouldBlock(),
		Verdict: verdict,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	healthy, msg := s.deps.Tower.Healthy()
	status := "healthy"
	code := http.StatusOK
	if !healthy {
		// Degradation is visible to probes keyed on the status code, not
		// just to callers that parse the body.
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"message": msg,
		"version": Version,
	})
}

func (s *Server) handleTierStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Tower.Stats())
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	stats := cache.Stats{}
	if s.deps.Cache != nil {
		stats = s.deps.Cache.CacheStats()
	}
	if s.deps.Collectors != nil {
		s.deps.Collectors.CacheSize.Set(float64(stats.Size))
		s.deps.Collectors.CacheHitRate.Set(stats.HitRate)
	}
	writeJSON(w, http.StatusOK, stats)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	token, err := s.deps.Auth.Login(req.Username, req.Password)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":      token,
		"token_type": "Bearer",
	})
}

func (s *Server) handleResetStats(w http.ResponseWriter, r *http.Request) {
	s.deps.Tower.ResetStats()
	principal, _ := principalFrom(r.Context())
	s.logger.Info("statistics reset", zap.String("by", principal.Username))
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func retryAfterHeader(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
