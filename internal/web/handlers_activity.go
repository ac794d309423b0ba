package web

import (
	"context"
	"net/http"
	"time"

	"github.com/JonMunkholm/gradebook/internal/core"
	"github.com/JonMunkholm/gradebook/internal/logging"
)

// healthTimeout bounds the dependency ping in /healthz.
const healthTimeout = 2 * time.Second

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			logging.FromContext(r.Context()).Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGradeDistribution handles GET /api/analytics/grade-distribution.
// Every letter is present, with zero counts where no result has it.
func (s *Server) handleGradeDistribution(w http.ResponseWriter, r *http.Request) {
	dist, err := s.service.GradeDistribution(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]core.GradeCount{"gradeDistribution": dist})
}

// handleRecentActivity handles GET /api/activity/recent?limit=.
func (s *Server) handleRecentActivity(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", core.DefaultActivityLimit)

	entries, err := s.service.RecentActivity(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if entries == nil {
		entries = []core.ActivityEntry{}
	}
	writeJSON(w, http.StatusOK, map[string][]core.ActivityEntry{"activities": entries})
}
