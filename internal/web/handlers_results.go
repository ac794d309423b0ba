package web

import (
	"net/http"

	"github.com/JonMunkholm/gradebook/internal/core"
	"github.com/go-chi/chi/v5"
)

// Score and semester are pointers so a missing field is distinguishable
// from zero. Range checks belong to the service.
type createResultRequest struct {
	StudentID string   `json:"studentId" validate:"max=64"`
	CourseID  string   `json:"courseId" validate:"max=64"`
	Semester  *int     `json:"semester"`
	Score     *float64 `json:"score"`
}

type updateResultRequest struct {
	Semester *int     `json:"semester"`
	Score    *float64 `json:"score"`
}

// resultResponse wraps a single result the way list endpoints wrap many.
type resultResponse struct {
	Result core.Result `json:"result"`
}

type resultsResponse struct {
	Count   int           `json:"count"`
	Results []core.Result `json:"results"`
}

// handleCreateResult handles POST /api/results.
func (s *Server) handleCreateResult(w http.ResponseWriter, r *http.Request) {
	var req createResultRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.service.CreateResult(r.Context(), core.CreateResultParams{
		StudentID: req.StudentID,
		CourseID:  req.CourseID,
		Semester:  req.Semester,
		Score:     req.Score,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resultResponse{Result: res})
}

// handleListResults handles GET /api/results?course=&student=&semester=.
func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	f, err := parseResultFilter(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	results, err := s.service.ListResults(r.Context(), f)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if results == nil {
		results = []core.Result{}
	}
	writeJSON(w, http.StatusOK, resultsResponse{Count: len(results), Results: results})
}

// handleResultStatistics handles GET /api/results/statistics. The body is
// {"statistics": null} when nothing matches.
func (s *Server) handleResultStatistics(w http.ResponseWriter, r *http.Request) {
	f, err := parseResultFilter(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	stats, err := s.service.Statistics(r.Context(), f)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*core.ResultStatistics{"statistics": stats})
}

// handleStudentTranscript handles GET /api/results/student/{studentId}.
func (s *Server) handleStudentTranscript(w http.ResponseWriter, r *http.Request) {
	tr, err := s.service.StudentTranscript(r.Context(), chi.URLParam(r, "studentId"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

// handleGetResult handles GET /api/results/{id}.
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.GetResult(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Result: res})
}

// handleUpdateResult handles PUT /api/results/{id}. Only score and semester
// can change; the grade is always re-derived from the score.
func (s *Server) handleUpdateResult(w http.ResponseWriter, r *http.Request) {
	var req updateResultRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.service.UpdateResult(r.Context(), chi.URLParam(r, "id"), core.UpdateResultParams{
		Score:    req.Score,
		Semester: req.Semester,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Result: res})
}

// handleDeleteResult handles DELETE /api/results/{id}.
func (s *Server) handleDeleteResult(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteResult(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
