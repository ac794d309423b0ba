package web

import (
	"net/http"

	"github.com/JonMunkholm/gradebook/internal/core"
	"github.com/go-chi/chi/v5"
)

type createStudentRequest struct {
	Name  string `json:"name" validate:"notblank,max=200"`
	Email string `json:"email" validate:"required,email,max=254"`
}

type createCourseRequest struct {
	Code          string `json:"code" validate:"notblank,max=32"`
	Name          string `json:"name" validate:"notblank,max=200"`
	Description   string `json:"description" validate:"max=2000"`
	Credits       int    `json:"credits" validate:"min=1,max=10"`
	DurationWeeks int    `json:"durationWeeks" validate:"min=1,max=52"`
	InstructorID  string `json:"instructorId" validate:"max=64"`
}

// handleCreateStudent handles POST /api/students.
func (s *Server) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var req createStudentRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	st, err := s.service.CreateStudent(r.Context(), core.Student{Name: req.Name, Email: req.Email})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

// handleListStudents handles GET /api/students.
func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := s.service.ListStudents(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, students)
}

// handleGetStudent handles GET /api/students/{id}.
func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	st, err := s.service.GetStudent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleCreateCourse handles POST /api/courses.
func (s *Server) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	var req createCourseRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	c, err := s.service.CreateCourse(r.Context(), core.Course{
		Code:          req.Code,
		Name:          req.Name,
		Description:   req.Description,
		Credits:       req.Credits,
		DurationWeeks: req.DurationWeeks,
		InstructorID:  req.InstructorID,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// handleListCourses handles GET /api/courses.
func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := s.service.ListCourses(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, courses)
}

// handleGetCourse handles GET /api/courses/{id}.
func (s *Server) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	c, err := s.service.GetCourse(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
