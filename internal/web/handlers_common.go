package web

// Shared request parsing helpers used across handlers.

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/gradebook/internal/core"
)

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// parseResultFilter reads ?course=, ?student= and ?semester=. A semester
// that is not an integer in [1, 8] is an invalid-input error.
func parseResultFilter(r *http.Request) (core.ResultFilter, error) {
	q := r.URL.Query()
	f := core.ResultFilter{
		CourseID:  strings.TrimSpace(q.Get("course")),
		StudentID: strings.TrimSpace(q.Get("student")),
	}
	if raw := strings.TrimSpace(q.Get("semester")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return f, &core.ValidationError{Field: "semester", Value: raw, Message: "semester must be an integer between 1 and 8"}
		}
		if err := core.ValidateSemester(n); err != nil {
			return f, err
		}
		f.Semester = n
	}
	return f, nil
}
