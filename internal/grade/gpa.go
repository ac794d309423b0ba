package grade

// gpa.go computes credit-weighted grade point averages.
//
// Sums are accumulated from raw per-record contributions. Nothing is rounded
// before summation; the cumulative summary is built from the raw totals of
// every record, not from the per-semester averages.

import (
	"errors"
	"fmt"
	"sort"
)

// ErrZeroCredits is returned when a GPA is requested for a group whose total
// credits are zero. The average is undefined in that case.
var ErrZeroCredits = errors.New("gpa undefined: total credits is zero")

// Entry is one graded record as seen by the GPA computation.
type Entry struct {
	Semester int
	Credits  int
	Letter   Letter
}

// Summary holds the credit and grade-point totals of a group of entries.
type Summary struct {
	TotalCredits     int
	TotalGradePoints float64
	Records          int
}

// add accumulates one entry.
func (s *Summary) add(e Entry) {
	s.TotalCredits += e.Credits
	s.TotalGradePoints += Point(e.Letter) * float64(e.Credits)
	s.Records++
}

// GPA returns TotalGradePoints / TotalCredits, unrounded.
// Returns ErrZeroCredits when the group has no credits.
func (s Summary) GPA() (float64, error) {
	if s.TotalCredits == 0 {
		return 0, ErrZeroCredits
	}
	return s.TotalGradePoints / float64(s.TotalCredits), nil
}

// Defined reports whether the group's GPA can be computed.
func (s Summary) Defined() bool {
	return s.TotalCredits != 0
}

// Report is the result of ComputeGPA.
type Report struct {
	PerSemester map[int]Summary
	Cumulative  Summary
}

// Semesters returns the semesters present in the report in ascending order.
func (r Report) Semesters() []int {
	out := make([]int, 0, len(r.PerSemester))
	for sem := range r.PerSemester {
		out = append(out, sem)
	}
	sort.Ints(out)
	return out
}

// Undefined returns the semesters whose GPA is undefined because their total
// credits are zero, in ascending order.
func (r Report) Undefined() []int {
	var out []int
	for _, sem := range r.Semesters() {
		if !r.PerSemester[sem].Defined() {
			out = append(out, sem)
		}
	}
	return out
}

// Check returns an error naming every semester with an undefined GPA, or nil.
func (r Report) Check() error {
	undef := r.Undefined()
	if len(undef) == 0 && r.Cumulative.Defined() {
		return nil
	}
	if len(undef) == 0 {
		return ErrZeroCredits
	}
	return fmt.Errorf("semesters %v: %w", undef, ErrZeroCredits)
}

// ComputeGPA groups entries by semester and accumulates credit-weighted
// grade points per semester and across all semesters.
func ComputeGPA(entries []Entry) Report {
	r := Report{PerSemester: make(map[int]Summary)}
	for _, e := range entries {
		s := r.PerSemester[e.Semester]
		s.add(e)
		r.PerSemester[e.Semester] = s
		r.Cumulative.add(e)
	}
	return r
}
