package core

import (
	"strings"
	"time"

	"github.com/JonMunkholm/gradebook/internal/grade"
)

// Score and semester bounds, inclusive.
const (
	MinScore    = 0
	MaxScore    = 100
	MinSemester = 1
	MaxSemester = 8
)

// Course credit and duration bounds, inclusive.
const (
	MinCredits       = 1
	MaxCredits       = 10
	MinDurationWeeks = 1
	MaxDurationWeeks = 52
)

// Student is an entry in the student directory.
type Student struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Course is an entry in the course catalog. Credits weight the course's
// contribution to a GPA.
type Course struct {
	ID            string    `json:"id"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Credits       int       `json:"credits"`
	DurationWeeks int       `json:"durationWeeks"`
	InstructorID  string    `json:"instructorId,omitempty"`
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Result is a graded record: one student's score in one course for one semester.
type Result struct {
	ID         string       `json:"id"`
	StudentID  string       `json:"studentId"`
	CourseID   string       `json:"courseId"`
	Semester   int          `json:"semester"`
	Score      float64      `json:"score"`
	Grade      grade.Letter `json:"grade"`
	RecordedBy string       `json:"recordedBy"`
	Date       time.Time    `json:"date"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// DeriveGrade sets Grade from Score. Every path that sets or changes Score
// must call it.
func (r *Result) DeriveGrade() {
	r.Grade = grade.FromScore(r.Score)
}

// Key returns the result's uniqueness key.
func (r Result) Key() ResultKey {
	return ResultKey{StudentID: r.StudentID, CourseID: r.CourseID, Semester: r.Semester}
}

// ResultKey identifies the (student, course, semester) triple that must be
// unique across results.
type ResultKey struct {
	StudentID string
	CourseID  string
	Semester  int
}

// ResultWithCourse is a result joined with its course, used for transcripts.
type ResultWithCourse struct {
	Result
	Course Course `json:"course"`
}

// ResultFilter narrows result listings and statistics. Zero values match all.
type ResultFilter struct {
	CourseID  string
	StudentID string
	Semester  int
}

// Matches reports whether r satisfies the filter.
func (f ResultFilter) Matches(r Result) bool {
	if f.CourseID != "" && r.CourseID != f.CourseID {
		return false
	}
	if f.StudentID != "" && r.StudentID != f.StudentID {
		return false
	}
	if f.Semester != 0 && r.Semester != f.Semester {
		return false
	}
	return true
}

// Import row field names.
const (
	FieldStudentID = "studentId"
	FieldCourseID  = "courseId"
	FieldScore     = "score"
	FieldSemester  = "semester"
)

// RawRow is one tokenized input row: header name to cell value.
type RawRow map[string]string

// Get returns the value for a field, matching the header name exactly first
// and then case-insensitively. Surrounding whitespace is trimmed.
func (r RawRow) Get(field string) string {
	if v, ok := r[field]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range r {
		if strings.EqualFold(strings.TrimSpace(k), field) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// ImportRowError describes a row that failed validation or reference
// resolution. RowNumber is 1-based and counts data rows only.
type ImportRowError struct {
	RowNumber int    `json:"rowNumber"`
	Reason    string `json:"reason"`
	RawData   RawRow `json:"rawData"`
}

// AcceptedRow is a validated candidate result and the row it came from.
type AcceptedRow struct {
	RowNumber int
	Result    Result
}

// ImportBatch is the output of the import pipeline. Accepted holds candidate
// results, not persisted ones.
type ImportBatch struct {
	Rows     int
	Accepted []AcceptedRow
	Errors   []ImportRowError
}

// Results returns the accepted candidate results.
func (b ImportBatch) Results() []Result {
	out := make([]Result, len(b.Accepted))
	for i, a := range b.Accepted {
		out[i] = a.Result
	}
	return out
}

// SkippedRow is an accepted candidate that the store refused to insert.
type SkippedRow struct {
	RowNumber int    `json:"rowNumber"`
	Reason    string `json:"reason"`
	StudentID string `json:"studentId"`
	CourseID  string `json:"courseId"`
	Semester  int    `json:"semester"`
}

// ImportSummary is what an import reports back to its caller.
type ImportSummary struct {
	ImportID     string           `json:"importId"`
	Rows         int              `json:"rows"`
	Imported     int              `json:"imported"`
	Errors       int              `json:"errors"`
	ErrorDetails []ImportRowError `json:"errorDetails"`
	Skipped      []SkippedRow     `json:"skipped"`
	Data         ImportData       `json:"data"`
	Duration     time.Duration    `json:"-"`
}

// ImportData wraps the persisted results of an import.
type ImportData struct {
	Results []Result `json:"results"`
}

// BulkInsertFailure is a record a bulk insert could not persist.
type BulkInsertFailure struct {
	Index int
	Err   error
}

// BulkInsertResult reports which records of a bulk insert were persisted.
// Indexes refer to the input slice.
type BulkInsertResult struct {
	Inserted []int
	Failed   []BulkInsertFailure
}

// ResultStatistics aggregates scores and grades over a set of results.
type ResultStatistics struct {
	Count             int                  `json:"count"`
	AverageScore      float64              `json:"averageScore"`
	MinScore          float64              `json:"minScore"`
	MaxScore          float64              `json:"maxScore"`
	GradeDistribution map[grade.Letter]int `json:"gradeDistribution"`
}

// GradeCount is one bar of a grade distribution chart.
type GradeCount struct {
	Grade grade.Letter `json:"grade"`
	Count int          `json:"count"`
}
