package core

// validation.go holds the field checks shared by batch import and the direct
// create/update API.
//
// Checks return values, never panic, and report one reason at a time so the
// import pipeline can attach exactly one reason to each failing row. The order
// of checks is fixed:
//
//  1. Required fields present
//  2. Score parses as a finite number
//  3. Score within [0, 100]
//  4. Semester parses as an integer within [1, 8]
//  5. Student exists
//  6. Course exists

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Row-level failure reasons, in check order.
const (
	ReasonMissingFields   = "Missing required fields"
	ReasonScoreNotNumber  = "Score must be a number"
	ReasonScoreRange      = "Score must be between 0 and 100"
	ReasonSemesterRange   = "Semester must be between 1 and 8"
	ReasonStudentNotFound = "Student not found"
	ReasonCourseNotFound  = "Course not found"
	ReasonStudentLookup   = "Student lookup failed"
	ReasonCourseLookup    = "Course lookup failed"
	ReasonDuplicateResult = "Duplicate result"
)

// rowFields is a row whose shape and ranges have been checked.
type rowFields struct {
	StudentID string
	CourseID  string
	Score     float64
	Semester  int
}

// checkRowFields runs checks 1-4 on a raw row. On failure it returns the
// field that failed and the reason; reason is empty on success.
func checkRowFields(row RawRow) (rowFields, string, string) {
	f := rowFields{
		StudentID: row.Get(FieldStudentID),
		CourseID:  row.Get(FieldCourseID),
	}
	rawScore := row.Get(FieldScore)
	rawSemester := row.Get(FieldSemester)

	if f.StudentID == "" || f.CourseID == "" || rawScore == "" || rawSemester == "" {
		return f, "", ReasonMissingFields
	}

	score, ok := parseScore(rawScore)
	if !ok {
		return f, FieldScore, ReasonScoreNotNumber
	}
	if !ScoreInRange(score) {
		return f, FieldScore, ReasonScoreRange
	}
	f.Score = score

	semester, ok := parseSemester(rawSemester)
	if !ok || !SemesterInRange(semester) {
		return f, FieldSemester, ReasonSemesterRange
	}
	f.Semester = semester

	return f, "", ""
}

// decimalPattern matches plain decimal notation. Hex floats and digit
// separators, which strconv accepts, do not match.
var decimalPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// parseScore parses a finite decimal number.
func parseScore(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !decimalPattern.MatchString(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// parseSemester parses a base-10 integer. "3.0" and "3.5" are rejected.
func parseSemester(s string) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return v, true
}

// ScoreInRange reports whether score lies in the closed interval [0, 100].
func ScoreInRange(score float64) bool {
	return !math.IsNaN(score) && score >= MinScore && score <= MaxScore
}

// SemesterInRange reports whether semester lies in [1, 8].
func SemesterInRange(semester int) bool {
	return semester >= MinSemester && semester <= MaxSemester
}

// ValidateScore checks a score supplied through the direct API.
func ValidateScore(score float64) error {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return invalid(FieldScore, strconv.FormatFloat(score, 'g', -1, 64), ReasonScoreNotNumber)
	}
	if !ScoreInRange(score) {
		return invalid(FieldScore, strconv.FormatFloat(score, 'g', -1, 64), ReasonScoreRange)
	}
	return nil
}

// ValidateSemester checks a semester supplied through the direct API.
func ValidateSemester(semester int) error {
	if !SemesterInRange(semester) {
		return invalid(FieldSemester, strconv.Itoa(semester), ReasonSemesterRange)
	}
	return nil
}

// ValidateCourse checks a new catalog course and normalizes its code.
func ValidateCourse(c *Course) error {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	c.Name = strings.TrimSpace(c.Name)

	if c.Code == "" {
		return invalid("code", "", "course code is required")
	}
	if c.Name == "" {
		return invalid("name", "", "course name is required")
	}
	if c.Credits < MinCredits || c.Credits > MaxCredits {
		return invalid("credits", strconv.Itoa(c.Credits), "credits must be between 1 and 10")
	}
	if c.DurationWeeks < MinDurationWeeks || c.DurationWeeks > MaxDurationWeeks {
		return invalid("durationWeeks", strconv.Itoa(c.DurationWeeks), "duration must be between 1 and 52 weeks")
	}
	return nil
}

// ValidateStudent checks a new directory student and normalizes the email.
func ValidateStudent(s *Student) error {
	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.ToLower(strings.TrimSpace(s.Email))

	if s.Name == "" {
		return invalid("name", "", "student name is required")
	}
	if s.Email == "" {
		return invalid("email", "", "student email is required")
	}
	if at := strings.IndexByte(s.Email, '@'); at <= 0 || at == len(s.Email)-1 {
		return invalid("email", s.Email, "email must be a valid address")
	}
	return nil
}
