package core

// transcript.go builds per-semester and cumulative GPA views of a student's
// results. Totals are computed by the grade package from raw values; GPAs are
// rounded to two decimals only when copied into the presentation structs.

import (
	"context"
	"fmt"
	"sort"

	"github.com/JonMunkholm/gradebook/internal/grade"
)

// TranscriptCourse is one course line of a semester.
type TranscriptCourse struct {
	ResultID   string       `json:"resultId"`
	CourseID   string       `json:"courseId"`
	CourseCode string       `json:"courseCode"`
	CourseName string       `json:"courseName"`
	Score      float64      `json:"score"`
	Grade      grade.Letter `json:"grade"`
	GradePoint float64      `json:"gradePoint"`
	Credits    int          `json:"credits"`
}

// SemesterTranscript is a semester's courses and GPA summary. GPA is nil and
// GPAUndefined is set when the semester carries zero credits.
type SemesterTranscript struct {
	Semester         int                `json:"semester"`
	Courses          []TranscriptCourse `json:"courses"`
	TotalCredits     int                `json:"totalCredits"`
	TotalGradePoints float64            `json:"totalGradePoints"`
	GPA              *float64           `json:"gpa"`
	GPAUndefined     bool               `json:"gpaUndefined,omitempty"`
}

// Transcript is a student's full record with cumulative GPA (CGPA).
type Transcript struct {
	StudentID         string               `json:"studentId"`
	Semesters         []SemesterTranscript `json:"semesters"`
	TotalCredits      int                  `json:"totalCredits"`
	TotalGradePoints  float64              `json:"totalGradePoints"`
	CGPA              *float64             `json:"cgpa"`
	CGPAUndefined     bool                 `json:"cgpaUndefined,omitempty"`
	UndefinedSemester []int                `json:"undefinedSemesters,omitempty"`
}

// StudentTranscript returns the student's results grouped by semester with
// GPA summaries. Returns an error matching ErrNotFound if the student has no
// results.
func (s *Service) StudentTranscript(ctx context.Context, studentID string) (*Transcript, error) {
	rows, err := s.store.StudentResults(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("load student results: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no results for student %s: %w", studentID, ErrNotFound)
	}
	return BuildTranscript(studentID, rows), nil
}

// BuildTranscript assembles a transcript from results joined with courses.
func BuildTranscript(studentID string, rows []ResultWithCourse) *Transcript {
	entries := make([]grade.Entry, len(rows))
	bySemester := make(map[int][]TranscriptCourse)
	for i, r := range rows {
		entries[i] = grade.Entry{Semester: r.Semester, Credits: r.Course.Credits, Letter: r.Grade}
		bySemester[r.Semester] = append(bySemester[r.Semester], TranscriptCourse{
			ResultID:   r.ID,
			CourseID:   r.CourseID,
			CourseCode: r.Course.Code,
			CourseName: r.Course.Name,
			Score:      r.Score,
			Grade:      r.Grade,
			GradePoint: grade.Point(r.Grade),
			Credits:    r.Course.Credits,
		})
	}

	report := grade.ComputeGPA(entries)

	t := &Transcript{
		StudentID:         studentID,
		TotalCredits:      report.Cumulative.TotalCredits,
		TotalGradePoints:  report.Cumulative.TotalGradePoints,
		UndefinedSemester: report.Undefined(),
	}
	t.CGPA, t.CGPAUndefined = presentGPA(report.Cumulative)

	for _, sem := range report.Semesters() {
		sum := report.PerSemester[sem]
		courses := bySemester[sem]
		sort.SliceStable(courses, func(i, j int) bool { return courses[i].CourseCode < courses[j].CourseCode })

		st := SemesterTranscript{
			Semester:         sem,
			Courses:          courses,
			TotalCredits:     sum.TotalCredits,
			TotalGradePoints: sum.TotalGradePoints,
		}
		st.GPA, st.GPAUndefined = presentGPA(sum)
		t.Semesters = append(t.Semesters, st)
	}
	return t
}

// presentGPA rounds a defined GPA to two decimals, or reports it undefined.
func presentGPA(s grade.Summary) (*float64, bool) {
	gpa, err := s.GPA()
	if err != nil {
		return nil, true
	}
	v := grade.Round2(gpa)
	return &v, false
}

// Statistics returns score and grade aggregates for results matching f, or
// nil when nothing matches.
func (s *Service) Statistics(ctx context.Context, f ResultFilter) (*ResultStatistics, error) {
	return s.store.ResultStatistics(ctx, f)
}

// GradeDistribution returns result counts per letter, A through F, including
// letters with no results.
func (s *Service) GradeDistribution(ctx context.Context) ([]GradeCount, error) {
	counts, err := s.store.GradeDistribution(ctx)
	if err != nil {
		return nil, err
	}
	return fillGradeCounts(counts), nil
}

// fillGradeCounts orders counts A..F and adds zero entries for missing letters.
func fillGradeCounts(counts []GradeCount) []GradeCount {
	byLetter := make(map[grade.Letter]int, len(counts))
	for _, c := range counts {
		byLetter[c.Grade] += c.Count
	}
	out := make([]GradeCount, len(grade.Letters))
	for i, l := range grade.Letters {
		out[i] = GradeCount{Grade: l, Count: byLetter[l]}
	}
	return out
}

// SummarizeResults computes ResultStatistics in memory. Returns nil for no
// results. AverageScore is rounded to two decimals.
func SummarizeResults(results []Result) *ResultStatistics {
	if len(results) == 0 {
		return nil
	}
	stats := &ResultStatistics{
		Count:             len(results),
		MinScore:          results[0].Score,
		MaxScore:          results[0].Score,
		GradeDistribution: NewGradeDistribution(),
	}
	var total float64
	for _, r := range results {
		total += r.Score
		if r.Score < stats.MinScore {
			stats.MinScore = r.Score
		}
		if r.Score > stats.MaxScore {
			stats.MaxScore = r.Score
		}
		stats.GradeDistribution[r.Grade]++
	}
	stats.AverageScore = grade.Round2(total / float64(len(results)))
	return stats
}

// NewGradeDistribution returns a distribution map with every letter at zero.
func NewGradeDistribution() map[grade.Letter]int {
	m := make(map[grade.Letter]int, len(grade.Letters))
	for _, l := range grade.Letters {
		m[l] = 0
	}
	return m
}
