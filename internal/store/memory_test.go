package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/gradebook/internal/config"
	"github.com/JonMunkholm/gradebook/internal/core"
	"github.com/JonMunkholm/gradebook/internal/grade"
	"github.com/jackc/pgx/v5/pgconn"
)

func seededMemory(t *testing.T) *Memory {
	t.Helper()
	ctx := context.Background()
	m := NewMemory()
	for _, id := range []string{"s1", "s2"} {
		if err := m.CreateStudent(ctx, core.Student{ID: id, Name: id, Email: id + "@example.edu"}); err != nil {
			t.Fatalf("CreateStudent: %v", err)
		}
	}
	for _, c := range []core.Course{
		{ID: "c1", Code: "CS101", Name: "Intro", Credits: 3, DurationWeeks: 12},
		{ID: "c2", Code: "MA201", Name: "Calculus", Credits: 4, DurationWeeks: 12},
	} {
		if err := m.CreateCourse(ctx, c); err != nil {
			t.Fatalf("CreateCourse: %v", err)
		}
	}
	return m
}

func newResult(id, student, course string, semester int, score float64) core.Result {
	r := core.Result{ID: id, StudentID: student, CourseID: course, Semester: semester, Score: score}
	r.DeriveGrade()
	return r
}

func TestMemory_UniqueResultKey(t *testing.T) {
	m := seededMemory(t)
	ctx := context.Background()

	if err := m.InsertResult(ctx, newResult("r1", "s1", "c1", 1, 70)); err != nil {
		t.Fatalf("InsertResult: %v", err)
	}
	if err := m.InsertResult(ctx, newResult("r2", "s1", "c1", 1, 90)); !errors.Is(err, core.ErrDuplicateResult) {
		t.Fatalf("duplicate insert err = %v, want ErrDuplicateResult", err)
	}

	got, err := m.GetResult(ctx, "r1")
	if err != nil || got.Score != 70 {
		t.Errorf("original = %+v, %v; want score 70 untouched", got, err)
	}
}

func TestMemory_InsertResults_Independent(t *testing.T) {
	m := seededMemory(t)
	ctx := context.Background()

	batch := []core.Result{
		newResult("r1", "s1", "c1", 1, 95),
		newResult("r2", "s1", "c1", 1, 85), // same triple as r1
		newResult("r3", "s2", "c1", 1, 75),
		newResult("r4", "nobody", "c1", 1, 65),
	}
	res, err := m.InsertResults(ctx, batch)
	if err != nil {
		t.Fatalf("InsertResults: %v", err)
	}

	if len(res.Inserted) != 2 || res.Inserted[0] != 0 || res.Inserted[1] != 2 {
		t.Errorf("Inserted = %v, want [0 2]", res.Inserted)
	}
	if len(res.Failed) != 2 {
		t.Fatalf("Failed = %+v, want 2", res.Failed)
	}
	if res.Failed[0].Index != 1 || !errors.Is(res.Failed[0].Err, core.ErrDuplicateResult) {
		t.Errorf("Failed[0] = %+v, want index 1 duplicate", res.Failed[0])
	}
	if res.Failed[1].Index != 3 || !errors.Is(res.Failed[1].Err, core.ErrStudentNotFound) {
		t.Errorf("Failed[1] = %+v, want index 3 student not found", res.Failed[1])
	}
}

func TestMemory_UpdateResult_MovesKey(t *testing.T) {
	m := seededMemory(t)
	ctx := context.Background()

	_ = m.InsertResult(ctx, newResult("r1", "s1", "c1", 1, 70))
	_ = m.InsertResult(ctx, newResult("r2", "s1", "c1", 2, 80))

	moved := newResult("r1", "s1", "c1", 2, 70)
	if err := m.UpdateResult(ctx, moved); !errors.Is(err, core.ErrDuplicateResult) {
		t.Fatalf("update onto taken key err = %v, want ErrDuplicateResult", err)
	}

	moved.Semester = 3
	if err := m.UpdateResult(ctx, moved); err != nil {
		t.Fatalf("UpdateResult: %v", err)
	}
	if _, err := m.FindResult(ctx, core.ResultKey{StudentID: "s1", CourseID: "c1", Semester: 1}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("old key still resolves: %v", err)
	}
	if r, err := m.FindResult(ctx, core.ResultKey{StudentID: "s1", CourseID: "c1", Semester: 3}); err != nil || r.ID != "r1" {
		t.Errorf("new key = %+v, %v", r, err)
	}

	if err := m.UpdateResult(ctx, newResult("missing", "s1", "c1", 4, 50)); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("update missing err = %v, want ErrNotFound", err)
	}
}

func TestMemory_ListAndStatistics(t *testing.T) {
	m := seededMemory(t)
	ctx := context.Background()

	for _, r := range []core.Result{
		newResult("r1", "s1", "c1", 2, 95),
		newResult("r2", "s2", "c1", 1, 72),
		newResult("r3", "s1", "c2", 1, 40),
	} {
		if err := m.InsertResult(ctx, r); err != nil {
			t.Fatalf("InsertResult: %v", err)
		}
	}

	c1, _ := m.ListResults(ctx, core.ResultFilter{CourseID: "c1"})
	if len(c1) != 2 || c1[0].Semester != 1 {
		t.Errorf("ListResults(c1) = %+v, want 2 ordered by semester", c1)
	}

	stats, err := m.ResultStatistics(ctx, core.ResultFilter{CourseID: "c1"})
	if err != nil {
		t.Fatalf("ResultStatistics: %v", err)
	}
	if stats.Count != 2 || stats.AverageScore != 83.5 || stats.MinScore != 72 || stats.MaxScore != 95 {
		t.Errorf("stats = %+v", stats)
	}

	empty, err := m.ResultStatistics(ctx, core.ResultFilter{Semester: 8})
	if err != nil || empty != nil {
		t.Errorf("empty stats = %+v, %v; want nil", empty, err)
	}

	dist, _ := m.GradeDistribution(ctx)
	if len(dist) != 3 || dist[0].Grade != grade.A || dist[2].Grade != grade.F {
		t.Errorf("GradeDistribution = %+v", dist)
	}

	joined, _ := m.StudentResults(ctx, "s1")
	if len(joined) != 2 || joined[0].Course.Code != "MA201" {
		t.Errorf("StudentResults = %+v", joined)
	}
}

func TestMemory_Activity(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		_ = m.InsertActivity(ctx, core.ActivityEntry{ID: id, CreatedAt: base.AddDate(0, 0, i*60)})
	}

	recent, _ := m.RecentActivity(ctx, 2)
	if len(recent) != 2 || recent[0].ID != "c" || recent[1].ID != "b" {
		t.Errorf("RecentActivity = %+v, want c, b", recent)
	}

	purged, _ := m.PurgeActivity(ctx, base.AddDate(0, 0, 30))
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}
	all, _ := m.RecentActivity(ctx, 10)
	if len(all) != 2 {
		t.Errorf("remaining = %d, want 2", len(all))
	}
}

func TestMemory_CatalogUniqueness(t *testing.T) {
	m := seededMemory(t)
	ctx := context.Background()

	if err := m.CreateCourse(ctx, core.Course{ID: "c9", Code: "CS101"}); !errors.Is(err, core.ErrAlreadyExists) {
		t.Errorf("duplicate course err = %v", err)
	}
	if err := m.CreateStudent(ctx, core.Student{ID: "s9", Email: "s1@example.edu"}); !errors.Is(err, core.ErrAlreadyExists) {
		t.Errorf("duplicate student err = %v", err)
	}
}

// TestMemory_ServiceImport runs a CSV import end to end on the memory store.
func TestMemory_ServiceImport(t *testing.T) {
	m := seededMemory(t)
	svc := core.NewService(m, config.ImportConfig{MaxConcurrent: 1, MaxWaitTime: time.Second, Timeout: time.Minute})
	ctx := core.ContextWithActor(context.Background(), "instructor-1")

	csv := "\xEF\xBB\xBFstudentId,courseId,score,semester\n" +
		"s1,c1,95,1\n" +
		"s1,c9,85,1\n" +
		"s2,c1,75,1\n" +
		"s2,c9,65,2\n" +
		"s2,c2,55,2\n" +
		"s1,c1,60,1\n"

	summary, err := svc.ImportCSV(ctx, strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if summary.Rows != 6 || summary.Imported != 3 || summary.Errors != 2 {
		t.Errorf("summary = rows %d, imported %d, errors %d", summary.Rows, summary.Imported, summary.Errors)
	}
	if summary.ErrorDetails[0].RowNumber != 2 || summary.ErrorDetails[1].RowNumber != 4 {
		t.Errorf("error rows = %d, %d; want 2, 4", summary.ErrorDetails[0].RowNumber, summary.ErrorDetails[1].RowNumber)
	}
	if len(summary.Skipped) != 1 || summary.Skipped[0].RowNumber != 6 {
		t.Errorf("skipped = %+v, want row 6", summary.Skipped)
	}

	tr, err := svc.StudentTranscript(ctx, "s2")
	if err != nil {
		t.Fatalf("StudentTranscript: %v", err)
	}
	// s2: C in CS101 (3 cr) sem 1, F in MA201 (4 cr) sem 2 -> 6 / 7
	if tr.CGPA == nil || *tr.CGPA != 0.86 {
		t.Errorf("CGPA = %v, want 0.86", tr.CGPA)
	}
}

func TestMapPgError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"result key", &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: constraintResultKey}, core.ErrDuplicateResult},
		{"course code", &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "courses_code_key"}, core.ErrAlreadyExists},
		{"student fk", &pgconn.PgError{Code: pgForeignKeyViolation, ConstraintName: constraintResultStudent}, core.ErrStudentNotFound},
		{"course fk", &pgconn.PgError{Code: pgForeignKeyViolation, ConstraintName: constraintResultCourse}, core.ErrCourseNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapPgError(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("mapPgError() = %v, want %v", got, tt.want)
			}
		})
	}

	plain := errors.New("connection reset")
	if got := mapPgError(plain); got != plain {
		t.Errorf("non-pg error changed: %v", got)
	}
}

func TestSchemaMatchesCatalogRules(t *testing.T) {
	ddl := strings.Join(schema, "\n")
	checks := []string{
		fmt.Sprintf("credits BETWEEN %d AND %d", core.MinCredits, core.MaxCredits),
		fmt.Sprintf("duration_weeks BETWEEN %d AND %d", core.MinDurationWeeks, core.MaxDurationWeeks),
		fmt.Sprintf("semester BETWEEN %d AND %d", core.MinSemester, core.MaxSemester),
	}
	for _, want := range checks {
		if !strings.Contains(ddl, want) {
			t.Errorf("schema lacks %q", want)
		}
	}
}

func TestWhereBuilder(t *testing.T) {
	where, args := resultWhere(core.ResultFilter{})
	if where != "" || args != nil {
		t.Errorf("empty filter = %q, %v", where, args)
	}

	where, args = resultWhere(core.ResultFilter{CourseID: "c1", Semester: 2})
	if where != " WHERE course_id = $1 AND semester = $2" {
		t.Errorf("where = %q", where)
	}
	if len(args) != 2 || args[0] != "c1" || args[1] != 2 {
		t.Errorf("args = %v", args)
	}
}
