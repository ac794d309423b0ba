package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/JonMunkholm/gradebook/internal/grade"
)

func newPipelineStore() *fakeStore {
	store := newFakeStore()
	store.addStudent("s1")
	store.addStudent("s2")
	store.addCourse("c1", 3)
	store.addCourse("c2", 4)
	return store
}

func TestPipeline_PartialFailureAttributesRows(t *testing.T) {
	store := newPipelineStore()
	p := NewPipeline(store, 4)

	rows := []RawRow{
		resultRow("s1", "c1", "95", "1"),
		resultRow("s1", "missing", "85", "1"),
		resultRow("s2", "c1", "75", "1"),
		resultRow("s2", "missing", "65", "2"),
		resultRow("s2", "c2", "55", "2"),
	}

	batch, err := p.ImportBatch(context.Background(), rows, "instructor-1")
	if err != nil {
		t.Fatalf("ImportBatch: %v", err)
	}

	if batch.Rows != 5 {
		t.Errorf("Rows = %d, want 5", batch.Rows)
	}
	if len(batch.Accepted) != 3 {
		t.Fatalf("accepted = %d, want 3", len(batch.Accepted))
	}
	if len(batch.Errors) != 2 {
		t.Fatalf("errors = %d, want 2", len(batch.Errors))
	}

	for i, want := range []int{2, 4} {
		got := batch.Errors[i]
		if got.RowNumber != want {
			t.Errorf("error[%d].RowNumber = %d, want %d", i, got.RowNumber, want)
		}
		if got.Reason != ReasonCourseNotFound {
			t.Errorf("error[%d].Reason = %q, want %q", i, got.Reason, ReasonCourseNotFound)
		}
		if got.RawData.Get(FieldCourseID) != "missing" {
			t.Errorf("error[%d].RawData = %v, want original row", i, got.RawData)
		}
	}

	wantGrades := []grade.Letter{grade.A, grade.C, grade.F}
	wantRows := []int{1, 3, 5}
	for i, a := range batch.Accepted {
		if a.RowNumber != wantRows[i] {
			t.Errorf("accepted[%d].RowNumber = %d, want %d", i, a.RowNumber, wantRows[i])
		}
		if a.Result.Grade != wantGrades[i] {
			t.Errorf("accepted[%d].Grade = %s, want %s", i, a.Result.Grade, wantGrades[i])
		}
		if a.Result.RecordedBy != "instructor-1" {
			t.Errorf("accepted[%d].RecordedBy = %q", i, a.Result.RecordedBy)
		}
		if a.Result.ID == "" {
			t.Errorf("accepted[%d] has no ID", i)
		}
	}
}

func TestPipeline_MixedReasons(t *testing.T) {
	p := NewPipeline(newPipelineStore(), 2)

	rows := []RawRow{
		resultRow("s1", "c1", "abc", "1"),
		resultRow("s1", "c2", "80", "1"),
		resultRow("s2", "c1", "70", "9"),
	}

	batch, err := p.ImportBatch(context.Background(), rows, "instructor-1")
	if err != nil {
		t.Fatalf("ImportBatch: %v", err)
	}

	want := []ImportRowError{
		{RowNumber: 1, Reason: ReasonScoreNotNumber},
		{RowNumber: 3, Reason: ReasonSemesterRange},
	}
	if len(batch.Errors) != len(want) {
		t.Fatalf("errors = %+v, want %d", batch.Errors, len(want))
	}
	for i, w := range want {
		if batch.Errors[i].RowNumber != w.RowNumber || batch.Errors[i].Reason != w.Reason {
			t.Errorf("error[%d] = (%d, %q), want (%d, %q)",
				i, batch.Errors[i].RowNumber, batch.Errors[i].Reason, w.RowNumber, w.Reason)
		}
	}
	if len(batch.Accepted) != 1 || batch.Accepted[0].RowNumber != 2 {
		t.Errorf("accepted = %+v, want row 2 only", batch.Accepted)
	}
}

func TestPipeline_CheckOrder(t *testing.T) {
	p := NewPipeline(newPipelineStore(), 1)

	tests := []struct {
		name string
		row  RawRow
		want string
	}{
		{"missing score wins over unknown student", resultRow("nobody", "c1", "", "1"), ReasonMissingFields},
		{"missing column", row(FieldStudentID, "s1", FieldCourseID, "c1", FieldScore, "80"), ReasonMissingFields},
		{"whitespace only is missing", resultRow("s1", "  ", "80", "1"), ReasonMissingFields},
		{"non-numeric score before semester", resultRow("s1", "c1", "x", "99"), ReasonScoreNotNumber},
		{"NaN is not a number", resultRow("s1", "c1", "NaN", "1"), ReasonScoreNotNumber},
		{"hex float is not a number", resultRow("s1", "c1", "0x1p6", "1"), ReasonScoreNotNumber},
		{"underscore digits are not a number", resultRow("s1", "c1", "6_4", "1"), ReasonScoreNotNumber},
		{"infinity is not a number", resultRow("s1", "c1", "Inf", "1"), ReasonScoreNotNumber},
		{"exponent form", resultRow("s1", "c1", "8.5e1", "1"), ""},
		{"leading dot", resultRow("s1", "c1", ".5", "1"), ""},
		{"score range before semester", resultRow("s1", "c1", "101", "0"), ReasonScoreRange},
		{"negative score", resultRow("s1", "c1", "-0.5", "1"), ReasonScoreRange},
		{"fractional semester", resultRow("s1", "c1", "80", "3.5"), ReasonSemesterRange},
		{"non-numeric semester", resultRow("s1", "c1", "80", "two"), ReasonSemesterRange},
		{"semester zero", resultRow("s1", "c1", "80", "0"), ReasonSemesterRange},
		{"student before course", resultRow("nobody", "nowhere", "80", "1"), ReasonStudentNotFound},
		{"course not found", resultRow("s1", "nowhere", "80", "1"), ReasonCourseNotFound},
		{"boundary score 0", resultRow("s1", "c1", "0", "1"), ""},
		{"boundary score 100", resultRow("s1", "c1", "100", "8"), ""},
		{"padded values", resultRow(" s1 ", " c1 ", " 89.99 ", " 2 "), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, err := p.ImportBatch(context.Background(), []RawRow{tt.row}, "instructor-1")
			if err != nil {
				t.Fatalf("ImportBatch: %v", err)
			}
			if tt.want == "" {
				if len(batch.Errors) != 0 {
					t.Fatalf("unexpected error %q", batch.Errors[0].Reason)
				}
				return
			}
			if len(batch.Errors) != 1 {
				t.Fatalf("errors = %d, want 1", len(batch.Errors))
			}
			if got := batch.Errors[0].Reason; got != tt.want {
				t.Errorf("Reason = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPipeline_DerivesGradeFromScore(t *testing.T) {
	p := NewPipeline(newPipelineStore(), 1)

	rows := []RawRow{
		row(FieldStudentID, "s1", FieldCourseID, "c1", FieldScore, "89.99", FieldSemester, "1", "grade", "A"),
	}
	batch, err := p.ImportBatch(context.Background(), rows, "instructor-1")
	if err != nil {
		t.Fatalf("ImportBatch: %v", err)
	}
	if len(batch.Accepted) != 1 {
		t.Fatalf("accepted = %d, want 1", len(batch.Accepted))
	}
	if got := batch.Accepted[0].Result.Grade; got != grade.B {
		t.Errorf("Grade = %s, want B (supplied grade column must be ignored)", got)
	}
}

func TestPipeline_BlankRecordKeepsRowNumbers(t *testing.T) {
	input := "studentId,courseId,score,semester\ns1,c1,95,1\n,,,\ns1,missing,80,1\n"
	rows, err := ReadRows(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}

	p := NewPipeline(newPipelineStore(), 2)
	batch, err := p.ImportBatch(context.Background(), rows, "instructor-1")
	if err != nil {
		t.Fatalf("ImportBatch: %v", err)
	}

	if batch.Rows != 3 {
		t.Errorf("Rows = %d, want 3", batch.Rows)
	}
	want := []ImportRowError{
		{RowNumber: 2, Reason: ReasonMissingFields},
		{RowNumber: 3, Reason: ReasonCourseNotFound},
	}
	if len(batch.Errors) != len(want) {
		t.Fatalf("errors = %+v, want %d", batch.Errors, len(want))
	}
	for i, w := range want {
		if batch.Errors[i].RowNumber != w.RowNumber || batch.Errors[i].Reason != w.Reason {
			t.Errorf("error[%d] = (%d, %q), want (%d, %q)",
				i, batch.Errors[i].RowNumber, batch.Errors[i].Reason, w.RowNumber, w.Reason)
		}
	}
}

func TestPipeline_EmptyBatch(t *testing.T) {
	p := NewPipeline(newPipelineStore(), 1)

	batch, err := p.ImportBatch(context.Background(), nil, "instructor-1")
	if err != nil {
		t.Fatalf("ImportBatch: %v", err)
	}
	if batch.Rows != 0 || len(batch.Accepted) != 0 || len(batch.Errors) != 0 {
		t.Errorf("batch = %+v, want empty", batch)
	}
}

func TestPipeline_MemoizesLookups(t *testing.T) {
	store := newPipelineStore()
	p := NewPipeline(store, 4)

	rows := make([]RawRow, 20)
	for i := range rows {
		rows[i] = resultRow("s1", "missing", "80", "1")
	}

	batch, err := p.ImportBatch(context.Background(), rows, "instructor-1")
	if err != nil {
		t.Fatalf("ImportBatch: %v", err)
	}
	if len(batch.Errors) != 20 {
		t.Fatalf("errors = %d, want 20", len(batch.Errors))
	}
	for i, e := range batch.Errors {
		if e.RowNumber != i+1 {
			t.Errorf("error[%d].RowNumber = %d, want %d", i, e.RowNumber, i+1)
		}
	}
	if n := store.studentLookups.Load(); n > 4 {
		t.Errorf("student lookups = %d, want at most one per worker", n)
	}
}

func TestPipeline_TransientLookupFailure(t *testing.T) {
	store := newPipelineStore()
	store.courseErr = errors.New("connection reset by peer")
	p := NewPipeline(store, 2)

	batch, err := p.ImportBatch(context.Background(), []RawRow{resultRow("s1", "c1", "80", "1")}, "instructor-1")
	if err != nil {
		t.Fatalf("ImportBatch: %v", err)
	}
	if len(batch.Errors) != 1 || batch.Errors[0].Reason != ReasonCourseLookup {
		t.Errorf("errors = %+v, want %q", batch.Errors, ReasonCourseLookup)
	}
}

func TestPipeline_CancelledContext(t *testing.T) {
	p := NewPipeline(newPipelineStore(), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ImportBatch(ctx, []RawRow{resultRow("s1", "c1", "80", "1")}, "instructor-1")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
