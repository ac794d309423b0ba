package core

// pipeline.go implements best-effort batch import of results.
//
// Processing runs in two passes over the rows:
//
//  1. Sequential: each row is numbered as it is dequeued, then its fields
//     are checked. Rows failing a field check get their reason immediately.
//  2. Concurrent: rows that passed are resolved against the Directory with
//     bounded parallelism. Each row writes only its own outcome slot.
//
// Outcomes are then collected in row order, so error attribution never
// depends on goroutine scheduling or on how many rows were accepted.

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JonMunkholm/gradebook/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DefaultLookupConcurrency is used when a Pipeline is built with a
// non-positive concurrency.
const DefaultLookupConcurrency = 8

// Directory resolves student and course references. Implementations return
// an error matching ErrNotFound when the entity does not exist.
type Directory interface {
	StudentByID(ctx context.Context, id string) (Student, error)
	CourseByID(ctx context.Context, id string) (Course, error)
}

// Pipeline validates import rows and turns them into candidate results.
// A Pipeline holds no per-batch state and is safe for concurrent use.
type Pipeline struct {
	dir         Directory
	concurrency int
	now         func() time.Time
	newID       func() string
}

// NewPipeline creates a pipeline resolving references through dir, with at
// most concurrency lookups in flight per batch.
func NewPipeline(dir Directory, concurrency int) *Pipeline {
	if concurrency <= 0 {
		concurrency = DefaultLookupConcurrency
	}
	return &Pipeline{
		dir:         dir,
		concurrency: concurrency,
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
}

// rowOutcome is the result of processing one row.
type rowOutcome struct {
	rowNumber int
	row       RawRow
	fields    rowFields
	reason    string // empty when the row was accepted
	result    Result
}

// ImportBatch processes every row and returns candidate results plus one
// error per failed row. A failing row never stops later rows.
//
// The returned error is non-nil only when ctx is cancelled; the batch is then
// abandoned between rows and no partial output is returned.
func (p *Pipeline) ImportBatch(ctx context.Context, rows []RawRow, actor string) (ImportBatch, error) {
	outcomes := make([]rowOutcome, len(rows))

	// Pass 1: number and field-check every row.
	rowNumber := 0
	pending := make([]int, 0, len(rows))
	for i, row := range rows {
		rowNumber++
		outcomes[i] = rowOutcome{rowNumber: rowNumber, row: row}

		fields, _, reason := checkRowFields(row)
		if reason != "" {
			outcomes[i].reason = reason
			continue
		}
		outcomes[i].fields = fields
		pending = append(pending, i)
	}

	// Pass 2: resolve references for rows that passed.
	lookups := newBatchLookups(p.dir)
	now := p.now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, i := range pending {
		out := &outcomes[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if reason := lookups.resolve(gctx, out.fields); reason != "" {
				out.reason = reason
				return nil
			}
			out.result = Result{
				ID:         p.newID(),
				StudentID:  out.fields.StudentID,
				CourseID:   out.fields.CourseID,
				Semester:   out.fields.Semester,
				Score:      out.fields.Score,
				RecordedBy: actor,
				Date:       now,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			out.result.DeriveGrade()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ImportBatch{}, err
	}
	if err := ctx.Err(); err != nil {
		return ImportBatch{}, err
	}

	batch := ImportBatch{Rows: len(rows)}
	for _, out := range outcomes {
		if out.reason != "" {
			batch.Errors = append(batch.Errors, ImportRowError{
				RowNumber: out.rowNumber,
				Reason:    out.reason,
				RawData:   out.row,
			})
			continue
		}
		batch.Accepted = append(batch.Accepted, AcceptedRow{
			RowNumber: out.rowNumber,
			Result:    out.result,
		})
	}
	return batch, nil
}

// batchLookups memoizes directory lookups for the duration of one batch, so
// a student referenced by many rows is fetched once.
type batchLookups struct {
	dir   Directory
	group singleflight.Group

	mu    sync.Mutex
	found map[string]error
}

func newBatchLookups(dir Directory) *batchLookups {
	return &batchLookups{dir: dir, found: make(map[string]error)}
}

// resolve runs checks 5 and 6 and returns the failure reason, or "".
func (l *batchLookups) resolve(ctx context.Context, f rowFields) string {
	if err := l.lookup("student:"+f.StudentID, func() error {
		_, err := l.dir.StudentByID(ctx, f.StudentID)
		return err
	}); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ReasonStudentNotFound
		}
		logging.FromContext(ctx).Warn("import: student lookup failed", "student_id", f.StudentID, "error", err)
		return ReasonStudentLookup
	}

	if err := l.lookup("course:"+f.CourseID, func() error {
		_, err := l.dir.CourseByID(ctx, f.CourseID)
		return err
	}); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ReasonCourseNotFound
		}
		logging.FromContext(ctx).Warn("import: course lookup failed", "course_id", f.CourseID, "error", err)
		return ReasonCourseLookup
	}
	return ""
}

// lookup returns the memoized outcome for key, calling fn at most once per
// key at a time. Transient failures are not memoized.
func (l *batchLookups) lookup(key string, fn func() error) error {
	l.mu.Lock()
	err, ok := l.found[key]
	l.mu.Unlock()
	if ok {
		return err
	}

	_, err, _ = l.group.Do(key, func() (any, error) {
		return nil, fn()
	})

	if err == nil || errors.Is(err, ErrNotFound) {
		l.mu.Lock()
		l.found[key] = err
		l.mu.Unlock()
	}
	return err
}
