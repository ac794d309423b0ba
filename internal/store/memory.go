package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/JonMunkholm/gradebook/internal/core"
	"github.com/JonMunkholm/gradebook/internal/grade"
)

// Memory is a core.Store held in process memory. It enforces the same
// uniqueness rules as the PostgreSQL schema and is safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	students map[string]core.Student
	courses  map[string]core.Course
	results  map[string]core.Result
	keys     map[core.ResultKey]string // result key -> result ID
	activity []core.ActivityEntry
}

var _ core.Store = (*Memory)(nil)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		students: make(map[string]core.Student),
		courses:  make(map[string]core.Course),
		results:  make(map[string]core.Result),
		keys:     make(map[core.ResultKey]string),
	}
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

func (m *Memory) StudentByID(_ context.Context, id string) (core.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return core.Student{}, core.ErrStudentNotFound
	}
	return s, nil
}

func (m *Memory) CreateStudent(_ context.Context, s core.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.students {
		if existing.Email == s.Email {
			return core.ErrAlreadyExists
		}
	}
	m.students[s.ID] = s
	return nil
}

func (m *Memory) ListStudents(context.Context) ([]core.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.Student, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b core.Student) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (m *Memory) CourseByID(_ context.Context, id string) (core.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	if !ok {
		return core.Course{}, core.ErrCourseNotFound
	}
	return c, nil
}

func (m *Memory) CreateCourse(_ context.Context, c core.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.courses {
		if existing.Code == c.Code {
			return core.ErrAlreadyExists
		}
	}
	m.courses[c.ID] = c
	return nil
}

func (m *Memory) ListCourses(context.Context) ([]core.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.Course, 0, len(m.courses))
	for _, c := range m.courses {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b core.Course) int { return cmp.Compare(a.Code, b.Code) })
	return out, nil
}

// ---------------------------------------------------------------------------
// Results
// ---------------------------------------------------------------------------

// insertLocked mirrors the foreign keys and unique constraint of the results table.
func (m *Memory) insertLocked(r core.Result) error {
	if _, ok := m.students[r.StudentID]; !ok {
		return core.ErrStudentNotFound
	}
	if _, ok := m.courses[r.CourseID]; !ok {
		return core.ErrCourseNotFound
	}
	if _, taken := m.keys[r.Key()]; taken {
		return core.ErrDuplicateResult
	}
	m.results[r.ID] = r
	m.keys[r.Key()] = r.ID
	return nil
}

func (m *Memory) InsertResult(_ context.Context, r core.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(r)
}

func (m *Memory) InsertResults(ctx context.Context, rs []core.Result) (core.BulkInsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res core.BulkInsertResult
	for i, r := range rs {
		if err := ctx.Err(); err != nil {
			return core.BulkInsertResult{}, err
		}
		if err := m.insertLocked(r); err != nil {
			res.Failed = append(res.Failed, core.BulkInsertFailure{Index: i, Err: err})
			continue
		}
		res.Inserted = append(res.Inserted, i)
	}
	return res, nil
}

func (m *Memory) GetResult(_ context.Context, id string) (core.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[id]
	if !ok {
		return core.Result{}, core.ErrResultNotFound
	}
	return r, nil
}

func (m *Memory) FindResult(_ context.Context, key core.ResultKey) (core.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.keys[key]
	if !ok {
		return core.Result{}, core.ErrResultNotFound
	}
	return m.results[id], nil
}

func (m *Memory) UpdateResult(_ context.Context, r core.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.results[r.ID]
	if !ok {
		return core.ErrResultNotFound
	}
	if owner, taken := m.keys[r.Key()]; taken && owner != r.ID {
		return core.ErrDuplicateResult
	}

	// Only semester, score, grade and updated_at change.
	updated := old
	updated.Semester = r.Semester
	updated.Score = r.Score
	updated.Grade = r.Grade
	updated.UpdatedAt = r.UpdatedAt

	delete(m.keys, old.Key())
	m.keys[updated.Key()] = updated.ID
	m.results[updated.ID] = updated
	return nil
}

func (m *Memory) DeleteResult(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[id]
	if !ok {
		return core.ErrResultNotFound
	}
	delete(m.results, id)
	delete(m.keys, r.Key())
	return nil
}

func (m *Memory) filterLocked(f core.ResultFilter) []core.Result {
	out := make([]core.Result, 0)
	for _, r := range m.results {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b core.Result) int {
		return cmp.Or(
			cmp.Compare(a.Semester, b.Semester),
			a.Date.Compare(b.Date),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return out
}

func (m *Memory) ListResults(_ context.Context, f core.ResultFilter) ([]core.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterLocked(f), nil
}

func (m *Memory) StudentResults(_ context.Context, studentID string) ([]core.ResultWithCourse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := m.filterLocked(core.ResultFilter{StudentID: studentID})
	out := make([]core.ResultWithCourse, 0, len(results))
	for _, r := range results {
		out = append(out, core.ResultWithCourse{Result: r, Course: m.courses[r.CourseID]})
	}
	return out, nil
}

func (m *Memory) ResultStatistics(_ context.Context, f core.ResultFilter) (*core.ResultStatistics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return core.SummarizeResults(m.filterLocked(f)), nil
}

func (m *Memory) GradeDistribution(context.Context) ([]core.GradeCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[grade.Letter]int)
	for _, r := range m.results {
		counts[r.Grade]++
	}
	out := make([]core.GradeCount, 0, len(counts))
	for letter, n := range counts {
		out = append(out, core.GradeCount{Grade: letter, Count: n})
	}
	slices.SortFunc(out, func(a, b core.GradeCount) int { return cmp.Compare(a.Grade, b.Grade) })
	return out, nil
}

// ---------------------------------------------------------------------------
// Activity
// ---------------------------------------------------------------------------

func (m *Memory) InsertActivity(_ context.Context, e core.ActivityEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity = append(m.activity, e)
	return nil
}

func (m *Memory) RecentActivity(_ context.Context, limit int) ([]core.ActivityEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Newest first; entries sharing a timestamp keep reverse insertion order.
	out := slices.Clone(m.activity)
	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b core.ActivityEntry) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) PurgeActivity(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.activity[:0]
	var purged int64
	for _, e := range m.activity {
		if e.CreatedAt.Before(before) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	clear(m.activity[len(kept):])
	m.activity = kept
	return purged, nil
}
