package core

import (
	"context"
	"time"
)

// Catalog manages the student directory and course catalog.
type Catalog interface {
	Directory
	CreateStudent(ctx context.Context, s Student) error
	ListStudents(ctx context.Context) ([]Student, error)
	CreateCourse(ctx context.Context, c Course) error
	ListCourses(ctx context.Context) ([]Course, error)
}

// ResultStore persists results. It enforces uniqueness of the
// (student, course, semester) triple and reports violations as
// ErrDuplicateResult.
type ResultStore interface {
	InsertResult(ctx context.Context, r Result) error
	// InsertResults inserts each record independently; one failure does not
	// undo the others.
	InsertResults(ctx context.Context, rs []Result) (BulkInsertResult, error)
	GetResult(ctx context.Context, id string) (Result, error)
	FindResult(ctx context.Context, key ResultKey) (Result, error)
	UpdateResult(ctx context.Context, r Result) error
	DeleteResult(ctx context.Context, id string) error
	ListResults(ctx context.Context, f ResultFilter) ([]Result, error)
	StudentResults(ctx context.Context, studentID string) ([]ResultWithCourse, error)
	ResultStatistics(ctx context.Context, f ResultFilter) (*ResultStatistics, error)
	GradeDistribution(ctx context.Context) ([]GradeCount, error)
}

// ActivityStore persists the recent-activity feed.
type ActivityStore interface {
	InsertActivity(ctx context.Context, e ActivityEntry) error
	RecentActivity(ctx context.Context, limit int) ([]ActivityEntry, error)
	PurgeActivity(ctx context.Context, before time.Time) (int64, error)
}

// Store is everything the Service needs from persistence.
type Store interface {
	Catalog
	ResultStore
	ActivityStore
}
