package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/gradebook/internal/config"
	"github.com/google/uuid"
)

// DefaultImportTimeout bounds a single import when the config leaves it unset.
var DefaultImportTimeout = 5 * time.Minute

// Service provides the business operations for results, the catalog and
// the activity feed.
type Service struct {
	store    Store
	dir      Directory
	pipeline *Pipeline
	limiter  *ImportLimiter

	importTimeout time.Duration
	now           func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithDirectory resolves import references through dir instead of the store,
// e.g. a caching layer.
func WithDirectory(dir Directory) Option {
	return func(s *Service) { s.dir = dir }
}

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service backed by store.
func NewService(store Store, cfg config.ImportConfig, opts ...Option) *Service {
	s := &Service{
		store:         store,
		dir:           store,
		limiter:       NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime),
		importTimeout: cfg.Timeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.importTimeout <= 0 {
		s.importTimeout = DefaultImportTimeout
	}

	s.pipeline = NewPipeline(s.dir, cfg.LookupConcurrency)
	s.pipeline.now = s.now
	return s
}

// Pipeline returns the service's import pipeline.
func (s *Service) Pipeline() *Pipeline {
	return s.pipeline
}

// ImportLimiterStatus reports import slot usage.
func (s *Service) ImportLimiterStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until in-flight imports finish or ctx ends.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// requireActor returns the acting user or ErrMissingActor.
func requireActor(ctx context.Context) (string, error) {
	actor := ActorFromContext(ctx)
	if actor == "" {
		return "", ErrMissingActor
	}
	return actor, nil
}

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

// CreateStudent adds a student to the directory.
func (s *Service) CreateStudent(ctx context.Context, st Student) (Student, error) {
	if err := ValidateStudent(&st); err != nil {
		return Student{}, err
	}
	st.ID = uuid.New().String()
	st.CreatedAt = s.now()

	if err := s.store.CreateStudent(ctx, st); err != nil {
		return Student{}, fmt.Errorf("create student: %w", err)
	}

	s.recordActivity(ctx, ActivityUser, "New student", fmt.Sprintf("Student %s registered", st.Name), st.ID)
	return st, nil
}

// GetStudent returns a student by ID.
func (s *Service) GetStudent(ctx context.Context, id string) (Student, error) {
	return s.store.StudentByID(ctx, id)
}

// ListStudents returns all students.
func (s *Service) ListStudents(ctx context.Context) ([]Student, error) {
	return s.store.ListStudents(ctx)
}

// CreateCourse adds a course to the catalog. New courses are active.
func (s *Service) CreateCourse(ctx context.Context, c Course) (Course, error) {
	if err := ValidateCourse(&c); err != nil {
		return Course{}, err
	}
	c.ID = uuid.New().String()
	c.IsActive = true
	c.CreatedAt = s.now()

	if err := s.store.CreateCourse(ctx, c); err != nil {
		return Course{}, fmt.Errorf("create course: %w", err)
	}

	s.recordActivity(ctx, ActivityCourse, "New course", fmt.Sprintf("Course %s - %s created", c.Code, c.Name), c.ID)
	return c, nil
}

// GetCourse returns a course by ID.
func (s *Service) GetCourse(ctx context.Context, id string) (Course, error) {
	return s.store.CourseByID(ctx, id)
}

// ListCourses returns all courses.
func (s *Service) ListCourses(ctx context.Context) ([]Course, error) {
	return s.store.ListCourses(ctx)
}

// ---------------------------------------------------------------------------
// Results
// ---------------------------------------------------------------------------

// CreateResultParams are the inputs of CreateResult. Nil pointers are missing fields.
type CreateResultParams struct {
	StudentID string
	CourseID  string
	Semester  *int
	Score     *float64
}

// UpdateResultParams are the inputs of UpdateResult. Nil fields are left unchanged.
// There is deliberately no Grade field.
type UpdateResultParams struct {
	Score    *float64
	Semester *int
}

// CreateResult validates and records a single result. The acting user is
// taken from ctx.
//
// Failure kinds: ErrInvalidInput for missing or out-of-range fields,
// ErrStudentNotFound / ErrCourseNotFound for unresolved references,
// ErrDuplicateResult when the (student, course, semester) triple is taken.
func (s *Service) CreateResult(ctx context.Context, p CreateResultParams) (Result, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return Result{}, err
	}

	p.StudentID = strings.TrimSpace(p.StudentID)
	p.CourseID = strings.TrimSpace(p.CourseID)
	if p.StudentID == "" || p.CourseID == "" || p.Semester == nil || p.Score == nil {
		return Result{}, invalid("", "", ReasonMissingFields)
	}
	if err := ValidateScore(*p.Score); err != nil {
		return Result{}, err
	}
	if err := ValidateSemester(*p.Semester); err != nil {
		return Result{}, err
	}

	if _, err := s.store.StudentByID(ctx, p.StudentID); err != nil {
		return Result{}, lookupError(err, ErrStudentNotFound, "student")
	}
	if _, err := s.store.CourseByID(ctx, p.CourseID); err != nil {
		return Result{}, lookupError(err, ErrCourseNotFound, "course")
	}

	key := ResultKey{StudentID: p.StudentID, CourseID: p.CourseID, Semester: *p.Semester}
	if _, err := s.store.FindResult(ctx, key); err == nil {
		return Result{}, fmt.Errorf("student %s, course %s, semester %d: %w",
			key.StudentID, key.CourseID, key.Semester, ErrDuplicateResult)
	} else if !errors.Is(err, ErrNotFound) {
		return Result{}, fmt.Errorf("check existing result: %w", err)
	}

	now := s.now()
	r := Result{
		ID:         uuid.New().String(),
		StudentID:  p.StudentID,
		CourseID:   p.CourseID,
		Semester:   *p.Semester,
		Score:      *p.Score,
		RecordedBy: actor,
		Date:       now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.DeriveGrade()

	// The store's unique constraint still catches a concurrent writer.
	if err := s.store.InsertResult(ctx, r); err != nil {
		return Result{}, fmt.Errorf("insert result: %w", err)
	}

	s.recordActivity(ctx, ActivityResult, "Result recorded",
		fmt.Sprintf("Semester %d result recorded: %s (%g)", r.Semester, r.Grade, r.Score), r.ID)
	return r, nil
}

// UpdateResult changes a result's score and/or semester. A new score always
// re-derives the grade; a semester-only change leaves the grade as it was.
func (s *Service) UpdateResult(ctx context.Context, id string, p UpdateResultParams) (Result, error) {
	if _, err := requireActor(ctx); err != nil {
		return Result{}, err
	}
	if p.Score != nil {
		if err := ValidateScore(*p.Score); err != nil {
			return Result{}, err
		}
	}
	if p.Semester != nil {
		if err := ValidateSemester(*p.Semester); err != nil {
			return Result{}, err
		}
	}

	r, err := s.store.GetResult(ctx, id)
	if err != nil {
		return Result{}, err
	}

	if p.Score != nil {
		r.Score = *p.Score
		r.DeriveGrade()
	}
	if p.Semester != nil {
		r.Semester = *p.Semester
	}
	r.UpdatedAt = s.now()

	if err := s.store.UpdateResult(ctx, r); err != nil {
		return Result{}, fmt.Errorf("update result: %w", err)
	}

	s.recordActivity(ctx, ActivityResult, "Result updated",
		fmt.Sprintf("Semester %d result updated: %s (%g)", r.Semester, r.Grade, r.Score), r.ID)
	return r, nil
}

// GetResult returns a result by ID.
func (s *Service) GetResult(ctx context.Context, id string) (Result, error) {
	return s.store.GetResult(ctx, id)
}

// DeleteResult removes a result.
func (s *Service) DeleteResult(ctx context.Context, id string) error {
	if _, err := requireActor(ctx); err != nil {
		return err
	}
	if err := s.store.DeleteResult(ctx, id); err != nil {
		return err
	}
	s.recordActivity(ctx, ActivityResult, "Result deleted", "Result "+id+" deleted", id)
	return nil
}

// ListResults returns results matching f, ordered by semester then date.
func (s *Service) ListResults(ctx context.Context, f ResultFilter) ([]Result, error) {
	if f.Semester != 0 {
		if err := ValidateSemester(f.Semester); err != nil {
			return nil, err
		}
	}
	return s.store.ListResults(ctx, f)
}

// lookupError maps a directory lookup failure to the entity's not-found error.
func lookupError(err, notFound error, entity string) error {
	if errors.Is(err, ErrNotFound) {
		return notFound
	}
	return fmt.Errorf("lookup %s: %w", entity, err)
}
