// Package store implements core.Store on PostgreSQL (pgx) and in memory.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/gradebook/internal/config"
	"github.com/JonMunkholm/gradebook/internal/core"
	"github.com/JonMunkholm/gradebook/internal/grade"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQL error codes and constraint names mapped to domain errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	constraintResultKey     = "results_student_course_semester_key"
	constraintResultStudent = "results_student_id_fkey"
	constraintResultCourse  = "results_course_id_fkey"
)

// Postgres is a core.Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ core.Store = (*Postgres)(nil)

// NewPostgres wraps an open pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Connect opens a pool with the configured limits and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Ping reports whether the database is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// schema is applied statement by statement by Migrate. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		email      TEXT NOT NULL CONSTRAINT students_email_key UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS courses (
		id             TEXT PRIMARY KEY,
		code           TEXT NOT NULL CONSTRAINT courses_code_key UNIQUE,
		name           TEXT NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		credits        INTEGER NOT NULL CHECK (credits BETWEEN 1 AND 10),
		duration_weeks INTEGER NOT NULL CHECK (duration_weeks BETWEEN 1 AND 52),
		instructor_id  TEXT NOT NULL DEFAULT '',
		is_active      BOOLEAN NOT NULL DEFAULT true,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS results (
		id          TEXT PRIMARY KEY,
		student_id  TEXT NOT NULL CONSTRAINT results_student_id_fkey REFERENCES students(id),
		course_id   TEXT NOT NULL CONSTRAINT results_course_id_fkey REFERENCES courses(id),
		semester    INTEGER NOT NULL CHECK (semester BETWEEN 1 AND 8),
		score       DOUBLE PRECISION NOT NULL CHECK (score >= 0 AND score <= 100),
		grade       TEXT NOT NULL,
		recorded_by TEXT NOT NULL,
		date        TIMESTAMPTZ NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL,
		CONSTRAINT results_student_course_semester_key UNIQUE (student_id, course_id, semester)
	)`,
	`CREATE INDEX IF NOT EXISTS results_course_semester_idx ON results (course_id, semester)`,
	`CREATE TABLE IF NOT EXISTS activity (
		id           TEXT PRIMARY KEY,
		type         TEXT NOT NULL,
		title        TEXT NOT NULL,
		description  TEXT NOT NULL,
		reference_id TEXT NOT NULL DEFAULT '',
		performed_by TEXT NOT NULL DEFAULT '',
		ip_address   TEXT NOT NULL DEFAULT '',
		user_agent   TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS activity_created_at_idx ON activity (created_at DESC)`,
}

// Migrate creates tables and indexes that do not exist yet.
func (p *Postgres) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i+1, err)
		}
	}
	slog.Info("database schema up to date", "statements", len(schema))
	return nil
}

// mapPgError translates constraint violations into domain errors.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		if pgErr.ConstraintName == constraintResultKey {
			return fmt.Errorf("%s: %w", pgErr.Detail, core.ErrDuplicateResult)
		}
		return fmt.Errorf("%s: %w", pgErr.Detail, core.ErrAlreadyExists)
	case pgForeignKeyViolation:
		switch pgErr.ConstraintName {
		case constraintResultStudent:
			return core.ErrStudentNotFound
		case constraintResultCourse:
			return core.ErrCourseNotFound
		}
	}
	return err
}

// notFound maps pgx.ErrNoRows to the entity's not-found error.
func notFound(err, target error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return target
	}
	return err
}

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

const studentColumns = `id, name, email, created_at`

func scanStudent(row pgx.CollectableRow) (core.Student, error) {
	var s core.Student
	err := row.Scan(&s.ID, &s.Name, &s.Email, &s.CreatedAt)
	return s, err
}

func (p *Postgres) StudentByID(ctx context.Context, id string) (core.Student, error) {
	rows, _ := p.pool.Query(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id)
	s, err := pgx.CollectExactlyOneRow(rows, scanStudent)
	if err != nil {
		return core.Student{}, notFound(err, core.ErrStudentNotFound)
	}
	return s, nil
}

func (p *Postgres) CreateStudent(ctx context.Context, s core.Student) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO students (id, name, email, created_at) VALUES ($1, $2, $3, $4)`,
		s.ID, s.Name, s.Email, s.CreatedAt)
	return mapPgError(err)
}

func (p *Postgres) ListStudents(ctx context.Context) ([]core.Student, error) {
	rows, _ := p.pool.Query(ctx, `SELECT `+studentColumns+` FROM students ORDER BY name, id`)
	return pgx.CollectRows(rows, scanStudent)
}

const courseColumns = `id, code, name, description, credits, duration_weeks, instructor_id, is_active, created_at`

func scanCourse(row pgx.CollectableRow) (core.Course, error) {
	var c core.Course
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Description, &c.Credits,
		&c.DurationWeeks, &c.InstructorID, &c.IsActive, &c.CreatedAt)
	return c, err
}

func (p *Postgres) CourseByID(ctx context.Context, id string) (core.Course, error) {
	rows, _ := p.pool.Query(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id)
	c, err := pgx.CollectExactlyOneRow(rows, scanCourse)
	if err != nil {
		return core.Course{}, notFound(err, core.ErrCourseNotFound)
	}
	return c, nil
}

func (p *Postgres) CreateCourse(ctx context.Context, c core.Course) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO courses (`+courseColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.Code, c.Name, c.Description, c.Credits, c.DurationWeeks, c.InstructorID, c.IsActive, c.CreatedAt)
	return mapPgError(err)
}

func (p *Postgres) ListCourses(ctx context.Context) ([]core.Course, error) {
	rows, _ := p.pool.Query(ctx, `SELECT `+courseColumns+` FROM courses ORDER BY code`)
	return pgx.CollectRows(rows, scanCourse)
}

// ---------------------------------------------------------------------------
// Results
// ---------------------------------------------------------------------------

const resultColumns = `id, student_id, course_id, semester, score, grade, recorded_by, date, created_at, updated_at`

const insertResultSQL = `INSERT INTO results (` + resultColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

func resultArgs(r core.Result) []any {
	return []any{r.ID, r.StudentID, r.CourseID, r.Semester, r.Score, string(r.Grade),
		r.RecordedBy, r.Date, r.CreatedAt, r.UpdatedAt}
}

func scanResultInto(row pgx.Row, r *core.Result, extra ...any) error {
	var letter string
	dest := []any{&r.ID, &r.StudentID, &r.CourseID, &r.Semester, &r.Score, &letter,
		&r.RecordedBy, &r.Date, &r.CreatedAt, &r.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	r.Grade = grade.Letter(letter)
	return nil
}

func scanResult(row pgx.CollectableRow) (core.Result, error) {
	var r core.Result
	err := scanResultInto(row, &r)
	return r, err
}

func (p *Postgres) InsertResult(ctx context.Context, r core.Result) error {
	_, err := p.pool.Exec(ctx, insertResultSQL, resultArgs(r)...)
	return mapPgError(err)
}

// InsertResults inserts every record in one transaction, isolating each
// insert in a savepoint: PostgreSQL aborts the whole transaction on any
// error, so a rejected record is rolled back to its savepoint and the loop
// continues.
func (p *Postgres) InsertResults(ctx context.Context, rs []core.Result) (core.BulkInsertResult, error) {
	var res core.BulkInsertResult
	if len(rs) == 0 {
		return res, nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	for i, r := range rs {
		if err := ctx.Err(); err != nil {
			return core.BulkInsertResult{}, fmt.Errorf("insert cancelled at record %d: %w", i, err)
		}

		savepoint := fmt.Sprintf("sp_%d", i)
		if _, err := tx.Exec(ctx, "SAVEPOINT "+savepoint); err != nil {
			return core.BulkInsertResult{}, fmt.Errorf("create savepoint at record %d: %w", i, err)
		}

		if _, err := tx.Exec(ctx, insertResultSQL, resultArgs(r)...); err != nil {
			if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
				return core.BulkInsertResult{}, fmt.Errorf("rollback savepoint at record %d: %w", i, rbErr)
			}
			res.Failed = append(res.Failed, core.BulkInsertFailure{Index: i, Err: mapPgError(err)})
			continue
		}

		if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
			return core.BulkInsertResult{}, fmt.Errorf("release savepoint at record %d: %w", i, err)
		}
		res.Inserted = append(res.Inserted, i)
	}

	if err := tx.Commit(ctx); err != nil {
		return core.BulkInsertResult{}, fmt.Errorf("commit transaction: %w", err)
	}
	return res, nil
}

func (p *Postgres) GetResult(ctx context.Context, id string) (core.Result, error) {
	rows, _ := p.pool.Query(ctx, `SELECT `+resultColumns+` FROM results WHERE id = $1`, id)
	r, err := pgx.CollectExactlyOneRow(rows, scanResult)
	if err != nil {
		return core.Result{}, notFound(err, core.ErrResultNotFound)
	}
	return r, nil
}

func (p *Postgres) FindResult(ctx context.Context, key core.ResultKey) (core.Result, error) {
	rows, _ := p.pool.Query(ctx,
		`SELECT `+resultColumns+` FROM results WHERE student_id = $1 AND course_id = $2 AND semester = $3`,
		key.StudentID, key.CourseID, key.Semester)
	r, err := pgx.CollectExactlyOneRow(rows, scanResult)
	if err != nil {
		return core.Result{}, notFound(err, core.ErrResultNotFound)
	}
	return r, nil
}

func (p *Postgres) UpdateResult(ctx context.Context, r core.Result) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE results SET semester = $2, score = $3, grade = $4, updated_at = $5 WHERE id = $1`,
		r.ID, r.Semester, r.Score, string(r.Grade), r.UpdatedAt)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrResultNotFound
	}
	return nil
}

func (p *Postgres) DeleteResult(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM results WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrResultNotFound
	}
	return nil
}

func resultWhere(f core.ResultFilter) (string, []any) {
	wb := newWhereBuilder()
	wb.add("course_id", f.CourseID)
	wb.add("student_id", f.StudentID)
	wb.add("semester", f.Semester)
	return wb.build()
}

func (p *Postgres) ListResults(ctx context.Context, f core.ResultFilter) ([]core.Result, error) {
	where, args := resultWhere(f)
	rows, _ := p.pool.Query(ctx,
		`SELECT `+resultColumns+` FROM results`+where+` ORDER BY semester, date, id`, args...)
	return pgx.CollectRows(rows, scanResult)
}

func (p *Postgres) StudentResults(ctx context.Context, studentID string) ([]core.ResultWithCourse, error) {
	rows, _ := p.pool.Query(ctx, `
		SELECT r.id, r.student_id, r.course_id, r.semester, r.score, r.grade, r.recorded_by,
		       r.date, r.created_at, r.updated_at,
		       c.id, c.code, c.name, c.description, c.credits, c.duration_weeks,
		       c.instructor_id, c.is_active, c.created_at
		FROM results r
		JOIN courses c ON c.id = r.course_id
		WHERE r.student_id = $1
		ORDER BY r.semester, c.code`, studentID)

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.ResultWithCourse, error) {
		var rc core.ResultWithCourse
		c := &rc.Course
		err := scanResultInto(row, &rc.Result,
			&c.ID, &c.Code, &c.Name, &c.Description, &c.Credits, &c.DurationWeeks,
			&c.InstructorID, &c.IsActive, &c.CreatedAt)
		return rc, err
	})
}

func (p *Postgres) ResultStatistics(ctx context.Context, f core.ResultFilter) (*core.ResultStatistics, error) {
	where, args := resultWhere(f)

	var (
		count           int
		avg, minS, maxS *float64
	)
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*), AVG(score), MIN(score), MAX(score) FROM results`+where, args...,
	).Scan(&count, &avg, &minS, &maxS)
	if err != nil {
		return nil, fmt.Errorf("result statistics: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	stats := &core.ResultStatistics{
		Count:             count,
		AverageScore:      grade.Round2(*avg),
		MinScore:          *minS,
		MaxScore:          *maxS,
		GradeDistribution: core.NewGradeDistribution(),
	}

	counts, err := p.gradeCounts(ctx, where, args)
	if err != nil {
		return nil, err
	}
	for _, c := range counts {
		stats.GradeDistribution[c.Grade] = c.Count
	}
	return stats, nil
}

func (p *Postgres) GradeDistribution(ctx context.Context) ([]core.GradeCount, error) {
	return p.gradeCounts(ctx, "", nil)
}

func (p *Postgres) gradeCounts(ctx context.Context, where string, args []any) ([]core.GradeCount, error) {
	rows, _ := p.pool.Query(ctx,
		`SELECT grade, COUNT(*) FROM results`+where+` GROUP BY grade ORDER BY grade`, args...)
	counts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.GradeCount, error) {
		var (
			letter string
			gc     core.GradeCount
		)
		err := row.Scan(&letter, &gc.Count)
		gc.Grade = grade.Letter(letter)
		return gc, err
	})
	if err != nil {
		return nil, fmt.Errorf("grade distribution: %w", err)
	}
	return counts, nil
}

// ---------------------------------------------------------------------------
// Activity
// ---------------------------------------------------------------------------

func (p *Postgres) InsertActivity(ctx context.Context, e core.ActivityEntry) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO activity (id, type, title, description, reference_id, performed_by, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, string(e.Type), e.Title, e.Description, e.ReferenceID, e.PerformedBy, e.IPAddress, e.UserAgent, e.CreatedAt)
	return err
}

func (p *Postgres) RecentActivity(ctx context.Context, limit int) ([]core.ActivityEntry, error) {
	rows, _ := p.pool.Query(ctx, `
		SELECT id, type, title, description, reference_id, performed_by, ip_address, user_agent, created_at
		FROM activity
		ORDER BY created_at DESC, id
		LIMIT $1`, limit)

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.ActivityEntry, error) {
		var (
			e   core.ActivityEntry
			typ string
		)
		err := row.Scan(&e.ID, &typ, &e.Title, &e.Description, &e.ReferenceID,
			&e.PerformedBy, &e.IPAddress, &e.UserAgent, &e.CreatedAt)
		e.Type = core.ActivityType(typ)
		return e, err
	})
}

func (p *Postgres) PurgeActivity(ctx context.Context, before time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM activity WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge activity: %w", err)
	}
	return tag.RowsAffected(), nil
}
