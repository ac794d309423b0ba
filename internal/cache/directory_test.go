package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JonMunkholm/gradebook/internal/core"
	goredis "github.com/redis/go-redis/v9"
)

type stubDirectory struct {
	students map[string]core.Student
	courses  map[string]core.Course
	calls    int
}

func (s *stubDirectory) StudentByID(_ context.Context, id string) (core.Student, error) {
	s.calls++
	st, ok := s.students[id]
	if !ok {
		return core.Student{}, core.ErrStudentNotFound
	}
	return st, nil
}

func (s *stubDirectory) CourseByID(_ context.Context, id string) (core.Course, error) {
	s.calls++
	c, ok := s.courses[id]
	if !ok {
		return core.Course{}, core.ErrCourseNotFound
	}
	return c, nil
}

// unreachable returns a client pointed at a port nothing listens on.
func unreachable(t *testing.T) *goredis.Client {
	t.Helper()
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestKeys(t *testing.T) {
	if got := studentKey("s1"); got != "gradebook:student:s1" {
		t.Errorf("studentKey = %q", got)
	}
	if got := courseKey("c1"); got != "gradebook:course:c1" {
		t.Errorf("courseKey = %q", got)
	}
}

func TestDirectory_FallsBackWhenRedisDown(t *testing.T) {
	backing := &stubDirectory{
		students: map[string]core.Student{"s1": {ID: "s1", Name: "Ada"}},
		courses:  map[string]core.Course{"c1": {ID: "c1", Code: "CS101", Credits: 3}},
	}
	dir := NewDirectory(unreachable(t), backing, time.Minute)
	ctx := context.Background()

	st, err := dir.StudentByID(ctx, "s1")
	if err != nil || st.Name != "Ada" {
		t.Fatalf("StudentByID = %+v, %v", st, err)
	}
	c, err := dir.CourseByID(ctx, "c1")
	if err != nil || c.Credits != 3 {
		t.Fatalf("CourseByID = %+v, %v", c, err)
	}
	if backing.calls != 2 {
		t.Errorf("backing calls = %d, want 2", backing.calls)
	}
}

func TestDirectory_NotFoundPassesThrough(t *testing.T) {
	dir := NewDirectory(unreachable(t), &stubDirectory{}, time.Minute)

	if _, err := dir.StudentByID(context.Background(), "nobody"); !errors.Is(err, core.ErrStudentNotFound) {
		t.Errorf("err = %v, want ErrStudentNotFound", err)
	}
	if _, err := dir.CourseByID(context.Background(), "nothing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
