package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/gradebook/internal/config"
	"github.com/JonMunkholm/gradebook/internal/core"
	"github.com/JonMunkholm/gradebook/internal/store"
	mw "github.com/JonMunkholm/gradebook/internal/web/middleware"
)

const testActor = "instructor-1"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
		Import: config.ImportConfig{
			MaxFileSize:       1 << 20,
			MaxConcurrent:     2,
			MaxWaitTime:       100 * time.Millisecond,
			Timeout:           time.Minute,
			LookupConcurrency: 4,
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, health Pinger) (*Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	svc := core.NewService(mem, cfg.Import)
	srv := NewServer(svc, cfg, health)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, mem
}

// do sends a JSON request as testActor unless actor is "-".
func do(t *testing.T, srv *Server, method, path string, body any, actor string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "-" {
		req.Header.Set(mw.ActorHeader, actor)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

// seed creates one student and the given courses (code -> credits) and
// returns their IDs.
func seed(t *testing.T, srv *Server, courses map[string]int) (string, map[string]string) {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/students", map[string]string{"name": "Ada", "email": "ADA@example.edu"}, testActor)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create student = %d %s", rec.Code, rec.Body.String())
	}
	student := decode[core.Student](t, rec)
	if student.Email != "ada@example.edu" {
		t.Errorf("email = %q, want lower-cased", student.Email)
	}

	ids := make(map[string]string)
	for code, credits := range courses {
		rec := do(t, srv, http.MethodPost, "/api/courses", map[string]any{
			"code": code, "name": code + " course", "credits": credits, "durationWeeks": 12,
		}, testActor)
		if rec.Code != http.StatusCreated {
			t.Fatalf("create course %s = %d %s", code, rec.Code, rec.Body.String())
		}
		ids[code] = decode[core.Course](t, rec).ID
	}
	return student.ID, ids
}

func TestResultLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), nil)
	studentID, courses := seed(t, srv, map[string]int{"CS101": 3})

	body := map[string]any{"studentId": studentID, "courseId": courses["CS101"], "semester": 1, "score": 85, "grade": "A"}
	rec := do(t, srv, http.MethodPost, "/api/results", body, testActor)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", rec.Code, rec.Body.String())
	}
	created := decode[resultResponse](t, rec).Result
	if created.Grade != "B" || created.RecordedBy != testActor {
		t.Errorf("created = %+v, want grade B recorded by %s", created, testActor)
	}

	rec = do(t, srv, http.MethodPost, "/api/results", body, testActor)
	if rec.Code != http.StatusConflict || decode[ErrorResponse](t, rec).Code != "RES001" {
		t.Errorf("duplicate = %d %s, want 409 RES001", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodPut, "/api/results/"+created.ID, map[string]any{"score": 95}, testActor)
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d %s", rec.Code, rec.Body.String())
	}
	if got := decode[resultResponse](t, rec).Result; got.Grade != "A" || got.Score != 95 {
		t.Errorf("updated = %+v, want 95/A", got)
	}

	rec = do(t, srv, http.MethodGet, "/api/results/student/"+studentID, nil, "-")
	if rec.Code != http.StatusOK {
		t.Fatalf("transcript = %d %s", rec.Code, rec.Body.String())
	}
	tr := decode[core.Transcript](t, rec)
	if tr.CGPA == nil || *tr.CGPA != 4 || len(tr.Semesters) != 1 {
		t.Errorf("transcript = %+v", tr)
	}

	rec = do(t, srv, http.MethodDelete, "/api/results/"+created.ID, nil, testActor)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete = %d", rec.Code)
	}
	rec = do(t, srv, http.MethodGet, "/api/results/"+created.ID, nil, "-")
	if rec.Code != http.StatusNotFound || decode[ErrorResponse](t, rec).Code != "RES002" {
		t.Errorf("get deleted = %d %s, want 404 RES002", rec.Code, rec.Body.String())
	}
}

func TestCreateResult_Errors(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), nil)
	studentID, courses := seed(t, srv, map[string]int{"CS101": 3})
	valid := func() map[string]any {
		return map[string]any{"studentId": studentID, "courseId": courses["CS101"], "semester": 2, "score": 70}
	}

	tests := []struct {
		name   string
		mutate func(map[string]any)
		actor  string
		status int
		code   string
	}{
		{"missing actor", func(map[string]any) {}, "-", http.StatusUnauthorized, "RES006"},
		{"score out of range", func(b map[string]any) { b["score"] = 101 }, testActor, http.StatusBadRequest, "VAL002"},
		{"semester out of range", func(b map[string]any) { b["semester"] = 9 }, testActor, http.StatusBadRequest, "VAL003"},
		{"missing score", func(b map[string]any) { delete(b, "score") }, testActor, http.StatusBadRequest, "VAL001"},
		{"unknown student", func(b map[string]any) { b["studentId"] = "nobody" }, testActor, http.StatusNotFound, "RES003"},
		{"unknown course", func(b map[string]any) { b["courseId"] = "nothing" }, testActor, http.StatusNotFound, "RES004"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := valid()
			tt.mutate(body)
			rec := do(t, srv, http.MethodPost, "/api/results", body, tt.actor)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			if got := decode[ErrorResponse](t, rec).Code; got != tt.code {
				t.Errorf("code = %s, want %s", got, tt.code)
			}
		})
	}
}

func TestCreateCourse_ValidationFields(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), nil)

	rec := do(t, srv, http.MethodPost, "/api/courses", map[string]any{"code": " ", "name": "Algebra", "credits": 0, "durationWeeks": 12}, testActor)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decode[ErrorResponse](t, rec)
	if resp.Code != "VAL001" {
		t.Errorf("code = %s, want VAL001", resp.Code)
	}
	for _, field := range []string{"code", "credits"} {
		if resp.Fields[field] == "" {
			t.Errorf("fields[%s] missing: %v", field, resp.Fields)
		}
	}

	rec = do(t, srv, http.MethodPost, "/api/students", map[string]string{"name": "Bo", "email": "not-an-email"}, testActor)
	if rec.Code != http.StatusBadRequest || decode[ErrorResponse](t, rec).Fields["email"] == "" {
		t.Errorf("bad email = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodPost, "/api/courses", nil, testActor)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty body = %d, want 400", rec.Code)
	}
}

func multipartImport(t *testing.T, field, csv string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mpw := multipart.NewWriter(&buf)
	part, err := mpw.CreateFormFile(field, "results.csv")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write([]byte(csv))
	_ = mpw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/results/import", &buf)
	req.Header.Set("Content-Type", mpw.FormDataContentType())
	req.Header.Set(mw.ActorHeader, testActor)
	return req
}

type importResult struct {
	Status       string                `json:"status"`
	Rows         int                   `json:"rows"`
	Imported     int                   `json:"imported"`
	Errors       int                   `json:"errors"`
	ErrorDetails []core.ImportRowError `json:"errorDetails"`
}

func TestImport(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), nil)
	studentID, courses := seed(t, srv, map[string]int{"CS101": 3, "MA201": 4})

	csv := "studentId,courseId,score,semester\n" +
		studentID + "," + courses["CS101"] + ",91,1\n" +
		studentID + ",missing,80,1\n" +
		studentID + "," + courses["MA201"] + ",abc,1\n" +
		studentID + "," + courses["MA201"] + ",64,1\n"

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, multipartImport(t, importFormField, csv))
	if rec.Code != http.StatusOK {
		t.Fatalf("import = %d %s", rec.Code, rec.Body.String())
	}

	resp := decode[importResult](t, rec)
	if resp.Status != "success" || resp.Rows != 4 || resp.Imported != 2 || resp.Errors != 2 {
		t.Errorf("summary = %+v", resp)
	}
	if len(resp.ErrorDetails) == 2 {
		if resp.ErrorDetails[0].RowNumber != 2 || resp.ErrorDetails[0].Reason != core.ReasonCourseNotFound {
			t.Errorf("errorDetails[0] = %+v", resp.ErrorDetails[0])
		}
		if resp.ErrorDetails[1].RowNumber != 3 || resp.ErrorDetails[1].Reason != core.ReasonScoreNotNumber {
			t.Errorf("errorDetails[1] = %+v", resp.ErrorDetails[1])
		}
	}

	// 91 -> A (4.0 x 3), 64 -> D (1.0 x 4): 16 / 7
	rec = do(t, srv, http.MethodGet, "/api/results/student/"+studentID, nil, "-")
	if tr := decode[core.Transcript](t, rec); tr.CGPA == nil || *tr.CGPA != 2.29 {
		t.Errorf("CGPA = %v, want 2.29", tr.CGPA)
	}
}

func TestImport_BatchErrors(t *testing.T) {
	cfg := testConfig()
	cfg.Import.MaxFileSize = 512
	srv, _ := newTestServer(t, cfg, nil)

	tests := []struct {
		name   string
		req    func() *http.Request
		status int
		code   string
	}{
		{
			name:   "wrong field name",
			req:    func() *http.Request { return multipartImport(t, "file", "studentId\n") },
			status: http.StatusBadRequest,
			code:   "FILE004",
		},
		{
			name: "not multipart",
			req: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/results/import", strings.NewReader("x"))
				req.Header.Set(mw.ActorHeader, testActor)
				return req
			},
			status: http.StatusBadRequest,
			code:   "FILE004",
		},
		{
			name:   "too large",
			req:    func() *http.Request { return multipartImport(t, importFormField, strings.Repeat("a,b,c\n", 200)) },
			status: http.StatusRequestEntityTooLarge,
			code:   "FILE001",
		},
		{
			name:   "empty file",
			req:    func() *http.Request { return multipartImport(t, importFormField, "") },
			status: http.StatusBadRequest,
			code:   "FILE003",
		},
		{
			name: "no actor",
			req: func() *http.Request {
				req := multipartImport(t, importFormField, "studentId\n")
				req.Header.Del(mw.ActorHeader)
				return req
			},
			status: http.StatusUnauthorized,
			code:   "RES006",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, tt.req())
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			if got := decode[ErrorResponse](t, rec).Code; got != tt.code {
				t.Errorf("code = %s, want %s", got, tt.code)
			}
		})
	}
}

func TestListAndStatistics(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), nil)
	studentID, courses := seed(t, srv, map[string]int{"CS101": 3})

	for sem, score := range map[int]float64{1: 90, 2: 70} {
		rec := do(t, srv, http.MethodPost, "/api/results", map[string]any{
			"studentId": studentID, "courseId": courses["CS101"], "semester": sem, "score": score,
		}, testActor)
		if rec.Code != http.StatusCreated {
			t.Fatalf("create = %d %s", rec.Code, rec.Body.String())
		}
	}

	rec := do(t, srv, http.MethodGet, "/api/results?course="+courses["CS101"]+"&semester=2", nil, "-")
	if list := decode[resultsResponse](t, rec); list.Count != 1 || list.Results[0].Grade != "C" {
		t.Errorf("list = %+v", list)
	}

	rec = do(t, srv, http.MethodGet, "/api/results?semester=abc", nil, "-")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad semester = %d, want 400", rec.Code)
	}

	rec = do(t, srv, http.MethodGet, "/api/results?semester=9", nil, "-")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("semester out of range = %d, want 400", rec.Code)
	}

	rec = do(t, srv, http.MethodGet, "/api/results/statistics?course="+courses["CS101"], nil, "-")
	stats := decode[map[string]*core.ResultStatistics](t, rec)["statistics"]
	if stats == nil || stats.Count != 2 || stats.AverageScore != 80 {
		t.Errorf("statistics = %+v", stats)
	}

	rec = do(t, srv, http.MethodGet, "/api/results/statistics?semester=8", nil, "-")
	if stats := decode[map[string]*core.ResultStatistics](t, rec)["statistics"]; stats != nil {
		t.Errorf("empty statistics = %+v, want null", stats)
	}

	rec = do(t, srv, http.MethodGet, "/api/analytics/grade-distribution", nil, "-")
	if dist := decode[map[string][]core.GradeCount](t, rec)["gradeDistribution"]; len(dist) != 5 {
		t.Errorf("distribution = %+v, want 5 letters", dist)
	}

	rec = do(t, srv, http.MethodGet, "/api/activity/recent?limit=2", nil, "-")
	acts := decode[map[string][]core.ActivityEntry](t, rec)["activities"]
	if len(acts) != 2 || acts[0].Type != core.ActivityResult {
		t.Errorf("activity = %+v", acts)
	}
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthAndHeaders(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), stubPinger{})
	rec := do(t, srv, http.MethodGet, "/healthz", nil, "-")
	if rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" || rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Errorf("security headers missing: %v", rec.Header())
	}

	down, _ := newTestServer(t, testConfig(), stubPinger{err: errors.New("connection refused")})
	if rec := do(t, down, http.MethodGet, "/healthz", nil, "-"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("healthz down = %d, want 503", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, ImportLimit: 1}
	srv, _ := newTestServer(t, cfg, nil)

	for i := 0; i < 2; i++ {
		if rec := do(t, srv, http.MethodGet, "/api/courses", nil, "-"); rec.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, rec.Code)
		}
	}
	rec := do(t, srv, http.MethodGet, "/api/courses", nil, "-")
	if rec.Code != http.StatusTooManyRequests || decode[ErrorResponse](t, rec).Code != "RATE001" {
		t.Errorf("third request = %d %s, want 429 RATE001", rec.Code, rec.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrStudentNotFound, http.StatusNotFound},
		{core.ErrDuplicateResult, http.StatusConflict},
		{core.ErrAlreadyExists, http.StatusConflict},
		{core.ErrMissingActor, http.StatusUnauthorized},
		{&core.ValidationError{Message: "x"}, http.StatusBadRequest},
		{fieldErrors{"name": "name is required"}, http.StatusBadRequest},
		{core.ErrTooManyImports, http.StatusServiceUnavailable},
		{errBodyTooLarge, http.StatusRequestEntityTooLarge},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
