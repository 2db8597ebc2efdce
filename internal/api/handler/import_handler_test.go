package handler

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

	"github.com/labstack/echo/v4"

	"github.com/openlms/provisioner/internal/core/domain"
	"github.com/openlms/provisioner/internal/core/ports"
)

type stubCoordinator struct {
	startFn  func(rows []domain.Record) (string, error)
	jobFn    func(id string) (*domain.Job, error)
	resultFn func(id string) ([]domain.Record, bool, error)
}

func (s *stubCoordinator) Start(rows []domain.Record) (string, error) { return s.startFn(rows) }
func (s *stubCoordinator) Job(id string) (*domain.Job, error)        { return s.jobFn(id) }
func (s *stubCoordinator) Result(id string) ([]domain.Record, bool, error) {
	return s.resultFn(id)
}

type stubProbe struct {
	info *ports.SiteInfo
	err  error
}

func (s *stubProbe) Probe(context.Context) (*ports.SiteInfo, error) { return s.info, s.err }
func (s *stubProbe) UsersByField(context.Context, string, []string) ([]ports.RemoteUser, error) {
	return nil, nil
}
func (s *stubProbe) UserCourses(context.Context, int64) ([]ports.RemoteCourse, error) {
	return nil, nil
}
func (s *stubProbe) CreateUser(context.Context, ports.CreateUserParams) (int64, error) {
	return 0, nil
}
func (s *stubProbe) UnsuspendUser(context.Context, int64) error        { return nil }
func (s *stubProbe) EnrolUser(context.Context, int64, int64, int) error { return nil }

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestStartAcceptsBatch(t *testing.T) {
	var gotRows []domain.Record
	h := NewImportHandler(&stubCoordinator{
		startFn: func(rows []domain.Record) (string, error) {
			gotRows = rows
			return "job-123", nil
		},
	}, &stubProbe{}, 5)

	e := newEcho()
	body := `{"rows":[{"first_name":"Ada","last_name":"Lovelace","email":"ada@example.edu","username":"adalovelace","course_ids":[101]}]}`
	req := jsonRequest(http.MethodPost, "/api/import/start", body)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Start(c); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d", rec.Code)
	}

	var resp struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.JobID != "job-123" {
		t.Errorf("job_id = %q", resp.JobID)
	}
	if len(gotRows) != 1 || gotRows[0].Username != "adalovelace" || gotRows[0].CourseIDs[0] != 101 {
		t.Errorf("rows passed through wrong: %+v", gotRows)
	}
}

func TestStartEmptyRows(t *testing.T) {
	h := NewImportHandler(&stubCoordinator{}, &stubProbe{}, 5)

	e := newEcho()
	req := jsonRequest(http.MethodPost, "/api/import/start", `{"rows":[]}`)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Start(c); !errors.Is(err, domain.ErrEmptyBatch) {
		t.Errorf("err = %v, want ErrEmptyBatch", err)
	}
}

func TestResultUnknownJob(t *testing.T) {
	h := NewImportHandler(&stubCoordinator{
		resultFn: func(id string) ([]domain.Record, bool, error) {
			return nil, false, domain.ErrJobNotFound
		},
	}, &stubProbe{}, 5)

	e := newEcho()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("nope")

	if err := h.Result(c); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}
}

func TestResultDoneJob(t *testing.T) {
	h := NewImportHandler(&stubCoordinator{
		resultFn: func(id string) ([]domain.Record, bool, error) {
			return []domain.Record{{Username: "adalovelace", Status: "already exist"}}, true, nil
		},
	}, &stubProbe{}, 5)

	e := newEcho()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("job-123")

	if err := h.Result(c); err != nil {
		t.Fatalf("Result: %v", err)
	}

	var resp struct {
		Rows []struct {
			Username string `json:"username"`
			Status   string `json:"status"`
		} `json:"rows"`
		Done bool `json:"done"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Done || len(resp.Rows) != 1 || resp.Rows[0].Status != "already exist" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestPreviewParsesUpload(t *testing.T) {
	h := NewImportHandler(&stubCoordinator{}, &stubProbe{}, 5)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "roster.csv")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("\xEF\xBB\xBFFirst Name,Last Name,Email,Course IDs\nJosé,García,jose@example.edu,101;102\n"))
	mw.Close()

	e := newEcho()
	req := httptest.NewRequest(http.MethodPost, "/api/import/preview", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Preview(c); err != nil {
		t.Fatalf("Preview: %v", err)
	}

	var resp struct {
		Rows []struct {
			FirstName string  `json:"first_name"`
			Username  string  `json:"username"`
			CourseIDs []int64 `json:"course_ids"`
		} `json:"rows"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("count = %d", resp.Count)
	}
	if resp.Rows[0].FirstName != "José" {
		t.Errorf("first name = %q", resp.Rows[0].FirstName)
	}
	if resp.Rows[0].Username != "josegarcia" {
		t.Errorf("username = %q", resp.Rows[0].Username)
	}
	if len(resp.Rows[0].CourseIDs) != 2 || resp.Rows[0].CourseIDs[0] != 101 {
		t.Errorf("course ids = %v", resp.Rows[0].CourseIDs)
	}
}

func TestPreviewUnrecognizedSchema(t *testing.T) {
	h := NewImportHandler(&stubCoordinator{}, &stubProbe{}, 5)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "roster.csv")
	fw.Write([]byte("Colour,Shape\nred,circle\n"))
	mw.Close()

	e := newEcho()
	req := httptest.NewRequest(http.MethodPost, "/api/import/preview", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Preview(c)
	var se *domain.SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want SchemaError", err)
	}
}

func TestDownloadRendersCSV(t *testing.T) {
	h := NewImportHandler(&stubCoordinator{}, &stubProbe{}, 5)

	e := newEcho()
	body := `{"rows":[{"first_name":"Ada","last_name":"Lovelace","email":"ada@example.edu","username":"adalovelace","status":"already exist"}]}`
	req := jsonRequest(http.MethodPost, "/api/import/download", body)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Download(c); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %q", ct)
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, "attachment") || !strings.Contains(cd, "roster_") {
		t.Errorf("content disposition = %q", cd)
	}
	out := rec.Body.Bytes()
	if !bytes.HasPrefix(out, []byte{0xEF, 0xBB, 0xBF}) {
		t.Error("body missing UTF-8 BOM")
	}
	if !bytes.Contains(out, []byte("adalovelace")) {
		t.Error("row data missing from CSV")
	}
}

func TestStreamDeliversEventsUntilDone(t *testing.T) {
	job := domain.NewJob("job-123")
	job.Publish(domain.Event{Type: domain.EventStage, Data: domain.StagePayload{Message: "Checking 1 emails on the remote directory"}})
	job.Publish(domain.Event{Type: domain.EventProgress, Data: domain.ProgressPayload{Processed: 1, Total: 1, Percent: 100}})
	job.Publish(domain.Event{Type: domain.EventDone, Data: domain.DonePayload{Percent: 100, Total: 1}})

	h := NewImportHandler(&stubCoordinator{
		jobFn: func(id string) (*domain.Job, error) {
			if id != "job-123" {
				return nil, domain.ErrJobNotFound
			}
			return job, nil
		},
	}, &stubProbe{}, 5)

	e := newEcho()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("job-123")

	if err := h.Stream(c); err != nil {
		t.Fatalf("Stream: %v", err)
	}

	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "retry: 1500\n\n") {
		t.Errorf("missing retry hint: %q", body[:min(len(body), 40)])
	}
	for _, want := range []string{
		"event: hello\n", `"job_id":"job-123"`,
		"event: stage\n", "event: progress\n", "event: done\n",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("stream missing %q in:\n%s", want, body)
		}
	}
	if strings.Index(body, "event: stage") > strings.Index(body, "event: done") {
		t.Error("events delivered out of order")
	}
}

func TestStreamUnknownJob(t *testing.T) {
	h := NewImportHandler(&stubCoordinator{
		jobFn: func(id string) (*domain.Job, error) { return nil, domain.ErrJobNotFound },
	}, &stubProbe{}, 5)

	e := newEcho()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("nope")

	if err := h.Stream(c); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}
}

func TestPing(t *testing.T) {
	h := NewImportHandler(&stubCoordinator{}, &stubProbe{
		info: &ports.SiteInfo{SiteName: "Campus", Release: "4.3"},
	}, 7)

	e := newEcho()
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Ping(c); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	var resp struct {
		OK       bool   `json:"ok"`
		SiteName string `json:"site_name"`
		RoleID   int    `json:"role_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.OK || resp.SiteName != "Campus" || resp.RoleID != 7 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestPingUnconfigured(t *testing.T) {
	h := NewImportHandler(&stubCoordinator{}, &stubProbe{err: domain.ErrNotConfigured}, 5)

	e := newEcho()
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Ping(c); !errors.Is(err, domain.ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}
