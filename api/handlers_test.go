package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"csv-generator/auth"
	"csv-generator/config"
	"csv-generator/jobs"
	"csv-generator/logging"
	"csv-generator/search"
	"csv-generator/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v3"
)

type stubReports struct {
	lastReq worker.Request
	reports map[string]*jobs.Report
	jobs    []jobs.ReportJob
}

func (s *stubReports) CreateReport(ctx context.Context, req worker.Request) (*worker.Ack, error) {
	if req.SavedSearchID == "missing" {
		return nil, &search.NotFoundError{Kind: "search", ID: req.SavedSearchID}
	}
	s.lastReq = req
	return &worker.Ack{ID: "job-1", FileName: "r.csv", Message: worker.AckMessage}, nil
}

func (s *stubReports) ListRecentReports(ctx context.Context) ([]jobs.ReportJob, error) {
	return s.jobs, nil
}

func (s *stubReports) GetReport(ctx context.Context, id string) (*jobs.Report, error) {
	if id == "pending" {
		return nil, &jobs.NotReadyError{ID: id, Status: jobs.StatusPending, Message: jobs.PendingMessage}
	}
	rep, ok := s.reports[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, jobs.ErrNotFound)
	}
	return rep, nil
}

func (s *stubReports) DescribeSavedSearch(ctx context.Context, id string) (*worker.Description, error) {
	return &worker.Description{ID: id, Title: "Errors", Columns: []string{"@timestamp", "message"}}, nil
}

type stubSetup struct{ created bool }

func (s stubSetup) Setup(ctx context.Context) (bool, error) { return s.created, nil }

func newTestRouter(t *testing.T) (http.Handler, *stubReports, *config.Config) {
	c := config.Default()
	cfg := &c
	cfg.JWT.Secret = "secret"
	reports := &stubReports{
		reports: map[string]*jobs.Report{"done": {FileName: "Errors_1_2.csv", CSV: "a,b\n1,\"x,y\"\n"}},
		jobs: []jobs.ReportJob{{
			ID: "done", File: "Errors_1_2.csv", Status: jobs.StatusSuccess,
			Error: jobs.SuccessMessage, Date: "14-11-2023 22:13:20",
			DownloadLink: jobs.DownloadPrefix + "done", Username: "alice",
		}},
	}
	return NewRouter(cfg, reports, stubSetup{created: true}, logging.Nop()), reports, cfg
}

type envelope struct {
	OK   bool            `json:"ok"`
	Resp json.RawMessage `json:"resp"`
}

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestGenerateHandler(t *testing.T) {
	h, reports, cfg := newTestRouter(t)
	token, err := auth.GenerateJWT(cfg.JWT.Secret, "u1", "alice", 5)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/csvGenerator/savedObjects/s1/1700000000000/1700003600000", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec, env := do(t, h, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.OK)
	assert.JSONEq(t, `{"id":"job-1","filename":"r.csv","message":"csv file pending !"}`, string(env.Resp))
	assert.Equal(t, "s1", reports.lastReq.SavedSearchID)
	assert.Equal(t, "1700003600000", reports.lastReq.End)
	assert.Equal(t, jobs.Requester{UserID: "u1", Username: "alice"}, reports.lastReq.Requester)
}

func TestGenerateHandler_Anonymous(t *testing.T) {
	h, reports, _ := newTestRouter(t)
	rec, _ := do(t, h, httptest.NewRequest(http.MethodGet, "/api/csvGenerator/savedObjects/s1/1/2", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, jobs.Requester{}, reports.lastReq.Requester)
}

func TestGenerateHandler_Errors(t *testing.T) {
	h, _, _ := newTestRouter(t)

	rec, env := do(t, h, httptest.NewRequest(http.MethodGet, "/api/csvGenerator/savedObjects/s1/yesterday/2", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.OK)

	rec, _ = do(t, h, httptest.NewRequest(http.MethodGet, "/api/csvGenerator/savedObjects/missing/1/2", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryHandler(t *testing.T) {
	h, _, _ := newTestRouter(t)
	rec, env := do(t, h, httptest.NewRequest(http.MethodGet, "/api/csvGenerator/history", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{
		"id": "done", "filename": "Errors_1_2.csv", "status": "success",
		"error": "Succesfully Generated", "date": "14-11-2023 22:13:20",
		"downloadLink": "/api/csvGenerator/download/done", "username": "alice"
	}]`, string(env.Resp))
}

func TestDownloadHandler_JSON(t *testing.T) {
	h, _, _ := newTestRouter(t)
	rec, env := do(t, h, httptest.NewRequest(http.MethodGet, "/api/csvGenerator/download/done", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"filename":"Errors_1_2.csv","csv":"a,b\n1,\"x,y\"\n"}`, string(env.Resp))
}

func TestDownloadHandler_CSV(t *testing.T) {
	h, _, _ := newTestRouter(t)
	rec, _ := do(t, h, httptest.NewRequest(http.MethodGet, "/api/csvGenerator/download/done?type=csv", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Errors_1_2.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "a,b\n1,\"x,y\"\n", rec.Body.String())
}

func TestDownloadHandler_XLSX(t *testing.T) {
	h, _, _ := newTestRouter(t)
	rec, _ := do(t, h, httptest.NewRequest(http.MethodGet, "/api/csvGenerator/download/done?type=xlsx", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="Errors_1_2.xlsx"`, rec.Header().Get("Content-Disposition"))

	f, err := xlsx.OpenBinary(rec.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	cell, err := f.Sheets[0].Cell(1, 1)
	require.NoError(t, err)
	assert.Equal(t, "x,y", cell.Value)
}

func TestDownloadHandler_NotReady(t *testing.T) {
	h, _, _ := newTestRouter(t)

	rec, env := do(t, h, httptest.NewRequest(http.MethodGet, "/api/csvGenerator/download/pending", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"status":"pending","error":"Csv being Generated"}`, string(env.Resp))

	rec, _ = do(t, h, httptest.NewRequest(http.MethodGet, "/api/csvGenerator/download/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetupAndDescribe(t *testing.T) {
	h, _, _ := newTestRouter(t)

	rec, env := do(t, h, httptest.NewRequest(http.MethodGet, "/api/csvGenerator/setup", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"created":true}`, string(env.Resp))

	rec, env = do(t, h, httptest.NewRequest(http.MethodGet, "/api/csvGenerator/savedObjects/s1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var d worker.Description
	require.NoError(t, json.Unmarshal(env.Resp, &d))
	assert.Equal(t, []string{"@timestamp", "message"}, d.Columns)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _, cfg := newTestRouter(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, cfg.Server.MetricsPath, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
