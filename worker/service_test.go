package worker

import (
	"context"
	"testing"

	"csv-generator/jobs"
	"csv-generator/search"
	"csv-generator/search/estest"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchSource = `{"indexRefName":"` + estest.IndexRefName + `","query":{"query":"","language":"kuery"},"filter":[]}`

type fixture struct {
	srv   *estest.Server
	svc   *Service
	store *jobs.Store
}

func newFixture(t *testing.T) *fixture {
	srv := estest.NewServer(t)
	c, err := search.NewClient(srv.Config(), nil)
	require.NoError(t, err)
	store := jobs.NewStore(c, estest.ReportIndex, nil)
	svc := NewService(
		search.NewDescriptors(c, estest.KibanaIndex),
		search.NewFetcher(c, search.FetchOptions{}),
		store, nil, Options{},
	)
	srv.PutSavedSearch("s1", "Error logs", []string{"message", "@timestamp"}, searchSource, "p1")
	srv.PutIndexPattern("p1", "logs", "@timestamp", "@timestamp", "date", "message", "string")
	return &fixture{srv: srv, svc: svc, store: store}
}

func (f *fixture) create(t *testing.T) *Ack {
	t.Helper()
	ack, err := f.svc.CreateReport(context.Background(), Request{
		SavedSearchID: "s1",
		Start:         "1700000000000",
		End:           "1700003600000",
		Requester:     jobs.Requester{Username: "alice"},
	})
	require.NoError(t, err)
	f.svc.Wait()
	return ack
}

func TestService_EndToEnd(t *testing.T) {
	f := newFixture(t)
	f.srv.AddHits("logs",
		map[string]any{"@timestamp": "2023-11-14T22:13:20Z", "message": "disk full"},
		map[string]any{"@timestamp": "2023-11-14T22:14:00Z", "message": "disk ok"},
	)

	ack := f.create(t)
	assert.Equal(t, "Error_logs_1700000000000_1700003600000.csv", ack.FileName)
	assert.Equal(t, AckMessage, ack.Message)

	rep, err := f.svc.GetReport(context.Background(), ack.ID)
	require.NoError(t, err)
	assert.Equal(t, ack.FileName, rep.FileName)
	assert.Equal(t, "@timestamp,message\n2023-11-14T22:13:20Z,disk full\n2023-11-14T22:14:00Z,disk ok\n", rep.CSV)

	again, err := f.svc.GetReport(context.Background(), ack.ID)
	require.NoError(t, err)
	assert.Equal(t, rep.CSV, again.CSV)

	doc, _ := f.srv.Document(estest.ReportIndex, ack.ID)
	assert.Equal(t, "success", doc["status"])
	assert.Equal(t, jobs.SuccessMessage, doc["error"])

	bodies := f.srv.Bodies("search")
	require.Len(t, bodies, 1)
	assert.Equal(t, map[string]any{"includes": []any{"@timestamp", "message"}}, bodies[0]["_source"])
	must := bodies[0]["query"].(map[string]any)["bool"].(map[string]any)["must"].([]any)
	require.Len(t, must, 1)
	assert.Equal(t, map[string]any{"range": map[string]any{"@timestamp": map[string]any{
		"format": "epoch_millis", "gte": "1700000000000", "lte": "1700003600000",
	}}}, must[0])
}

func TestService_NoContent(t *testing.T) {
	f := newFixture(t)
	ack := f.create(t)

	_, err := f.svc.GetReport(context.Background(), ack.ID)
	var nr *jobs.NotReadyError
	require.ErrorAs(t, err, &nr)
	assert.Equal(t, jobs.StatusFailed, nr.Status)
	assert.Equal(t, "No Content.", nr.Message)
	assert.Zero(t, f.srv.Calls("search"))
}

func TestService_DataTooLarge(t *testing.T) {
	f := newFixture(t)
	f.srv.AddHits("logs", map[string]any{"message": "x"})
	f.srv.SetCount("logs", 150000)
	ack := f.create(t)

	doc, _ := f.srv.Document(estest.ReportIndex, ack.ID)
	assert.Equal(t, "failed", doc["status"])
	assert.Equal(t, "Data too large.", doc["error"])
	assert.Equal(t, jobs.NullPayload, doc["binary"])
	assert.Zero(t, f.srv.Calls("search"))
}

func TestService_InvalidSearchSource(t *testing.T) {
	f := newFixture(t)
	f.srv.PutSavedSearch("s1", "Broken", []string{"_source"}, "{not json", "p1")
	ack := f.create(t)

	doc, _ := f.srv.Document(estest.ReportIndex, ack.ID)
	assert.Equal(t, "failed", doc["status"])
	assert.Contains(t, doc["error"], "invalid search source")
	assert.Zero(t, f.srv.Calls("count"))
}

func TestService_ScrollFailure(t *testing.T) {
	f := newFixture(t)
	f.srv.AddHits("logs", map[string]any{"message": "x"})
	f.srv.SetCount("logs", 20000)
	f.srv.FailNext("scroll", -1)
	ack := f.create(t)

	doc, _ := f.srv.Document(estest.ReportIndex, ack.ID)
	assert.Equal(t, "failed", doc["status"])
	assert.Contains(t, doc["error"], "scroll failed")
}

// finishedTotal reads csvgen_reports_finished_total{status} from the default
// registry.
func finishedTotal(t *testing.T, status string) float64 {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "csvgen_reports_finished_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "status" && l.GetValue() == status {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestService_SuccessWriteFallsBackToFailed(t *testing.T) {
	f := newFixture(t)
	f.srv.AddHits("logs", map[string]any{"@timestamp": "2023-11-14T22:13:20Z", "message": "x"})
	success := finishedTotal(t, "success")
	failed := finishedTotal(t, "failed")

	f.srv.FailNext("update", 1)
	ack := f.create(t)

	doc, _ := f.srv.Document(estest.ReportIndex, ack.ID)
	assert.Equal(t, "failed", doc["status"])
	assert.Contains(t, doc["error"], "elasticsearch HTTP 500")
	assert.Equal(t, success, finishedTotal(t, "success"))
	assert.Equal(t, failed+1, finishedTotal(t, "failed"))

	_, err := f.svc.GetReport(context.Background(), ack.ID)
	var nr *jobs.NotReadyError
	require.ErrorAs(t, err, &nr)
	assert.Equal(t, jobs.StatusFailed, nr.Status)
}

func TestService_UnknownSavedSearch(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateReport(context.Background(), Request{SavedSearchID: "nope", Start: "1", End: "2"})
	assert.ErrorIs(t, err, search.ErrNotFound)
	assert.Zero(t, f.srv.Calls("index"))
}

func TestService_ListAndDescribe(t *testing.T) {
	f := newFixture(t)
	f.srv.AddHits("logs", map[string]any{"message": "x"})
	ack := f.create(t)

	list, err := f.svc.ListRecentReports(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ack.ID, list[0].ID)
	assert.Equal(t, "alice", list[0].Username)

	d, err := f.svc.DescribeSavedSearch(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "logs", d.Index)
	assert.Equal(t, []string{"@timestamp", "message"}, d.Columns)
	assert.Len(t, d.Fields, 2)
}
