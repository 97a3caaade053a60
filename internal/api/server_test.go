package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leadgrid/lead-engine/internal/engine"
	"github.com/leadgrid/lead-engine/internal/job"
	"github.com/leadgrid/lead-engine/internal/lead"
	"github.com/leadgrid/lead-engine/internal/scrape"
	"github.com/leadgrid/lead-engine/internal/store/memory"
)

type stubRunner struct {
	scrapeErr    error
	scrapeArgs   []any
	enrichLimit  int
	reEnrichArgs []int
	enrichedIDs  []int64
	batch        engine.BatchResult
	batchErr     error
}

func (s *stubRunner) RunScrape(source, category, location string, maxPages int) (string, error) {
	if s.scrapeErr != nil {
		return "", s.scrapeErr
	}
	s.scrapeArgs = []any{source, category, location, maxPages}
	return "job_deadbeef", nil
}

func (s *stubRunner) RunEnrich(limit int) string {
	s.enrichLimit = limit
	return "job_12345678"
}

func (s *stubRunner) RunReEnrich(days, limit int) string {
	s.reEnrichArgs = []int{days, limit}
	return "job_9abcdef0"
}

func (s *stubRunner) EnrichLeads(_ context.Context, ids []int64) (engine.BatchResult, error) {
	s.enrichedIDs = ids
	return s.batch, s.batchErr
}

func newTestServer(runner *stubRunner, cfg Config) (*Server, *job.Tracker, *memory.Store) {
	tr := job.NewTracker()
	st := memory.New()
	return NewServer(runner, tr, st, zap.NewNop(), cfg), tr, st
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStartScrape(t *testing.T) {
	runner := &stubRunner{}
	s, _, _ := newTestServer(runner, Config{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/scrape", map[string]any{
		"category": "plumbers",
		"location": "Austin, TX",
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job_deadbeef", resp["jobId"])
	assert.Equal(t, "running", resp["status"])
	// Defaults fill in source and pages.
	assert.Equal(t, []any{"yellowpages", "plumbers", "Austin, TX", 5}, runner.scrapeArgs)
}

func TestStartScrapeValidation(t *testing.T) {
	runner := &stubRunner{}
	s, _, _ := newTestServer(runner, Config{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/scrape", map[string]any{"category": "plumbers"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	runner.scrapeErr = scrape.ErrUnknownSource
	rec = doJSON(t, s.Handler(), http.MethodPost, "/scrape", map[string]any{
		"source":   "craigslist",
		"category": "plumbers",
		"location": "Austin, TX",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartEnrichDefaultsAndConflict(t *testing.T) {
	runner := &stubRunner{}
	s, tr, _ := newTestServer(runner, Config{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/enrich", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 100, runner.enrichLimit)

	// A second request while an enrich job is running conflicts.
	tr.Start(context.Background(), "enrich", nil)
	rec = doJSON(t, s.Handler(), http.MethodPost, "/enrich", map[string]any{"limit": 10})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStartReEnrich(t *testing.T) {
	runner := &stubRunner{}
	s, _, _ := newTestServer(runner, Config{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/re-enrich", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []int{30, 50}, runner.reEnrichArgs)
}

func TestEnrichLeadsSynchronous(t *testing.T) {
	runner := &stubRunner{batch: engine.BatchResult{Total: 2, Succeeded: 1, Failed: 1}}
	s, _, _ := newTestServer(runner, Config{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/enrich/leads", map[string]any{
		"leadIds": []int64{4, 7},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	var res engine.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, runner.batch, res)
	assert.Equal(t, []int64{4, 7}, runner.enrichedIDs)
}

func TestEnrichLeadsRequiresIDs(t *testing.T) {
	s, _, _ := newTestServer(&stubRunner{}, Config{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/enrich/leads", map[string]any{"leadIds": []int64{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobPolling(t *testing.T) {
	s, tr, _ := newTestServer(&stubRunner{}, Config{})
	id, _ := tr.Start(context.Background(), "scrape", map[string]string{"source": "yelp"})
	tr.Append(id, "Scraping yelp...")

	rec := doJSON(t, s.Handler(), http.MethodGet, "/jobs/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var j job.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &j))
	assert.Equal(t, id, j.ID)
	assert.Equal(t, job.StatusRunning, j.Status)
	assert.Contains(t, j.Output, "Scraping yelp...")

	rec = doJSON(t, s.Handler(), http.MethodGet, "/jobs/job_unknown0", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodGet, "/jobs", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Jobs []job.Job `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Jobs, 1)
}

func TestCancelJob(t *testing.T) {
	s, tr, _ := newTestServer(&stubRunner{}, Config{})
	id, ctx := tr.Start(context.Background(), "scrape", nil)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/jobs/"+id+"/cancel", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Error(t, ctx.Err())

	rec = doJSON(t, s.Handler(), http.MethodPost, "/jobs/job_unknown0/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIKeyGate(t *testing.T) {
	s, _, _ := newTestServer(&stubRunner{}, Config{APIKey: "sekret"})

	rec := doJSON(t, s.Handler(), http.MethodGet, "/jobs", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("X-API-Key", "sekret")
	ok := httptest.NewRecorder()
	s.Handler().ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)

	// Probes stay open.
	rec = doJSON(t, s.Handler(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListAndExportLeads(t *testing.T) {
	s, _, st := newTestServer(&stubRunner{}, Config{})
	require.NoError(t, st.Insert(context.Background(), &lead.Lead{
		BusinessName: "Hill Country Plumbing",
		State:        "TX",
		QualityScore: 70,
		ScrapedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, st.Insert(context.Background(), &lead.Lead{
		BusinessName: "Low Score LLC",
		State:        "TX",
		QualityScore: 10,
		ScrapedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}))

	rec := doJSON(t, s.Handler(), http.MethodGet, "/leads?state=TX&minQuality=50", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Leads []lead.Lead `json:"leads"`
		Count int         `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, "Hill Country Plumbing", list.Leads[0].BusinessName)

	rec = doJSON(t, s.Handler(), http.MethodGet, "/leads/export?format=csv", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Hill Country Plumbing")

	rec = doJSON(t, s.Handler(), http.MethodGet, "/leads/export?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStats(t *testing.T) {
	s, _, st := newTestServer(&stubRunner{}, Config{})
	require.NoError(t, st.Insert(context.Background(), &lead.Lead{BusinessName: "A", State: "TX"}))

	rec := doJSON(t, s.Handler(), http.MethodGet, "/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		TotalLeads int `json:"totalLeads"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalLeads)
}
