package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leadgrid/lead-engine/internal/dedupe"
	"github.com/leadgrid/lead-engine/internal/enrich"
	"github.com/leadgrid/lead-engine/internal/job"
	"github.com/leadgrid/lead-engine/internal/lead"
	"github.com/leadgrid/lead-engine/internal/scrape"
	"github.com/leadgrid/lead-engine/internal/score"
	"github.com/leadgrid/lead-engine/internal/store"
	"github.com/leadgrid/lead-engine/internal/store/memory"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeScraper struct {
	source string
	emits  []lead.Fields
	err    error
	calls  atomic.Int32
}

func (f *fakeScraper) Source() string { return f.source }

func (f *fakeScraper) Search(ctx context.Context, category, location string, maxPages int, emit func(lead.Fields)) error {
	f.calls.Add(1)
	for _, raw := range f.emits {
		if err := ctx.Err(); err != nil {
			return err
		}
		emit(raw)
	}
	return f.err
}

type stubEnricher struct {
	calls atomic.Int32
	err   error
}

func (s *stubEnricher) Module() string { return "stub" }

func (s *stubEnricher) Enrich(_ context.Context, _ *lead.Lead) (lead.Fields, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return lead.Fields{"website_platform": "WordPress"}, nil
}

type harness struct {
	store   *memory.Store
	tracker *job.Tracker
	engine  *Engine
}

func newHarness(cfg Config, enrichers []enrich.Enricher, scrapers ...scrape.Scraper) *harness {
	st := memory.New()
	clock := fixedClock{t: testNow}
	logger := zap.NewNop()
	scorer := score.New(clock)
	tr := job.NewTracker()
	eng := New(
		st,
		scrape.NewRegistry(scrapers...),
		dedupe.New(st, scorer, clock, logger),
		enrich.NewOrchestrator(st, scorer, clock, logger, 2, enrichers...),
		tr,
		clock,
		logger,
		cfg,
	)
	return &harness{store: st, tracker: tr, engine: eng}
}

func waitJob(t *testing.T, tr *job.Tracker, id string) job.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if j, ok := tr.Get(id); ok && j.Status != job.StatusRunning {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state")
	return job.Job{}
}

func rawListing(i int) lead.Fields {
	return lead.Fields{
		"business_name": fmt.Sprintf("Business %02d", i),
		"phone":         fmt.Sprintf("(512) 555-%04d", i),
		"city":          "Austin",
		"state":         "TX",
	}
}

func TestRunScrapeCountsOutcomes(t *testing.T) {
	// 55 distinct businesses plus 5 re-listings of the first five: the run
	// should report 60 found, 55 new, 5 updated.
	var emits []lead.Fields
	for i := 0; i < 55; i++ {
		emits = append(emits, rawListing(i))
	}
	for i := 0; i < 5; i++ {
		dup := rawListing(i)
		dup["website"] = fmt.Sprintf("https://business%02d.com", i)
		emits = append(emits, dup)
	}
	sc := &fakeScraper{source: "yellowpages", emits: emits}
	h := newHarness(Config{}, nil, sc)

	id, err := h.engine.RunScrape("yellowpages", "plumbers", "Austin, TX", 3)
	require.NoError(t, err)

	j := waitJob(t, h.tracker, id)
	assert.Equal(t, job.StatusCompleted, j.Status)
	assert.Equal(t, 100, j.Progress.Percent)
	assert.Equal(t, 60, j.Progress.LeadsFound)
	assert.Equal(t, 55, j.Progress.LeadsNew)
	assert.Equal(t, 5, j.Progress.LeadsUpdated)
	assert.Contains(t, j.Output, "Found: 60 | New: 55 | Updated: 5")

	n, err := h.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 55, n)

	rows, err := h.store.ListScrapeJobs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, lead.ScrapeJobCompleted, row.Status)
	assert.Equal(t, 60, row.LeadsFound)
	assert.Equal(t, 55, row.LeadsNew)
	assert.Equal(t, 5, row.LeadsUpdated)
	assert.Equal(t, 0, row.LeadsSkipped)
	require.NotNil(t, row.CompletedAt)
}

func TestRunScrapeUnknownSourceFailsFast(t *testing.T) {
	h := newHarness(Config{}, nil, &fakeScraper{source: "yellowpages"})

	_, err := h.engine.RunScrape("craigslist", "plumbers", "Austin, TX", 1)
	require.Error(t, err)
	assert.Empty(t, h.tracker.List())
}

func TestRunScrapeFailureRecordedOnJobRow(t *testing.T) {
	sc := &fakeScraper{
		source: "bbb",
		emits:  []lead.Fields{rawListing(1)},
		err:    fmt.Errorf("fetch page 2: gateway timeout"),
	}
	h := newHarness(Config{}, nil, sc)

	id, err := h.engine.RunScrape("bbb", "roofers", "Dallas, TX", 5)
	require.NoError(t, err)

	j := waitJob(t, h.tracker, id)
	assert.Equal(t, job.StatusFailed, j.Status)

	rows, err := h.store.ListScrapeJobs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, lead.ScrapeJobFailed, rows[0].Status)
	assert.Contains(t, rows[0].Errors, "gateway timeout")
	// The lead emitted before the failure still landed.
	assert.Equal(t, 1, rows[0].LeadsNew)
}

func TestRunScrapeCountsSkippedListings(t *testing.T) {
	sc := &fakeScraper{source: "yelp", emits: []lead.Fields{
		rawListing(1),
		{"business_name": "", "phone": "(512) 555-9999"},
		{"business_name": "Gone Fishing (CLOSED)", "state": "TX"},
	}}
	h := newHarness(Config{}, nil, sc)

	id, err := h.engine.RunScrape("yelp", "bait shops", "Austin, TX", 1)
	require.NoError(t, err)
	waitJob(t, h.tracker, id)

	rows, err := h.store.ListScrapeJobs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].LeadsFound)
	assert.Equal(t, 1, rows[0].LeadsNew)
	assert.Equal(t, 2, rows[0].LeadsSkipped)
}

func seedLead(t *testing.T, st *memory.Store, name string, enriched bool, lastEnriched time.Time) *lead.Lead {
	t.Helper()
	l := &lead.Lead{
		BusinessName: name,
		Website:      "https://" + name + ".example.com",
		State:        "TX",
		ScrapedAt:    testNow,
		UpdatedAt:    testNow,
	}
	if enriched {
		l.IsEnriched = true
		l.EnrichedAt = &lastEnriched
		l.LastEnrichedAt = &lastEnriched
	}
	require.NoError(t, st.Insert(context.Background(), l))
	return l
}

func TestRunEnrichProcessesUnenriched(t *testing.T) {
	stub := &stubEnricher{}
	h := newHarness(Config{}, []enrich.Enricher{stub})
	for i := 0; i < 3; i++ {
		seedLead(t, h.store, fmt.Sprintf("biz%d", i), false, time.Time{})
	}
	seedLead(t, h.store, "already-done", true, testNow)

	id := h.engine.RunEnrich(100)
	j := waitJob(t, h.tracker, id)

	assert.Equal(t, job.StatusCompleted, j.Status)
	assert.Contains(t, j.Output, "Enriching 3 leads...")
	assert.Contains(t, j.Output, "Enriched: 3 | Failed: 0")
	assert.EqualValues(t, 3, stub.calls.Load())
	assert.Equal(t, 100, j.Progress.Percent)
}

func TestRunEnrichNothingPending(t *testing.T) {
	stub := &stubEnricher{}
	h := newHarness(Config{}, []enrich.Enricher{stub})
	seedLead(t, h.store, "done", true, testNow)

	id := h.engine.RunEnrich(0)
	j := waitJob(t, h.tracker, id)

	assert.Equal(t, job.StatusCompleted, j.Status)
	assert.Contains(t, j.Output, "No leads to enrich")
	assert.Zero(t, stub.calls.Load())
}

func TestRunReEnrichSelectsStaleOnly(t *testing.T) {
	stub := &stubEnricher{}
	h := newHarness(Config{}, []enrich.Enricher{stub})
	stale := seedLead(t, h.store, "stale", true, testNow.AddDate(0, 0, -40))
	seedLead(t, h.store, "fresh", true, testNow.AddDate(0, 0, -5))
	seedLead(t, h.store, "never", false, time.Time{})

	id := h.engine.RunReEnrich(30, 10)
	j := waitJob(t, h.tracker, id)

	assert.Equal(t, job.StatusCompleted, j.Status)
	assert.EqualValues(t, 1, stub.calls.Load())

	got, err := h.store.Get(context.Background(), stale.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastEnrichedAt)
	assert.True(t, got.LastEnrichedAt.Equal(testNow))
}

func TestEnrichLeadsSynchronous(t *testing.T) {
	stub := &stubEnricher{}
	h := newHarness(Config{}, []enrich.Enricher{stub})
	a := seedLead(t, h.store, "alpha", false, time.Time{})
	b := seedLead(t, h.store, "beta", false, time.Time{})

	res, err := h.engine.EnrichLeads(context.Background(), []int64{a.ID, b.ID, 999})
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Total: 2, Succeeded: 2, Failed: 0}, res)

	got, err := h.store.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, got.IsEnriched)
	assert.Equal(t, "WordPress", got.WebsitePlatform)
}

func TestEnrichLeadsRejectsEmptyIDs(t *testing.T) {
	h := newHarness(Config{}, nil)
	_, err := h.engine.EnrichLeads(context.Background(), nil)
	require.Error(t, err)
}

func TestRunFullMatrix(t *testing.T) {
	yp := &fakeScraper{source: "yellowpages", emits: []lead.Fields{rawListing(1)}}
	bbb := &fakeScraper{source: "bbb", emits: []lead.Fields{rawListing(2)}}
	h := newHarness(Config{
		Categories: []string{"plumbers", "roofers"},
		Cities:     []string{"Austin, TX"},
		Workers:    2,
	}, []enrich.Enricher{&stubEnricher{}}, yp, bbb)

	require.NoError(t, h.engine.Run(context.Background()))

	// 2 sources x 2 categories x 1 location.
	assert.EqualValues(t, 2, yp.calls.Load())
	assert.EqualValues(t, 2, bbb.calls.Load())
	rows, err := h.store.ListScrapeJobs(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	leads, err := h.store.List(context.Background(), store.LeadFilter{})
	require.NoError(t, err)
	require.Len(t, leads, 2)
	for _, l := range leads {
		assert.True(t, l.IsEnriched)
	}
}

func TestRunContinuesPastFailingCombination(t *testing.T) {
	good := &fakeScraper{source: "yellowpages", emits: []lead.Fields{rawListing(1)}}
	bad := &fakeScraper{source: "bbb", err: fmt.Errorf("blocked")}
	h := newHarness(Config{
		Categories: []string{"plumbers"},
		Cities:     []string{"Austin, TX"},
	}, nil, good, bad)

	require.NoError(t, h.engine.Run(context.Background()))
	assert.EqualValues(t, 1, good.calls.Load())

	rows, err := h.store.ListScrapeJobs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestRunFailsWhenEveryCombinationFails(t *testing.T) {
	bad := &fakeScraper{source: "bbb", err: fmt.Errorf("blocked")}
	h := newHarness(Config{
		Categories: []string{"plumbers"},
		Cities:     []string{"Austin, TX"},
	}, nil, bad)

	err := h.engine.Run(context.Background())
	require.Error(t, err)
}
