// Package engine coordinates scraping, dedup, enrichment and job tracking
// into the operations the API exposes.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leadgrid/lead-engine/internal/dedupe"
	"github.com/leadgrid/lead-engine/internal/enrich"
	"github.com/leadgrid/lead-engine/internal/job"
	"github.com/leadgrid/lead-engine/internal/lead"
	"github.com/leadgrid/lead-engine/internal/locations"
	"github.com/leadgrid/lead-engine/internal/scrape"
	"github.com/leadgrid/lead-engine/internal/score"
	"github.com/leadgrid/lead-engine/internal/store"
)

// Defaults applied when config leaves a knob at zero.
const (
	DefaultMaxPages    = 5
	DefaultWorkers     = 3
	DefaultEnrichLimit = 200
	DefaultStaleDays   = 30
)

// Config is the standing targeting matrix plus run-shape knobs.
type Config struct {
	Sources     []string
	Categories  []string
	States      []string
	Cities      []string
	MaxPages    int
	Workers     int
	EnrichLimit int
}

// BatchResult summarizes a synchronous enrichment call.
type BatchResult struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Engine is the top-level coordinator. Async operations return a tracker
// job ID the caller polls; the work itself runs on background goroutines.
type Engine struct {
	store    store.Store
	registry *scrape.Registry
	dedupe   *dedupe.Engine
	enricher *enrich.Orchestrator
	tracker  *job.Tracker
	clock    score.Clock
	logger   *zap.Logger
	cfg      Config
}

func New(
	st store.Store,
	reg *scrape.Registry,
	dd *dedupe.Engine,
	orch *enrich.Orchestrator,
	tr *job.Tracker,
	clock score.Clock,
	logger *zap.Logger,
	cfg Config,
) *Engine {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.EnrichLimit <= 0 {
		cfg.EnrichLimit = DefaultEnrichLimit
	}
	return &Engine{
		store:    st,
		registry: reg,
		dedupe:   dd,
		enricher: orch,
		tracker:  tr,
		clock:    clock,
		logger:   logger.Named("engine"),
		cfg:      cfg,
	}
}

// counters tallies one scrape invocation.
type counters struct {
	found   int
	created int
	updated int
	skipped int
}

func (c *counters) add(o counters) {
	c.found += o.found
	c.created += o.created
	c.updated += o.updated
	c.skipped += o.skipped
}

// RunScrape starts one source/category/location scrape in the background
// and returns the tracker job ID. Unknown sources fail fast, before a job
// is registered.
func (e *Engine) RunScrape(source, category, location string, maxPages int) (string, error) {
	if _, err := e.registry.Get(source); err != nil {
		return "", err
	}
	if maxPages <= 0 {
		maxPages = e.cfg.MaxPages
	}

	id, ctx := e.tracker.Start(context.Background(), "scrape", map[string]string{
		"source":   source,
		"category": category,
		"location": location,
		"pages":    strconv.Itoa(maxPages),
	})

	go func() {
		c, err := e.scrapeOne(ctx, id, source, category, location, maxPages)
		if err != nil {
			e.tracker.Fail(id, err.Error())
			return
		}
		e.tracker.Append(id, fmt.Sprintf("Found: %d | New: %d | Updated: %d", c.found, c.created, c.updated))
		e.tracker.Complete(id)
	}()
	return id, nil
}

// scrapeOne runs a single scrape invocation end to end: a persisted
// scrape_jobs row brackets the run, every emitted listing goes through the
// dedupe engine, and progress streams to the tracker when trackID is set.
func (e *Engine) scrapeOne(ctx context.Context, trackID, source, category, location string, maxPages int) (counters, error) {
	scraper, err := e.registry.Get(source)
	if err != nil {
		return counters{}, err
	}

	start := e.clock.Now()
	row := &lead.ScrapeJob{
		Source:    source,
		Category:  category,
		Location:  location,
		Status:    lead.ScrapeJobRunning,
		StartedAt: start,
	}
	if err := e.store.CreateScrapeJob(ctx, row); err != nil {
		return counters{}, eris.Wrap(err, "engine: create scrape job")
	}

	if trackID != "" {
		e.tracker.Append(trackID, fmt.Sprintf("Scraping %s for %q in %s...", source, category, location))
	}
	e.logger.Info("scrape started",
		zap.String("source", source),
		zap.String("category", category),
		zap.String("location", location),
	)

	var c counters
	searchErr := scraper.Search(ctx, category, location, maxPages, func(raw lead.Fields) {
		c.found++
		l, outcome, upsertErr := e.dedupe.Upsert(ctx, raw, source)
		switch {
		case upsertErr != nil:
			c.skipped++
			e.logger.Warn("upsert failed", zap.String("source", source), zap.Error(upsertErr))
		case outcome == dedupe.OutcomeNew:
			c.created++
		case outcome == dedupe.OutcomeUpdated:
			c.updated++
		default:
			c.skipped++
		}
		if trackID != "" {
			p := job.Progress{
				Current:      c.found,
				LeadsFound:   c.found,
				LeadsNew:     c.created,
				LeadsUpdated: c.updated,
			}
			if l != nil {
				p.LastBusiness = l.BusinessName
			}
			e.tracker.SetProgress(trackID, p)
		}
	})

	row.LeadsFound = c.found
	row.LeadsNew = c.created
	row.LeadsUpdated = c.updated
	row.LeadsSkipped = c.skipped
	done := e.clock.Now()
	row.CompletedAt = &done
	row.DurationSeconds = done.Sub(start).Seconds()
	if searchErr != nil {
		row.Status = lead.ScrapeJobFailed
		row.Errors = searchErr.Error()
	} else {
		row.Status = lead.ScrapeJobCompleted
	}
	if finishErr := e.store.FinishScrapeJob(ctx, row); finishErr != nil {
		e.logger.Warn("finish scrape job row failed", zap.Int64("jobId", row.ID), zap.Error(finishErr))
	}

	if searchErr != nil {
		return c, eris.Wrapf(searchErr, "engine: scrape %s %q in %s", source, category, location)
	}
	e.logger.Info("scrape finished",
		zap.String("source", source),
		zap.Int("found", c.found),
		zap.Int("new", c.created),
		zap.Int("updated", c.updated),
		zap.Int("skipped", c.skipped),
		zap.Float64("seconds", row.DurationSeconds),
	)
	return c, nil
}

// RunEnrich starts a background enrichment pass over unenriched leads and
// returns the tracker job ID.
func (e *Engine) RunEnrich(limit int) string {
	if limit <= 0 {
		limit = e.cfg.EnrichLimit
	}
	id, ctx := e.tracker.Start(context.Background(), "enrich", map[string]string{
		"limit": strconv.Itoa(limit),
	})

	go func() {
		leads, err := e.store.ListUnenriched(ctx, limit)
		if err != nil {
			e.tracker.Fail(id, eris.Wrap(err, "engine: list unenriched").Error())
			return
		}
		e.runEnrichBatch(ctx, id, leads)
	}()
	return id
}

// RunReEnrich starts a background refresh of leads whose last enrichment is
// older than the given number of days.
func (e *Engine) RunReEnrich(days, limit int) string {
	if days <= 0 {
		days = DefaultStaleDays
	}
	if limit <= 0 {
		limit = e.cfg.EnrichLimit
	}
	id, ctx := e.tracker.Start(context.Background(), "re-enrich", map[string]string{
		"days":  strconv.Itoa(days),
		"limit": strconv.Itoa(limit),
	})

	go func() {
		cutoff := e.clock.Now().AddDate(0, 0, -days)
		leads, err := e.store.ListEnrichedBefore(ctx, cutoff, limit)
		if err != nil {
			e.tracker.Fail(id, eris.Wrap(err, "engine: list stale leads").Error())
			return
		}
		e.runEnrichBatch(ctx, id, leads)
	}()
	return id
}

func (e *Engine) runEnrichBatch(ctx context.Context, id string, leads []*lead.Lead) {
	if len(leads) == 0 {
		e.tracker.Append(id, "No leads to enrich")
		e.tracker.Complete(id)
		return
	}
	e.tracker.Append(id, fmt.Sprintf("Enriching %d leads...", len(leads)))
	ok, failed, err := e.enricher.EnrichBatch(ctx, leads, func(done, total int) {
		e.tracker.SetProgress(id, job.Progress{Current: done, Total: total})
	})
	if err != nil {
		e.tracker.Fail(id, err.Error())
		return
	}
	e.tracker.Append(id, fmt.Sprintf("Enriched: %d | Failed: %d", ok, failed))
	e.tracker.Complete(id)
}

// EnrichLeads enriches the given leads synchronously. IDs that do not exist
// are ignored; the result counts only leads that were found.
func (e *Engine) EnrichLeads(ctx context.Context, ids []int64) (BatchResult, error) {
	if len(ids) == 0 {
		return BatchResult{}, eris.New("engine: no lead IDs given")
	}
	leads, err := e.store.ByIDs(ctx, ids)
	if err != nil {
		return BatchResult{}, eris.Wrap(err, "engine: load leads by id")
	}
	ok, failed, err := e.enricher.EnrichBatch(ctx, leads, nil)
	if err != nil {
		return BatchResult{}, err
	}
	return BatchResult{Total: len(leads), Succeeded: ok, Failed: failed}, nil
}

// Run executes the full configured matrix of sources, categories and
// locations with a bounded worker pool, then enriches what came in. One
// failing combination is recorded on its scrape_jobs row and does not stop
// the others; Run fails only when every combination failed or the context
// was canceled.
func (e *Engine) Run(ctx context.Context) error {
	sources := e.cfg.Sources
	if len(sources) == 0 {
		sources = e.registry.Sources()
	}
	categories := e.cfg.Categories
	if len(categories) == 0 {
		return eris.New("engine: no categories configured")
	}
	locs := locations.Expand(e.cfg.States, e.cfg.Cities)
	if len(locs) == 0 {
		return eris.New("engine: no locations resolved from config")
	}

	e.logger.Info("run started",
		zap.Strings("sources", sources),
		zap.Int("categories", len(categories)),
		zap.Int("locations", len(locs)),
	)

	var (
		mu       sync.Mutex
		total    counters
		failures int
	)
	combos := 0

	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Workers)
	for _, source := range sources {
		for _, category := range categories {
			for _, location := range locs {
				combos++
				g.Go(func() error {
					c, err := e.scrapeOne(ctx, "", source, category, location, e.cfg.MaxPages)
					mu.Lock()
					defer mu.Unlock()
					total.add(c)
					if err != nil {
						failures++
						e.logger.Error("combination failed",
							zap.String("source", source),
							zap.String("category", category),
							zap.String("location", location),
							zap.Error(err),
						)
					}
					return nil
				})
			}
		}
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "engine: run canceled")
	}
	if failures == combos {
		return eris.Errorf("engine: all %d scrape combinations failed", combos)
	}

	e.logger.Info("scrape matrix finished",
		zap.Int("combinations", combos),
		zap.Int("failed", failures),
		zap.Int("found", total.found),
		zap.Int("new", total.created),
		zap.Int("updated", total.updated),
		zap.Int("skipped", total.skipped),
	)

	leads, err := e.store.ListUnenriched(ctx, e.cfg.EnrichLimit)
	if err != nil {
		return eris.Wrap(err, "engine: list unenriched")
	}
	if len(leads) == 0 {
		return nil
	}
	ok, failed, err := e.enricher.EnrichBatch(ctx, leads, nil)
	if err != nil {
		return err
	}
	e.logger.Info("enrichment finished", zap.Int("succeeded", ok), zap.Int("failed", failed))
	return nil
}
