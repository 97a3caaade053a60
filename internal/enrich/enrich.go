// Package enrich augments stored leads with data mined from their websites
// and public listings. Modules run in a fixed order per lead; leads run
// concurrently. A module failure degrades the lead, it never fails the run.
package enrich

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leadgrid/lead-engine/internal/lead"
	"github.com/leadgrid/lead-engine/internal/metrics"
	"github.com/leadgrid/lead-engine/internal/score"
	"github.com/leadgrid/lead-engine/internal/store"
)

// DefaultConcurrency is how many leads enrich in parallel.
const DefaultConcurrency = 5

// Enricher is one enrichment module. Enrich returns the snake_case fields it
// discovered; an empty map and nil error means the module had nothing to add.
type Enricher interface {
	Module() string
	Enrich(ctx context.Context, l *lead.Lead) (lead.Fields, error)
}

// Progress reports batch completion to the caller after each lead finishes.
type Progress func(done, total int)

// Orchestrator runs the configured modules over batches of leads and writes
// the merged results back to the store.
type Orchestrator struct {
	store       store.LeadStore
	scorer      *score.Scorer
	clock       score.Clock
	logger      *zap.Logger
	enrichers   []Enricher
	concurrency int
}

func NewOrchestrator(
	st store.LeadStore,
	scorer *score.Scorer,
	clock score.Clock,
	logger *zap.Logger,
	concurrency int,
	enrichers ...Enricher,
) *Orchestrator {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Orchestrator{
		store:       st,
		scorer:      scorer,
		clock:       clock,
		logger:      logger.Named("enrich"),
		enrichers:   enrichers,
		concurrency: concurrency,
	}
}

// EnrichLead runs every module against one lead, merges what they found and
// persists the result. Module errors are collected into the lead's
// enrichmentErrors field; the lead is still stamped enriched so re-runs are
// driven by staleness, not by transient failures.
func (o *Orchestrator) EnrichLead(ctx context.Context, l *lead.Lead) error {
	var moduleErrors []string
	for _, e := range o.enrichers {
		if err := ctx.Err(); err != nil {
			return err
		}
		fields, err := e.Enrich(ctx, l)
		if err != nil {
			moduleErrors = append(moduleErrors, fmt.Sprintf("%s: %v", e.Module(), err))
			metrics.IncEnrichment(e.Module(), "error")
			o.logger.Debug("module failed",
				zap.String("module", e.Module()),
				zap.String("business", l.BusinessName),
				zap.Error(err),
			)
			continue
		}
		metrics.IncEnrichment(e.Module(), "ok")
		// Enrichment data is fresher than scrape data, so it may replace
		// populated fields.
		l.ApplyReplace(fields)
	}

	now := o.clock.Now()
	l.IsEnriched = true
	if l.EnrichedAt == nil {
		l.EnrichedAt = &now
	}
	l.LastEnrichedAt = &now
	// Only written when something failed: a clean re-run does not erase the
	// record of earlier failures.
	if len(moduleErrors) > 0 {
		l.EnrichmentErrors = strings.Join(moduleErrors, "; ")
	}
	l.UpdatedAt = now
	o.scorer.Apply(l)

	if err := o.store.Update(ctx, l); err != nil {
		return eris.Wrap(err, "enrich: update lead")
	}
	o.logger.Info("enriched lead",
		zap.String("business", l.BusinessName),
		zap.Int("quality", l.QualityScore),
		zap.Int("icp", l.ICPScore),
		zap.Int("moduleErrors", len(moduleErrors)),
	)
	return nil
}

// EnrichBatch processes leads concurrently. It reports how many leads were
// fully persisted and how many failed outright; a lead with module errors
// but a successful save counts as succeeded.
func (o *Orchestrator) EnrichBatch(ctx context.Context, leads []*lead.Lead, progress Progress) (succeeded, failed int, err error) {
	total := len(leads)
	var done, ok atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for _, l := range leads {
		g.Go(func() error {
			metrics.WorkerStarted()
			defer metrics.WorkerDone()

			if err := o.EnrichLead(ctx, l); err != nil {
				// Cancellation aborts the batch; anything else is one bad lead.
				if ctx.Err() != nil {
					return ctx.Err()
				}
				o.logger.Warn("lead enrichment failed",
					zap.Int64("id", l.ID),
					zap.String("business", l.BusinessName),
					zap.Error(err),
				)
			} else {
				ok.Add(1)
			}
			if progress != nil {
				progress(int(done.Add(1)), total)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(ok.Load()), int(done.Load()) - int(ok.Load()), err
	}
	succeeded = int(ok.Load())
	return succeeded, total - succeeded, nil
}
