package dedupe

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadgrid/lead-engine/internal/lead"
	"github.com/leadgrid/lead-engine/internal/metrics"
	"github.com/leadgrid/lead-engine/internal/score"
	"github.com/leadgrid/lead-engine/internal/store"
)

// Outcome classifies what an Upsert did with a raw lead.
type Outcome string

const (
	OutcomeNew     Outcome = "new"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
)

const lockStripes = 64

// Engine folds raw scraped leads into the store. Duplicate resolution runs
// phone, then email, then case-insensitive name+address. Merges are additive:
// an existing non-empty field is never overwritten by scrape data, so the
// business name a lead was first seen under is the one it keeps.
type Engine struct {
	store  store.LeadStore
	scorer *score.Scorer
	clock  score.Clock
	logger *zap.Logger

	// locks serialize upserts per identity key so concurrent scrapers cannot
	// race the find-then-insert window into duplicate rows.
	locks [lockStripes]sync.Mutex
}

func New(st store.LeadStore, scorer *score.Scorer, clock score.Clock, logger *zap.Logger) *Engine {
	return &Engine{store: st, scorer: scorer, clock: clock, logger: logger.Named("dedupe")}
}

// Upsert cleans one raw lead and inserts or merges it. The returned lead is
// nil when the outcome is OutcomeSkipped.
func (e *Engine) Upsert(ctx context.Context, raw lead.Fields, source string) (*lead.Lead, Outcome, error) {
	cleaned, ok := Clean(raw)
	if !ok {
		metrics.IncLeadUpserted(source, string(OutcomeSkipped))
		return nil, OutcomeSkipped, nil
	}
	cleaned["source"] = source

	unlock := e.lock(identityKey(cleaned))
	defer unlock()

	existing, err := e.resolve(ctx, cleaned)
	if err != nil {
		return nil, OutcomeSkipped, err
	}

	now := e.clock.Now()
	if existing != nil {
		existing.ApplyAdditive(cleaned)
		existing.UpdatedAt = now
		e.scorer.Apply(existing)
		if err := e.store.Update(ctx, existing); err != nil {
			return nil, OutcomeSkipped, eris.Wrap(err, "dedupe: update lead")
		}
		metrics.IncLeadUpserted(source, string(OutcomeUpdated))
		e.logger.Debug("merged lead",
			zap.Int64("id", existing.ID),
			zap.String("business", existing.BusinessName),
		)
		return existing, OutcomeUpdated, nil
	}

	fresh := &lead.Lead{ScrapedAt: now, UpdatedAt: now}
	fresh.ApplyAdditive(cleaned)
	e.scorer.Apply(fresh)
	if err := e.store.Insert(ctx, fresh); err != nil {
		return nil, OutcomeSkipped, eris.Wrap(err, "dedupe: insert lead")
	}
	metrics.IncLeadUpserted(source, string(OutcomeNew))
	e.logger.Debug("new lead",
		zap.Int64("id", fresh.ID),
		zap.String("business", fresh.BusinessName),
	)
	return fresh, OutcomeNew, nil
}

// resolve finds an existing row for the cleaned lead, most reliable
// identifier first. Empty identifiers fall through to the next tier.
func (e *Engine) resolve(ctx context.Context, f lead.Fields) (*lead.Lead, error) {
	if phone := stringField(f, "phone"); phone != "" {
		l, err := e.store.FindByPhone(ctx, phone)
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, eris.Wrap(err, "dedupe: find by phone")
		}
	}
	if email := stringField(f, "email"); email != "" {
		l, err := e.store.FindByEmail(ctx, email)
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, eris.Wrap(err, "dedupe: find by email")
		}
	}
	name := stringField(f, "business_name")
	address := stringField(f, "address")
	city := stringField(f, "city")
	state := stringField(f, "state")
	if name != "" && address != "" && city != "" && state != "" {
		l, err := e.store.FindByNameAddress(ctx, name, address, city, state)
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, eris.Wrap(err, "dedupe: find by name and address")
		}
	}
	return nil, nil
}

// identityKey picks the strongest identifier the cleaned lead carries, in
// the same order resolve checks them.
func identityKey(f lead.Fields) string {
	if phone := stringField(f, "phone"); phone != "" {
		return "phone:" + phone
	}
	if email := stringField(f, "email"); email != "" {
		return "email:" + email
	}
	return "name:" + strings.ToLower(stringField(f, "business_name")) +
		"|" + strings.ToLower(stringField(f, "address"))
}

func (e *Engine) lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	m := &e.locks[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}
