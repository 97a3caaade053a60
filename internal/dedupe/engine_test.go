package dedupe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leadgrid/lead-engine/internal/lead"
	"github.com/leadgrid/lead-engine/internal/score"
	"github.com/leadgrid/lead-engine/internal/store/memory"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestEngine() (*Engine, *memory.Store) {
	st := memory.New()
	clock := fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return New(st, score.New(clock), clock, zap.NewNop()), st
}

func rawLead() lead.Fields {
	return lead.Fields{
		"business_name": "Hill Country Plumbing",
		"phone":         "(512) 555-0134",
		"address":       "401 Congress Ave",
		"city":          "Austin",
		"state":         "TX",
		"zip_code":      "78701",
	}
}

func TestUpsertNewLead(t *testing.T) {
	e, _ := newTestEngine()

	l, outcome, err := e.Upsert(context.Background(), rawLead(), "yellowpages")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNew, outcome)
	require.NotNil(t, l)
	assert.NotZero(t, l.ID)
	assert.Equal(t, "+15125550134", l.Phone)
	assert.Equal(t, "US", l.Country)
	assert.Equal(t, "yellowpages", l.Source)
	assert.NotZero(t, l.QualityScore)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), l.ScrapedAt)
}

func TestUpsertMatchesByPhone(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	first, _, err := e.Upsert(ctx, rawLead(), "yellowpages")
	require.NoError(t, err)

	// Same phone, different formatting and name, extra field.
	raw := lead.Fields{
		"business_name": "HC Plumbing LLC",
		"phone":         "512-555-0134",
		"website":       "hillcountryplumbing.com",
	}
	merged, outcome, err := e.Upsert(ctx, raw, "bbb")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, first.ID, merged.ID)

	// The original name survives; the website fills the gap.
	assert.Equal(t, "Hill Country Plumbing", merged.BusinessName)
	assert.Equal(t, "https://hillcountryplumbing.com", merged.Website)
	assert.True(t, merged.HasWebsite)
	// Source was set on first sight and is not regressed.
	assert.Equal(t, "yellowpages", merged.Source)
}

func TestUpsertMatchesByEmail(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	raw := rawLead()
	delete(raw, "phone")
	raw["email"] = "mike@hillcountryplumbing.com"
	first, _, err := e.Upsert(ctx, raw, "yellowpages")
	require.NoError(t, err)

	dup := lead.Fields{
		"business_name": "Hill Country Plumbing",
		"email":         "MIKE@hillcountryplumbing.com",
	}
	merged, outcome, err := e.Upsert(ctx, dup, "yelp")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, first.ID, merged.ID)
}

func TestUpsertMatchesByNameAddress(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	raw := rawLead()
	delete(raw, "phone")
	first, _, err := e.Upsert(ctx, raw, "yellowpages")
	require.NoError(t, err)

	// Different case, no phone or email: matched by name and address.
	dup := lead.Fields{
		"business_name": "HILL COUNTRY PLUMBING",
		"address":       "401 congress ave",
		"city":          "AUSTIN",
		"state":         "tx",
	}
	merged, outcome, err := e.Upsert(ctx, dup, "bbb")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, first.ID, merged.ID)
}

func TestUpsertDistinctLeadsStaySeparate(t *testing.T) {
	e, st := newTestEngine()
	ctx := context.Background()

	_, _, err := e.Upsert(ctx, rawLead(), "yellowpages")
	require.NoError(t, err)

	other := rawLead()
	other["business_name"] = "Barton Springs Drain Co"
	other["phone"] = "(512) 555-0199"
	other["address"] = "1100 S Lamar Blvd"
	_, outcome, err := e.Upsert(ctx, other, "yellowpages")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNew, outcome)

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUpsertSkipsClosedAndForeign(t *testing.T) {
	e, st := newTestEngine()
	ctx := context.Background()

	closed := rawLead()
	closed["business_name"] = "Hill Country Plumbing - CLOSED"
	l, outcome, err := e.Upsert(ctx, closed, "yellowpages")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Nil(t, l)

	foreign := rawLead()
	foreign["state"] = "Ontario"
	_, outcome, err = e.Upsert(ctx, foreign, "yellowpages")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)

	nameless := lead.Fields{"phone": "(512) 555-0101"}
	_, outcome, err = e.Upsert(ctx, nameless, "yellowpages")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpsertIsIdempotent(t *testing.T) {
	e, st := newTestEngine()
	ctx := context.Background()

	first, _, err := e.Upsert(ctx, rawLead(), "yellowpages")
	require.NoError(t, err)

	second, outcome, err := e.Upsert(ctx, rawLead(), "yellowpages")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.BusinessName, second.BusinessName)
	assert.Equal(t, first.QualityScore, second.QualityScore)

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpsertRecomputesScoresOnMerge(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	first, _, err := e.Upsert(ctx, rawLead(), "yellowpages")
	require.NoError(t, err)

	richer := rawLead()
	richer["email"] = "mike@hillcountryplumbing.com"
	richer["website"] = "hillcountryplumbing.com"
	merged, _, err := e.Upsert(ctx, richer, "bbb")
	require.NoError(t, err)
	assert.Greater(t, merged.QualityScore, first.QualityScore)
}

func TestCleanDropsInvalidContactFields(t *testing.T) {
	raw := rawLead()
	raw["email"] = "not-an-email"
	raw["website"] = "not a url"

	cleaned, ok := Clean(raw)
	require.True(t, ok)
	assert.Empty(t, cleaned["email"])
	assert.Empty(t, cleaned["website"])
	assert.Equal(t, false, cleaned["has_website"])
}
