package enrich

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leadgrid/lead-engine/internal/fetch"
	"github.com/leadgrid/lead-engine/internal/lead"
	"github.com/leadgrid/lead-engine/internal/score"
	"github.com/leadgrid/lead-engine/internal/store/memory"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// pageFetcher serves pages by first matching URL substring.
type pageFetcher struct {
	mu      sync.Mutex
	pages   map[string]string
	headers http.Header
	calls   []string
}

func (p *pageFetcher) Get(_ context.Context, rawURL string) (*fetch.Response, error) {
	p.mu.Lock()
	p.calls = append(p.calls, rawURL)
	p.mu.Unlock()
	best := ""
	for key := range p.pages {
		if strings.Contains(rawURL, key) && len(key) > len(best) {
			best = key
		}
	}
	if best == "" {
		return nil, errors.New("404 not found")
	}
	h := p.headers
	if h == nil {
		h = http.Header{}
	}
	return &fetch.Response{URL: rawURL, StatusCode: 200, Headers: h, Body: []byte(p.pages[best])}, nil
}

func TestTechStackDetection(t *testing.T) {
	html := `<html><head>
<meta name="viewport" content="width=device-width">
<link href="/wp-content/themes/biz/style.css">
<script src="https://www.google-analytics.com/analytics.js"></script>
<script src="https://js.stripe.com/v3/"></script>
<script>fbq('init', '123');</script>
</head><body></body></html>`
	pf := &pageFetcher{
		pages:   map[string]string{"hillcountryplumbing.com": html},
		headers: http.Header{"Server": {"nginx/1.25"}, "X-Powered-By": {"PHP/8.2"}},
	}
	ts := NewTechStack(pf, zap.NewNop())

	f, err := ts.Enrich(context.Background(), &lead.Lead{Website: "https://hillcountryplumbing.com"})
	require.NoError(t, err)

	assert.Equal(t, "WordPress", f["website_platform"])
	assert.Equal(t, true, f["has_ssl"])
	assert.Equal(t, true, f["mobile_friendly"])
	assert.Equal(t, true, f["runs_facebook_ads"])

	stack, ok := f["tech_stack"].(map[string]bool)
	require.True(t, ok)
	assert.True(t, stack["Google Analytics"])
	assert.True(t, stack["Stripe"])
	assert.True(t, stack["Facebook Pixel"])
	assert.True(t, stack["Nginx"])
	assert.True(t, stack["PHP"])
}

func TestTechStackSkipsWithoutWebsite(t *testing.T) {
	ts := NewTechStack(&pageFetcher{}, zap.NewNop())
	f, err := ts.Enrich(context.Background(), &lead.Lead{})
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestSocialExtraction(t *testing.T) {
	html := `<html><body>
<a href="https://www.facebook.com/sharer/sharer.php?u=x">Share</a>
<a href="https://www.facebook.com/hillcountryplumbing/">Facebook</a>
<a href="https://instagram.com/hillcountryplumbing">Instagram</a>
<a href="https://twitter.com/intent/tweet">Tweet</a>
</body></html>`
	pf := &pageFetcher{pages: map[string]string{"hillcountryplumbing.com": html}}
	s := NewSocial(pf, zap.NewNop())

	f, err := s.Enrich(context.Background(), &lead.Lead{Website: "https://hillcountryplumbing.com"})
	require.NoError(t, err)

	// The sharer link is skipped in favor of the real profile.
	assert.Equal(t, "https://www.facebook.com/hillcountryplumbing", f["facebook_url"])
	assert.Equal(t, "https://instagram.com/hillcountryplumbing", f["instagram_url"])
	// Only an intent link was present, so no twitter profile.
	assert.Nil(t, f["twitter_url"])
}

func TestContactFindsOwnerOnHomepage(t *testing.T) {
	html := `<html><body>
<p>Mike Rivera, Owner of Hill Country Plumbing.</p>
<a href="mailto:mike@hillcountryplumbing.com">Email us</a>
<a href="https://www.linkedin.com/in/mikerivera/">LinkedIn</a>
</body></html>`
	pf := &pageFetcher{pages: map[string]string{"hillcountryplumbing.com": html}}
	c := NewContact(pf, zap.NewNop())

	f, err := c.Enrich(context.Background(), &lead.Lead{Website: "https://hillcountryplumbing.com"})
	require.NoError(t, err)

	assert.Equal(t, "Mike Rivera", f["owner_name"])
	assert.Equal(t, "Owner", f["owner_title"])
	assert.Equal(t, "mike@hillcountryplumbing.com", f["owner_email"])
	assert.Equal(t, "https://www.linkedin.com/in/mikerivera", f["owner_linkedin"])
}

func TestContactFallsBackToAboutPage(t *testing.T) {
	pf := &pageFetcher{pages: map[string]string{
		"hillcountryplumbing.com/about": `<html><body><p>Owner: Mike Rivera</p></body></html>`,
		"hillcountryplumbing.com":       `<html><body><p>Quality plumbing since 2010.</p></body></html>`,
	}}
	c := NewContact(pf, zap.NewNop())

	f, err := c.Enrich(context.Background(), &lead.Lead{Website: "https://hillcountryplumbing.com"})
	require.NoError(t, err)
	assert.Equal(t, "Mike Rivera", f["owner_name"])
	assert.Equal(t, "Owner", f["owner_title"])
}

func TestContactClassifiesSharedMailbox(t *testing.T) {
	html := `<html><body>
<a href="mailto:info@hillcountryplumbing.com">info</a>
</body></html>`
	pf := &pageFetcher{pages: map[string]string{"hillcountryplumbing.com": html}}
	c := NewContact(pf, zap.NewNop())

	// Shared mailbox fills the empty email slot, plus the fallback owner email.
	f, err := c.Enrich(context.Background(), &lead.Lead{Website: "https://hillcountryplumbing.com"})
	require.NoError(t, err)
	assert.Equal(t, "info@hillcountryplumbing.com", f["email"])

	// But it does not replace an existing email.
	f, err = c.Enrich(context.Background(), &lead.Lead{
		Website: "https://hillcountryplumbing.com",
		Email:   "mike@hillcountryplumbing.com",
	})
	require.NoError(t, err)
	assert.Nil(t, f["email"])
}

func TestReviewsGoogleRating(t *testing.T) {
	pf := &pageFetcher{pages: map[string]string{
		"google.com/search": `<html><body><div class="kp-wholepage">Hill Country Plumbing 4.5 (123 reviews)</div></body></html>`,
	}}
	r := NewReviews(pf, zap.NewNop())

	l := &lead.Lead{BusinessName: "Hill Country Plumbing", City: "Austin", State: "TX", YelpRating: 4.0}
	f, err := r.Enrich(context.Background(), l)
	require.NoError(t, err)

	assert.Equal(t, 4.5, f["google_rating"])
	assert.Equal(t, 123, f["google_review_count"])
	assert.Equal(t, true, f["has_google_business_profile"])

	// Yelp already rated: no Yelp search happened.
	for _, call := range pf.calls {
		assert.NotContains(t, call, "yelp.com")
	}
}

func TestReviewsYelpLookup(t *testing.T) {
	yelpHTML := `<html><body><script type="application/ld+json">
{"@type":"ItemList","itemListElement":[{"item":{"name":"Hill Country Plumbing LLC",
"aggregateRating":{"ratingValue":4.5,"reviewCount":87}}}]}
</script></body></html>`
	pf := &pageFetcher{pages: map[string]string{"yelp.com/search": yelpHTML}}
	r := NewReviews(pf, zap.NewNop())

	l := &lead.Lead{BusinessName: "Hill Country Plumbing", City: "Austin", State: "TX"}
	f, err := r.Enrich(context.Background(), l)
	require.NoError(t, err)

	// Fuzzy name match tolerates the LLC suffix.
	assert.Equal(t, 4.5, f["yelp_rating"])
	assert.Equal(t, 87, f["yelp_review_count"])
}

func TestWebsiteDiscoveryViaSearch(t *testing.T) {
	results := `<html><body>
<a href="/url?q=https://www.yelp.com/biz/hill-country-plumbing&amp;sa=U">Yelp</a>
<a href="/url?q=https://www.hillcountryplumbing.com/services&amp;sa=U">Hill Country Plumbing</a>
</body></html>`
	pf := &pageFetcher{pages: map[string]string{"google.com/search": results}}
	wd := NewWebsiteDiscovery(pf, zap.NewNop())

	f, err := wd.Enrich(context.Background(), &lead.Lead{
		BusinessName: "Hill Country Plumbing", City: "Austin", State: "TX",
	})
	require.NoError(t, err)
	// The directory result is passed over for the business's own domain,
	// trimmed to its root.
	assert.Equal(t, "https://www.hillcountryplumbing.com", f["website"])
	assert.Equal(t, true, f["has_website"])
}

func TestWebsiteDiscoverySkipsKnownWebsite(t *testing.T) {
	pf := &pageFetcher{pages: map[string]string{}}
	wd := NewWebsiteDiscovery(pf, zap.NewNop())

	f, err := wd.Enrich(context.Background(), &lead.Lead{
		BusinessName: "Hill Country Plumbing", Website: "https://hillcountryplumbing.com",
	})
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.Empty(t, pf.calls)
}

func TestWebsiteDiscoveryGuessesDomain(t *testing.T) {
	// Searches fail; the domain guess for "Joe's Plumbing LLC" lands on a
	// real site with a substantial page.
	pf := &pageFetcher{pages: map[string]string{
		"joesplumbing.com": "<html>" + strings.Repeat("pipes ", 300) + "</html>",
	}}
	wd := NewWebsiteDiscovery(pf, zap.NewNop())

	f, err := wd.Enrich(context.Background(), &lead.Lead{BusinessName: "Joe's Plumbing LLC"})
	require.NoError(t, err)
	assert.Equal(t, "https://www.joesplumbing.com", f["website"])
}

type stubEnricher struct {
	module string
	fields lead.Fields
	err    error
}

func (s stubEnricher) Module() string { return s.module }
func (s stubEnricher) Enrich(context.Context, *lead.Lead) (lead.Fields, error) {
	return s.fields, s.err
}

func newTestOrchestrator(st *memory.Store, enrichers ...Enricher) *Orchestrator {
	clock := fixedClock{t: testNow}
	return NewOrchestrator(st, score.New(clock), clock, zap.NewNop(), 3, enrichers...)
}

func seedLead(t *testing.T, st *memory.Store) *lead.Lead {
	t.Helper()
	l := &lead.Lead{BusinessName: "Hill Country Plumbing", Phone: "+15125550134", ScrapedAt: testNow}
	require.NoError(t, st.Insert(context.Background(), l))
	return l
}

func TestEnrichLeadMergesAndStamps(t *testing.T) {
	st := memory.New()
	l := seedLead(t, st)

	o := newTestOrchestrator(st,
		stubEnricher{module: "website_tech_stack", fields: lead.Fields{"website_platform": "WordPress", "has_ssl": true}},
		stubEnricher{module: "social_media", fields: lead.Fields{"facebook_url": "https://facebook.com/hcp"}},
	)
	require.NoError(t, o.EnrichLead(context.Background(), l))

	stored, err := st.Get(context.Background(), l.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsEnriched)
	assert.Equal(t, "WordPress", stored.WebsitePlatform)
	assert.True(t, stored.HasSSL)
	assert.Equal(t, "https://facebook.com/hcp", stored.FacebookURL)
	assert.Empty(t, stored.EnrichmentErrors)
	require.NotNil(t, stored.EnrichedAt)
	assert.Equal(t, testNow, *stored.EnrichedAt)
	require.NotNil(t, stored.LastEnrichedAt)
	assert.Equal(t, testNow, *stored.LastEnrichedAt)
	assert.NotZero(t, stored.ICPScore)
}

func TestEnrichLeadPartialModuleFailure(t *testing.T) {
	st := memory.New()
	l := seedLead(t, st)

	o := newTestOrchestrator(st,
		stubEnricher{module: "website_tech_stack", err: errors.New("connect timeout")},
		stubEnricher{module: "social_media", fields: lead.Fields{"facebook_url": "https://facebook.com/hcp"}},
	)
	require.NoError(t, o.EnrichLead(context.Background(), l))

	stored, err := st.Get(context.Background(), l.ID)
	require.NoError(t, err)
	// The surviving module's data landed and the failure is on record.
	assert.True(t, stored.IsEnriched)
	assert.Equal(t, "https://facebook.com/hcp", stored.FacebookURL)
	assert.Contains(t, stored.EnrichmentErrors, "website_tech_stack: connect timeout")
}

func TestEnrichLeadKeepsPriorErrorsOnCleanRun(t *testing.T) {
	st := memory.New()
	l := seedLead(t, st)
	l.EnrichmentErrors = "website_tech_stack: connect timeout"
	require.NoError(t, st.Update(context.Background(), l))

	o := newTestOrchestrator(st,
		stubEnricher{module: "social_media", fields: lead.Fields{"facebook_url": "https://facebook.com/hcp"}},
	)
	require.NoError(t, o.EnrichLead(context.Background(), l))

	stored, err := st.Get(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, "website_tech_stack: connect timeout", stored.EnrichmentErrors)

	// A new failure replaces the stale record with the fresh one.
	o = newTestOrchestrator(st, stubEnricher{module: "reviews_ratings", err: errors.New("blocked")})
	require.NoError(t, o.EnrichLead(context.Background(), stored))
	stored, err = st.Get(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, "reviews_ratings: blocked", stored.EnrichmentErrors)
}

func TestEnrichLeadReplacesStaleData(t *testing.T) {
	st := memory.New()
	l := seedLead(t, st)
	l.WebsitePlatform = "Weebly"
	require.NoError(t, st.Update(context.Background(), l))

	o := newTestOrchestrator(st,
		stubEnricher{module: "website_tech_stack", fields: lead.Fields{"website_platform": "WordPress"}},
	)
	require.NoError(t, o.EnrichLead(context.Background(), l))

	stored, err := st.Get(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, "WordPress", stored.WebsitePlatform)
}

func TestEnrichLeadDiscoveryFeedsLaterModules(t *testing.T) {
	st := memory.New()
	l := seedLead(t, st)
	require.Empty(t, l.Website)

	pf := &pageFetcher{pages: map[string]string{
		"hillcountryplumbing.com": `<a href="https://facebook.com/hcp">fb</a>`,
	}}
	o := newTestOrchestrator(st,
		stubEnricher{module: "website_discovery", fields: lead.Fields{
			"website": "https://hillcountryplumbing.com", "has_website": true,
		}},
		NewSocial(pf, zap.NewNop()),
	)
	require.NoError(t, o.EnrichLead(context.Background(), l))

	stored, err := st.Get(context.Background(), l.ID)
	require.NoError(t, err)
	// The discovered website was visible to the social module in the same run.
	assert.Equal(t, "https://hillcountryplumbing.com", stored.Website)
	assert.True(t, stored.HasWebsite)
	assert.Equal(t, "https://facebook.com/hcp", stored.FacebookURL)
}

func TestEnrichBatchCountsAndProgress(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	var leads []*lead.Lead
	for i := 0; i < 7; i++ {
		leads = append(leads, seedLead(t, st))
	}
	// One lead the store has never seen: its save fails.
	leads = append(leads, &lead.Lead{ID: 999, BusinessName: "Ghost"})

	o := newTestOrchestrator(st,
		stubEnricher{module: "social_media", fields: lead.Fields{"facebook_url": "https://facebook.com/x"}},
	)

	var mu sync.Mutex
	var progress []int
	succeeded, failed, err := o.EnrichBatch(ctx, leads, func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		progress = append(progress, done)
		assert.Equal(t, 8, total)
	})
	require.NoError(t, err)
	assert.Equal(t, 7, succeeded)
	assert.Equal(t, 1, failed)
	assert.Len(t, progress, 8)
}

func TestEnrichBatchHonorsCancellation(t *testing.T) {
	st := memory.New()
	l := seedLead(t, st)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newTestOrchestrator(st, stubEnricher{module: "social_media"})
	_, _, err := o.EnrichBatch(ctx, []*lead.Lead{l}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
