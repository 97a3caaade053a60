package enrich

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/leadgrid/lead-engine/internal/lead"
)

// directoryDomains are aggregators and platforms that can never be the
// business's own website.
var directoryDomains = map[string]bool{
	"yelp.com": true, "yellowpages.com": true, "bbb.org": true,
	"facebook.com": true, "instagram.com": true, "twitter.com": true,
	"x.com": true, "linkedin.com": true, "youtube.com": true,
	"tiktok.com": true, "mapquest.com": true, "superpages.com": true,
	"whitepages.com": true, "manta.com": true, "angieslist.com": true,
	"homeadvisor.com": true, "thumbtack.com": true, "nextdoor.com": true,
	"google.com": true, "bing.com": true, "apple.com": true,
	"amazon.com": true, "wikipedia.org": true, "tripadvisor.com": true,
	"indeed.com": true, "glassdoor.com": true, "foursquare.com": true,
	"porch.com": true, "houzz.com": true, "bark.com": true,
	"expertise.com": true, "citysearch.com": true,
	"chamberofcommerce.com": true, "dandb.com": true,
	"merchantcircle.com": true, "buildzoom.com": true,
	"networx.com": true, "angi.com": true, "pinterest.com": true,
	"reddit.com": true,
}

var (
	looseURLPattern = regexp.MustCompile(`https?://[a-zA-Z0-9._-]+\.[a-zA-Z]{2,}(?:/[^\s"<>]*)?`)
	nameCleaner     = regexp.MustCompile(`[^a-z0-9]`)
	corpSuffix      = regexp.MustCompile(`(llc|inc|corp|co|ltd|company)$`)
)

// WebsiteDiscovery locates the business website for leads scraped without
// one, via web search and then direct domain guessing. It runs before the
// website-dependent modules so they have something to work with.
type WebsiteDiscovery struct {
	http   Fetcher
	logger *zap.Logger
}

func NewWebsiteDiscovery(http Fetcher, logger *zap.Logger) *WebsiteDiscovery {
	return &WebsiteDiscovery{http: http, logger: logger.Named("webdiscovery")}
}

func (w *WebsiteDiscovery) Module() string { return "website_discovery" }

func (w *WebsiteDiscovery) Enrich(ctx context.Context, l *lead.Lead) (lead.Fields, error) {
	if l.Website != "" || l.BusinessName == "" {
		return nil, nil
	}

	website := w.search(ctx, l.BusinessName, l.City, l.State)
	if website == "" && l.Phone != "" {
		// A phone number in the query pins the search to one business.
		website = w.search(ctx, l.BusinessName+" "+l.Phone, l.City, l.State)
	}
	if website == "" {
		website = w.guess(ctx, l.BusinessName)
	}
	if website == "" {
		return nil, nil
	}

	w.logger.Debug("found website",
		zap.String("business", l.BusinessName),
		zap.String("website", website),
	)
	return lead.Fields{"website": website, "has_website": true}, nil
}

// search runs one web search and returns the first result that is not a
// directory. Search failures are soft: the next strategy gets its turn.
func (w *WebsiteDiscovery) search(ctx context.Context, query, city, state string) string {
	q := strings.TrimSpace(strings.Join([]string{query, city, state}, " "))
	searchURL := "https://www.google.com/search?q=" + url.QueryEscape(q) + "&num=10"

	resp, err := w.http.Get(ctx, searchURL)
	if err != nil {
		w.logger.Debug("search failed", zap.String("query", q), zap.Error(err))
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return ""
	}

	var candidates []string

	// Result links; the engine wraps targets in /url?q=REAL&...
	doc.Find("a[href]").Each(func(_ int, el *goquery.Selection) {
		href, _ := el.Attr("href")
		switch {
		case strings.HasPrefix(href, "/url?q="):
			real := strings.SplitN(strings.TrimPrefix(href, "/url?q="), "&", 2)[0]
			if strings.HasPrefix(real, "http") {
				candidates = append(candidates, real)
			}
		case strings.HasPrefix(href, "http") && !strings.Contains(href, "google.com"):
			candidates = append(candidates, href)
		}
	})

	// The green display URL under each result.
	doc.Find("cite").Each(func(_ int, el *goquery.Selection) {
		text := strings.TrimSpace(el.Text())
		switch {
		case strings.HasPrefix(text, "http"):
			candidates = append(candidates, text)
		case strings.Contains(text, "."):
			candidates = append(candidates, "https://"+strings.Fields(text)[0])
		}
	})

	// Anything URL-shaped in the page text.
	candidates = append(candidates, looseURLPattern.FindAllString(doc.Text(), -1)...)

	for _, candidate := range candidates {
		parsed, err := url.Parse(candidate)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			continue
		}
		domain := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
		if domain == "" || isDirectoryDomain(domain) {
			continue
		}
		return parsed.Scheme + "://" + parsed.Host
	}
	return ""
}

// guess probes common domain patterns: "Joe's Plumbing LLC" becomes
// joesplumbing.com, then .net.
func (w *WebsiteDiscovery) guess(ctx context.Context, businessName string) string {
	clean := nameCleaner.ReplaceAllString(strings.ToLower(businessName), "")
	clean = corpSuffix.ReplaceAllString(clean, "")
	if len(clean) < 3 {
		return ""
	}

	for _, tld := range []string{".com", ".net"} {
		guessURL := "https://www." + clean + tld
		resp, err := w.http.Get(ctx, guessURL)
		if err != nil {
			continue
		}
		// A parked domain serves a stub page; a real site has substance.
		if resp.StatusCode == 200 && len(resp.Body) > 1000 {
			return guessURL
		}
	}
	return ""
}

func isDirectoryDomain(domain string) bool {
	for excluded := range directoryDomains {
		if domain == excluded || strings.HasSuffix(domain, "."+excluded) {
			return true
		}
	}
	return false
}

var _ Enricher = (*WebsiteDiscovery)(nil)
