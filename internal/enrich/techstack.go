package enrich

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/leadgrid/lead-engine/internal/fetch"
	"github.com/leadgrid/lead-engine/internal/lead"
)

// Fetcher is the slice of fetch.Client the enrichers need.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*fetch.Response, error)
}

type signature struct {
	name     string
	patterns []*regexp.Regexp
}

func sig(name string, patterns ...string) signature {
	s := signature{name: name}
	for _, p := range patterns {
		s.patterns = append(s.patterns, regexp.MustCompile(`(?i)`+p))
	}
	return s
}

// platformSignatures identify the site builder or CMS. Order matters: the
// first match wins, and the specific builders sit above the generic stacks.
var platformSignatures = []signature{
	sig("WordPress", `wp-content`, `wp-includes`, `wordpress`, `<meta name="generator" content="WordPress`),
	sig("Shopify", `cdn\.shopify\.com`, `shopify\.com`, `Shopify\.theme`),
	sig("Wix", `wix\.com`, `wixstatic\.com`, `X-Wix-`),
	sig("Squarespace", `squarespace\.com`, `sqsp\.com`, `squarespace-cdn`),
	sig("GoDaddy", `godaddy\.com`, `secureserver\.net`, `wsimg\.com`),
	sig("Weebly", `weebly\.com`, `editmysite\.com`),
	sig("Webflow", `webflow\.com`, `assets\.website-files\.com`),
	sig("Joomla", `/media/jui/`, `<meta name="generator" content="Joomla`),
	sig("Drupal", `drupal\.js`, `sites/default/files`, `Drupal\.settings`),
}

var techSignatures = []signature{
	sig("Google Analytics", `google-analytics\.com`, `gtag`, `UA-\d+`),
	sig("Google Tag Manager", `googletagmanager\.com`, `GTM-`),
	sig("Facebook Pixel", `connect\.facebook\.net`, `fbq\(`),
	sig("Hotjar", `hotjar\.com`, `hj\(`),
	sig("Mailchimp", `mailchimp\.com`, `mc\.us\d+`),
	sig("HubSpot", `hubspot\.com`, `hs-scripts`),
	sig("Intercom", `intercom\.io`, `widget\.intercom\.io`),
	sig("Zendesk", `zendesk\.com`, `zdassets\.com`),
	sig("LiveChat", `livechatinc\.com`, `livechat`),
	sig("Calendly", `calendly\.com`),
	sig("Stripe", `stripe\.com`, `js\.stripe`),
	sig("PayPal", `paypal\.com`, `paypalobjects\.com`),
	sig("jQuery", `jquery[\.-]`, `jquery\.min\.js`),
	sig("React", `react\.production`, `__NEXT_DATA__`, `_next/`),
	sig("Vue.js", `vue\.js`, `vue\.min\.js`, `__vue__`),
	sig("Bootstrap", `bootstrap\.min`, `bootstrap\.css`),
	sig("Tailwind CSS", `tailwindcss`, `tailwind\.css`),
}

var (
	viewportMeta   = regexp.MustCompile(`(?i)<meta[^>]*name=["']viewport["']`)
	googleAdsHint  = regexp.MustCompile(`(?i)googleads|adwords|gads|google_ads`)
	facebookAdHint = regexp.MustCompile(`(?i)facebook.*pixel|fbq\(|fb-pixel`)
)

// TechStack inspects a lead's website and detects its platform, embedded
// tools, SSL and mobile readiness, and ad tracker presence.
type TechStack struct {
	http   Fetcher
	logger *zap.Logger
}

func NewTechStack(http Fetcher, logger *zap.Logger) *TechStack {
	return &TechStack{http: http, logger: logger.Named("techstack")}
}

func (t *TechStack) Module() string { return "website_tech_stack" }

func (t *TechStack) Enrich(ctx context.Context, l *lead.Lead) (lead.Fields, error) {
	if l.Website == "" {
		return nil, nil
	}
	resp, err := t.http.Get(ctx, l.Website)
	if err != nil {
		return nil, err
	}
	html := string(resp.Body)

	f := lead.Fields{
		"has_ssl":           strings.HasPrefix(l.Website, "https"),
		"mobile_friendly":   viewportMeta.MatchString(html),
		"runs_google_ads":   googleAdsHint.MatchString(html),
		"runs_facebook_ads": facebookAdHint.MatchString(html),
	}

	for _, s := range platformSignatures {
		if matchAny(s.patterns, html) {
			f["website_platform"] = s.name
			break
		}
	}

	stack := make(map[string]bool)
	for _, s := range techSignatures {
		if matchAny(s.patterns, html) {
			stack[s.name] = true
		}
	}
	switch server := strings.ToLower(resp.Headers.Get("Server")); {
	case strings.Contains(server, "nginx"):
		stack["Nginx"] = true
	case strings.Contains(server, "apache"):
		stack["Apache"] = true
	case strings.Contains(server, "cloudflare"):
		stack["Cloudflare"] = true
	}
	switch poweredBy := strings.ToLower(resp.Headers.Get("X-Powered-By")); {
	case strings.Contains(poweredBy, "php"):
		stack["PHP"] = true
	case strings.Contains(poweredBy, "asp.net"):
		stack["ASP.NET"] = true
	case strings.Contains(poweredBy, "express"):
		stack["Express.js"] = true
	}
	if len(stack) > 0 {
		f["tech_stack"] = stack
	}
	return f, nil
}

func matchAny(patterns []*regexp.Regexp, html string) bool {
	for _, p := range patterns {
		if p.MatchString(html) {
			return true
		}
	}
	return false
}

var _ Enricher = (*TechStack)(nil)
