package enrich

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/leadgrid/lead-engine/internal/lead"
)

type socialPattern struct {
	field    string
	patterns []*regexp.Regexp
	// excluded substrings mark share/login pages rather than profiles.
	excluded []string
}

var socialPatterns = []socialPattern{
	{
		field: "facebook_url",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)https?://(?:www\.)?facebook\.com/[a-zA-Z0-9._-]+/?`),
			regexp.MustCompile(`(?i)https?://(?:www\.)?fb\.com/[a-zA-Z0-9._-]+/?`),
		},
		excluded: []string{"sharer", "login", "dialog", "share.php", "groups"},
	},
	{
		field: "instagram_url",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)https?://(?:www\.)?instagram\.com/[a-zA-Z0-9._-]+/?`),
		},
		excluded: []string{"accounts", "explore"},
	},
	{
		field: "twitter_url",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)https?://(?:www\.)?(?:twitter|x)\.com/[a-zA-Z0-9_]+/?`),
		},
		excluded: []string{"intent", "share", "home"},
	},
	{
		field: "linkedin_url",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)https?://(?:www\.)?linkedin\.com/(?:company|in)/[a-zA-Z0-9._-]+/?`),
		},
		excluded: []string{"login", "signup", "sharearticle"},
	},
	{
		field: "youtube_url",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)https?://(?:www\.)?youtube\.com/(?:channel|c|user|@)[a-zA-Z0-9._-]+/?`),
		},
		excluded: []string{"watch", "results", "feed"},
	},
	{
		field: "tiktok_url",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)https?://(?:www\.)?tiktok\.com/@[a-zA-Z0-9._-]+/?`),
		},
		excluded: []string{"login"},
	},
}

// Social finds the business's social profiles by scanning its homepage HTML
// for profile URLs.
type Social struct {
	http   Fetcher
	logger *zap.Logger
}

func NewSocial(http Fetcher, logger *zap.Logger) *Social {
	return &Social{http: http, logger: logger.Named("social")}
}

func (s *Social) Module() string { return "social_media" }

func (s *Social) Enrich(ctx context.Context, l *lead.Lead) (lead.Fields, error) {
	if l.Website == "" {
		return nil, nil
	}
	resp, err := s.http.Get(ctx, l.Website)
	if err != nil {
		return nil, err
	}
	html := string(resp.Body)

	f := lead.Fields{}
	for _, sp := range socialPatterns {
		if url := firstProfile(sp, html); url != "" {
			f[sp.field] = url
		}
	}
	if len(f) > 0 {
		s.logger.Debug("found social links",
			zap.String("business", l.BusinessName),
			zap.Int("count", len(f)),
		)
	}
	return f, nil
}

func firstProfile(sp socialPattern, html string) string {
	for _, p := range sp.patterns {
		for _, match := range p.FindAllString(html, -1) {
			if !isExcluded(sp.excluded, match) {
				return strings.TrimRight(match, "/")
			}
		}
	}
	return ""
}

func isExcluded(excluded []string, url string) bool {
	lower := strings.ToLower(url)
	for _, e := range excluded {
		if strings.Contains(lower, e) {
			return true
		}
	}
	return false
}

var _ Enricher = (*Social)(nil)
