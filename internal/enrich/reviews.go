package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/leadgrid/lead-engine/internal/lead"
)

var (
	// Google renders knowledge panel ratings as "4.5 (123 reviews)".
	googleRatingText = regexp.MustCompile(`(?i)(\d\.\d)\s*\(\s*(\d[\d,]*)\s*(?:reviews?|ratings?)`)
	nonAlnum         = regexp.MustCompile(`[^a-z0-9]`)
)

// Reviews pulls rating data from a Google search results page and, when the
// scrape didn't already provide one, a Yelp rating from Yelp search JSON-LD.
type Reviews struct {
	http   Fetcher
	logger *zap.Logger
}

func NewReviews(http Fetcher, logger *zap.Logger) *Reviews {
	return &Reviews{http: http, logger: logger.Named("reviews")}
}

func (r *Reviews) Module() string { return "reviews_ratings" }

func (r *Reviews) Enrich(ctx context.Context, l *lead.Lead) (lead.Fields, error) {
	f := lead.Fields{}
	if google, err := r.searchGoogle(ctx, l); err == nil {
		mergeFields(f, google)
	} else {
		r.logger.Debug("google search failed", zap.String("business", l.BusinessName), zap.Error(err))
	}
	if l.YelpRating == 0 {
		if yelp, err := r.searchYelp(ctx, l); err == nil {
			mergeFields(f, yelp)
		} else {
			r.logger.Debug("yelp search failed", zap.String("business", l.BusinessName), zap.Error(err))
		}
	}
	return f, nil
}

func (r *Reviews) searchGoogle(ctx context.Context, l *lead.Lead) (lead.Fields, error) {
	query := url.QueryEscape(l.BusinessName + " " + l.City + " " + l.State)
	resp, err := r.http.Get(ctx, "https://www.google.com/search?q="+query)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, err
	}

	f := lead.Fields{}
	text := doc.Text()
	if m := googleRatingText.FindStringSubmatch(text); m != nil {
		if rating, ok := parseFloat(m[1]); ok {
			f["google_rating"] = rating
		}
		if count, ok := parseInt(strings.ReplaceAll(m[2], ",", "")); ok {
			f["google_review_count"] = count
		}
	}
	if doc.Find(`[data-attrid*="kc:"], .knowledge-panel, .kp-wholepage`).Length() > 0 ||
		strings.Contains(text, "business.site") || strings.Contains(text, "google.com/maps") {
		f["has_google_business_profile"] = true
	}
	return f, nil
}

func (r *Reviews) searchYelp(ctx context.Context, l *lead.Lead) (lead.Fields, error) {
	params := url.Values{
		"find_desc": {l.BusinessName},
		"find_loc":  {l.City + ", " + l.State},
	}
	resp, err := r.http.Get(ctx, "https://www.yelp.com/search?"+params.Encode())
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, err
	}

	f := lead.Fields{}
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		var data map[string]any
		if err := json.Unmarshal([]byte(el.Text()), &data); err != nil {
			return true
		}
		if t, _ := data["@type"].(string); t != "ItemList" {
			return true
		}
		items, _ := data["itemListElement"].([]any)
		for _, wrapped := range items {
			w, ok := wrapped.(map[string]any)
			if !ok {
				continue
			}
			biz, ok := w["item"].(map[string]any)
			if !ok {
				continue
			}
			name, _ := biz["name"].(string)
			if !namesMatch(name, l.BusinessName) {
				continue
			}
			if agg, ok := biz["aggregateRating"].(map[string]any); ok {
				if rating, ok := agg["ratingValue"].(float64); ok && rating > 0 {
					f["yelp_rating"] = rating
				}
				if count, ok := agg["reviewCount"].(float64); ok && count > 0 {
					f["yelp_review_count"] = int(count)
				}
			}
			return false
		}
		return true
	})
	return f, nil
}

// namesMatch compares business names ignoring case and punctuation, allowing
// one to be a substring of the other ("Joe's Pizza" vs "Joes Pizza LLC").
func namesMatch(a, b string) bool {
	na := nonAlnum.ReplaceAllString(strings.ToLower(a), "")
	nb := nonAlnum.ReplaceAllString(strings.ToLower(b), "")
	if na == "" || nb == "" {
		return false
	}
	return na == nb || strings.Contains(na, nb) || strings.Contains(nb, na)
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func parseInt(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	return n, err == nil
}

var _ Enricher = (*Reviews)(nil)
