package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadgrid/lead-engine/internal/lead"
)

const yelpBase = "https://www.yelp.com"

var yelpStars = regexp.MustCompile(`([\d.]+)\s*star`)

// Yelp scrapes business listings from yelp.com search pages. Result pages
// usually embed JSON-LD structured data, which is far more stable than the
// generated class names in the markup, so that is tried first and the HTML
// cards are only a fallback.
type Yelp struct {
	http   Fetcher
	logger *zap.Logger
}

func NewYelp(http Fetcher, logger *zap.Logger) *Yelp {
	return &Yelp{http: http, logger: logger.Named("yelp")}
}

func (s *Yelp) Source() string { return "yelp" }

// Search walks result pages by offset, ten listings per page.
func (s *Yelp) Search(ctx context.Context, category, location string, maxPages int, emit func(lead.Fields)) error {
	for page := 0; page < maxPages; page++ {
		params := url.Values{
			"find_desc": {category},
			"find_loc":  {location},
			"start":     {strconv.Itoa(page * 10)},
		}
		resp, err := s.http.Get(ctx, yelpBase+"/search?"+params.Encode())
		if err != nil {
			return eris.Wrapf(err, "yelp: fetch page %d", page+1)
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
		if err != nil {
			return eris.Wrapf(err, "yelp: parse page %d", page+1)
		}

		listings := s.fromJSONLD(doc)
		if len(listings) == 0 {
			listings = s.fromHTML(doc)
		}
		s.logger.Debug("scraped page", zap.Int("page", page+1), zap.Int("listings", len(listings)))
		if len(listings) == 0 {
			break
		}
		for _, f := range listings {
			emit(f)
		}
	}
	return nil
}

// fromJSONLD pulls LocalBusiness entries out of ld+json script tags, both
// standalone and inside ItemList wrappers.
func (s *Yelp) fromJSONLD(doc *goquery.Document) []lead.Fields {
	var listings []lead.Fields
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, el *goquery.Selection) {
		var data any
		if err := json.Unmarshal([]byte(el.Text()), &data); err != nil {
			return
		}
		switch v := data.(type) {
		case []any:
			for _, item := range v {
				if f := parseJSONLDBusiness(item); f != nil {
					listings = append(listings, f)
				}
			}
		case map[string]any:
			if jsonString(v, "@type") == "ItemList" {
				elements, _ := v["itemListElement"].([]any)
				for _, wrapped := range elements {
					item := wrapped
					if w, ok := wrapped.(map[string]any); ok {
						if inner, ok := w["item"]; ok {
							item = inner
						}
					}
					if f := parseJSONLDBusiness(item); f != nil {
						listings = append(listings, f)
					}
				}
			} else if f := parseJSONLDBusiness(v); f != nil {
				listings = append(listings, f)
			}
		}
	})
	return listings
}

func parseJSONLDBusiness(item any) lead.Fields {
	obj, ok := item.(map[string]any)
	if !ok {
		return nil
	}
	typ := jsonString(obj, "@type")
	if !strings.Contains(typ, "Business") && !strings.Contains(typ, "Organization") {
		return nil
	}
	name := jsonString(obj, "name")
	if name == "" {
		return nil
	}

	f := lead.Fields{
		"business_name": name,
		"phone":         jsonString(obj, "telephone"),
		"website":       jsonString(obj, "url"),
		"source_url":    jsonString(obj, "url"),
	}
	if addr, ok := obj["address"].(map[string]any); ok {
		f["address"] = jsonString(addr, "streetAddress")
		f["city"] = jsonString(addr, "addressLocality")
		f["state"] = jsonString(addr, "addressRegion")
		f["zip_code"] = jsonString(addr, "postalCode")
	}
	if agg, ok := obj["aggregateRating"].(map[string]any); ok {
		if rating, ok := jsonFloat(agg, "ratingValue"); ok && rating > 0 {
			f["yelp_rating"] = rating
		}
		if count, ok := jsonFloat(agg, "reviewCount"); ok && count > 0 {
			f["yelp_review_count"] = int(count)
		}
	}
	return f
}

// fromHTML parses rendered result cards. Yelp's class names are generated,
// so the selectors match on substrings.
func (s *Yelp) fromHTML(doc *goquery.Document) []lead.Fields {
	var listings []lead.Fields
	cards := doc.Find(`li[class*="result"], div[data-testid*="serp-ia-card"]`)
	cards.Each(func(_ int, card *goquery.Selection) {
		if f := s.parseCard(card); f != nil {
			listings = append(listings, f)
		}
	})
	return listings
}

func (s *Yelp) parseCard(card *goquery.Selection) lead.Fields {
	nameEl := card.Find(`a[class*="businessName"], h3 a, [class*="heading"] a, a[href*="/biz/"]`)
	name := listingName(nameEl)
	if len(name) < 2 {
		return nil
	}

	phone := strings.TrimSpace(card.Find(`[class*="phone"], a[href^="tel:"]`).First().Text())
	if phone == "" {
		phone = findPhone(card.Text())
	}

	var addr postalAddress
	if addrEl := card.Find(`[class*="address"], address`).First(); addrEl.Length() > 0 {
		addr = splitAddress(joinedText(addrEl, ", "))
	}

	f := lead.Fields{
		"business_name": name,
		"phone":         phone,
		"address":       addr.Street,
		"city":          addr.City,
		"state":         addr.State,
		"zip_code":      addr.Zip,
		"category":      strings.TrimSpace(card.Find(`[class*="category"], [class*="tag"]`).First().Text()),
	}

	if label, ok := card.Find(`[aria-label*="star"], [aria-label*="rating"]`).First().Attr("aria-label"); ok {
		if m := yelpStars.FindStringSubmatch(label); m != nil {
			if rating, err := strconv.ParseFloat(m[1], 64); err == nil {
				f["yelp_rating"] = rating
			}
		}
	}
	if count, ok := firstInt(card.Find(`[class*="reviewCount"], [class*="review"]`).First().Text()); ok {
		f["yelp_review_count"] = count
	}
	if href, ok := nameEl.First().Attr("href"); ok {
		f["source_url"] = absURL(yelpBase, href)
	}
	return f
}

func jsonString(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func jsonFloat(obj map[string]any, key string) (float64, bool) {
	switch v := obj[key].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

var _ Scraper = (*Yelp)(nil)
