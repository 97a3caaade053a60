package scrape

import (
	"bytes"
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadgrid/lead-engine/internal/lead"
)

const yellowPagesBase = "https://www.yellowpages.com"

// YellowPages scrapes business listings from yellowpages.com search pages.
type YellowPages struct {
	http   Fetcher
	logger *zap.Logger
}

func NewYellowPages(http Fetcher, logger *zap.Logger) *YellowPages {
	return &YellowPages{http: http, logger: logger.Named("yellowpages")}
}

func (s *YellowPages) Source() string { return "yellowpages" }

func (s *YellowPages) Search(ctx context.Context, category, location string, maxPages int, emit func(lead.Fields)) error {
	for page := 1; page <= maxPages; page++ {
		params := url.Values{
			"search_terms":       {category},
			"geo_location_terms": {location},
			"page":               {strconv.Itoa(page)},
		}
		resp, err := s.http.Get(ctx, yellowPagesBase+"/search?"+params.Encode())
		if err != nil {
			return eris.Wrapf(err, "yellowpages: fetch page %d", page)
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
		if err != nil {
			return eris.Wrapf(err, "yellowpages: parse page %d", page)
		}

		cards := doc.Find("li.business-card")
		if cards.Length() == 0 {
			cards = doc.Find("div.result, div.v-card, div.srp-listing")
		}

		found := 0
		cards.Each(func(_ int, card *goquery.Selection) {
			f := s.parseListing(card)
			if f == nil {
				return
			}
			found++
			emit(f)
		})
		s.logger.Debug("scraped page", zap.Int("page", page), zap.Int("listings", found))
		if found == 0 {
			break
		}
	}
	return nil
}

func (s *YellowPages) parseListing(card *goquery.Selection) lead.Fields {
	nameEl := card.Find("h2.business-name a, h2.title a, h2.business-name, h2.title, span.business-name, a.business-name, h2.n a, .info h2 a, .info h2")
	name := listingName(nameEl)
	if name == "" {
		return nil
	}

	phone := ""
	phoneEl := card.Find("a[href^='tel:'], div.phones, .phone").First()
	if phoneEl.Length() > 0 {
		if href, ok := phoneEl.Attr("href"); ok && strings.HasPrefix(href, "tel:") {
			phone = strings.TrimSpace(strings.TrimPrefix(href, "tel:"))
		} else {
			phone = strings.TrimSpace(phoneEl.Text())
		}
	}
	if phone == "" {
		phone = findPhone(card.Text())
	}

	var addr postalAddress
	addrEl := card.Find("article.address-indicators, article.address, div.street-address, .adr").First()
	if addrEl.Length() > 0 {
		addr = splitAddress(joinedText(addrEl, ", "))
	}

	website := ""
	if href, ok := card.Find("a.website, a.track-visit-website, a[class*='website']").First().Attr("href"); ok {
		if !strings.HasPrefix(href, "/") && !strings.Contains(href, "yellowpages.com") {
			website = href
		}
	}

	var categories []string
	card.Find("a[href*='/category/'], div.categories a, p.indicators a").Each(func(_ int, el *goquery.Selection) {
		t := strings.TrimSpace(el.Text())
		if t != "" && !strings.Contains(t, "Yellow Pages") {
			categories = append(categories, t)
		}
	})

	sourceURL := ""
	if href, ok := card.Find("h2.title a, h2.business-name a, a.business-name").First().Attr("href"); ok {
		sourceURL = absURL(yellowPagesBase, href)
	}
	if sourceURL == "" {
		if href, ok := card.Find("a[href*='/mip/']").First().Attr("href"); ok {
			sourceURL = absURL(yellowPagesBase, href)
		}
	}

	f := lead.Fields{
		"business_name": name,
		"phone":         phone,
		"address":       addr.Street,
		"city":          addr.City,
		"state":         addr.State,
		"zip_code":      addr.Zip,
		"website":       website,
		"category":      strings.Join(categories, ", "),
		"source_url":    sourceURL,
	}

	// YP shows "N Years in Business" badges rather than a founding year.
	if years, ok := firstInt(card.Find(".years-in-business .count, .yib").First().Text()); ok && years > 0 {
		f["year_established"] = time.Now().Year() - years
	}
	return f
}

var _ Scraper = (*YellowPages)(nil)
