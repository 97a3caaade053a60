package scrape

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadgrid/lead-engine/internal/lead"
)

const bbbBase = "https://www.bbb.org"

var (
	bbbGrade    = regexp.MustCompile(`[A-F][+-]?`)
	bbbStateZip = regexp.MustCompile(`^([A-Z]{2})\s*(\d{5})?`)
)

// BBB scrapes business listings from bbb.org search pages. BBB is the only
// source that carries letter-grade ratings and accreditation seals.
type BBB struct {
	http   Fetcher
	logger *zap.Logger
}

func NewBBB(http Fetcher, logger *zap.Logger) *BBB {
	return &BBB{http: http, logger: logger.Named("bbb")}
}

func (s *BBB) Source() string { return "bbb" }

func (s *BBB) Search(ctx context.Context, category, location string, maxPages int, emit func(lead.Fields)) error {
	for page := 1; page <= maxPages; page++ {
		params := url.Values{
			"find_country": {"US"},
			"find_text":    {category},
			"find_loc":     {location},
			"page":         {strconv.Itoa(page)},
		}
		resp, err := s.http.Get(ctx, bbbBase+"/search?"+params.Encode())
		if err != nil {
			return eris.Wrapf(err, "bbb: fetch page %d", page)
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
		if err != nil {
			return eris.Wrapf(err, "bbb: parse page %d", page)
		}

		cards := doc.Find("div.result-item, li.result-item, div[data-testid='result']")
		if cards.Length() == 0 {
			cards = doc.Find("a[class*='result'], div[class*='search-result']")
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

func (s *BBB) parseListing(card *goquery.Selection) lead.Fields {
	nameEl := card.Find("h3 a, .result-name a, a[class*='business-name']")
	if nameEl.Length() == 0 {
		nameEl = card.Find("h3, .bds-h4, [class*='name']")
	}
	name := listingName(nameEl)
	if name == "" {
		return nil
	}

	phone := ""
	phoneEl := card.Find("a[href^='tel:'], .result-phone, [class*='phone']").First()
	if phoneEl.Length() > 0 {
		phone = strings.TrimSpace(phoneEl.Text())
		if phone == "" {
			if href, ok := phoneEl.Attr("href"); ok {
				phone = strings.TrimPrefix(href, "tel:")
			}
		}
	}

	// BBB address blocks are comma separated: street, city, "ST 12345".
	var addr postalAddress
	addrEl := card.Find(".result-address, address, [class*='address']").First()
	if addrEl.Length() > 0 {
		parts := strings.Split(joinedText(addrEl, " "), ",")
		if len(parts) >= 2 {
			addr.Street = strings.TrimSpace(parts[0])
			addr.City = strings.TrimSpace(parts[1])
			if len(parts) > 2 {
				if m := bbbStateZip.FindStringSubmatch(strings.TrimSpace(parts[2])); m != nil {
					addr.State = m[1]
					addr.Zip = m[2]
				}
			}
		}
	}

	rating := ""
	if ratingEl := card.Find(".result-rating, [class*='rating'], .bds-rating").First(); ratingEl.Length() > 0 {
		rating = bbbGrade.FindString(ratingEl.Text())
	}
	accredited := card.Find("[class*='accredited'], .ab-seal").Length() > 0

	website := ""
	if href, ok := card.Find("a[href*='http']:not([href*='bbb.org'])").First().Attr("href"); ok {
		website = href
	}

	sourceURL := ""
	if href, ok := card.Find("h3 a, .result-name a").First().Attr("href"); ok {
		sourceURL = absURL(bbbBase, href)
	}

	return lead.Fields{
		"business_name":  name,
		"phone":          phone,
		"address":        addr.Street,
		"city":           addr.City,
		"state":          addr.State,
		"zip_code":       addr.Zip,
		"website":        website,
		"category":       strings.TrimSpace(card.Find(".result-category, [class*='category']").First().Text()),
		"bbb_rating":     rating,
		"bbb_accredited": accredited,
		"source_url":     sourceURL,
	}
}

var _ Scraper = (*BBB)(nil)
