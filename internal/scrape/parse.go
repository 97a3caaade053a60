package scrape

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	phonePattern = regexp.MustCompile(`\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}`)
	rankPrefix   = regexp.MustCompile(`^\d+\.\s*`)
	digitRun     = regexp.MustCompile(`\d+`)

	// "123 Main St, Springfield, IL 62704" with an optional zip.
	streetCityStateZip = regexp.MustCompile(`^(.+?),\s*(.+?),\s*([A-Z]{2})\s*(\d{5})?`)
	// "123 Main St Springfield, IL 62704" when the street/city comma is missing.
	streetStateZip = regexp.MustCompile(`^(.+?),?\s+([A-Z]{2})\s*(\d{5})?$`)
)

type postalAddress struct {
	Street string
	City   string
	State  string
	Zip    string
}

// splitAddress breaks a one-line US address into its parts. The city is left
// empty when the street/city boundary cannot be found.
func splitAddress(text string) postalAddress {
	text = strings.TrimSpace(text)
	if m := streetCityStateZip.FindStringSubmatch(text); m != nil {
		return postalAddress{
			Street: strings.TrimSpace(m[1]),
			City:   strings.TrimSpace(m[2]),
			State:  m[3],
			Zip:    m[4],
		}
	}
	if m := streetStateZip.FindStringSubmatch(text); m != nil {
		return postalAddress{
			Street: strings.TrimSpace(m[1]),
			State:  m[2],
			Zip:    m[3],
		}
	}
	return postalAddress{Street: text}
}

// listingName extracts and cleans a business name, dropping the "1." rank
// prefix search pages prepend.
func listingName(sel *goquery.Selection) string {
	name := strings.TrimSpace(sel.First().Text())
	name = rankPrefix.ReplaceAllString(name, "")
	return strings.TrimSpace(name)
}

// findPhone returns the first thing that looks like a US phone number in the
// card text.
func findPhone(text string) string {
	return phonePattern.FindString(text)
}

// joinedText renders a selection's text with a separator between child
// elements, the way address blocks are usually laid out.
func joinedText(sel *goquery.Selection, sep string) string {
	var parts []string
	sel.Contents().Each(func(_ int, c *goquery.Selection) {
		if t := strings.TrimSpace(c.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, sep)
}

// absURL resolves a possibly relative href against the directory's base URL.
func absURL(base, href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return base + href
}

func firstInt(text string) (int, bool) {
	m := digitRun.FindString(text)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}
