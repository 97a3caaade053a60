package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/leadgrid/lead-engine/internal/lead"
)

// aboutPaths are the usual homes of team and owner information, tried in
// order until one names a decision maker.
var aboutPaths = []string{
	"/about", "/about-us", "/about-me", "/our-team", "/team",
	"/staff", "/leadership", "/management", "/contact",
	"/contact-us", "/our-story",
}

const decisionMakerTitles = `owner|founder|co-founder|ceo|president|director|manager|principal|partner|proprietor|chief`

var (
	emailInText = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

	// "John Smith, Owner" / "Owner: John Smith" / "Meet our Owner John Smith"
	nameThenTitle = regexp.MustCompile(`([A-Z][a-z]+ [A-Z][a-z]+)\s*[,\-]\s*(?i:(` + decisionMakerTitles + `))`)
	titleThenName = regexp.MustCompile(`(?i:(` + decisionMakerTitles + `))\s*[:\-]\s*([A-Z][a-z]+ [A-Z][a-z]+)`)
	meetOurTitle  = regexp.MustCompile(`(?i:(?:meet\s+(?:our\s+)?|about\s+)(` + decisionMakerTitles + `))\s+([A-Z][a-z]+ [A-Z][a-z]+)`)

	// Mailbox hosts and prefixes that are never a person.
	junkEmailParts = []string{
		"noreply", "no-reply", "donotreply", "example.com",
		"sentry.io", "wixpress", "wordpress", "squarespace",
	}
	sharedMailboxes = []string{"info", "contact", "support", "hello", "admin", "sales"}
)

// Contact hunts for the owner or another decision maker: name, title, email
// and LinkedIn profile, from the homepage and the usual about pages.
type Contact struct {
	http   Fetcher
	logger *zap.Logger
}

func NewContact(http Fetcher, logger *zap.Logger) *Contact {
	return &Contact{http: http, logger: logger.Named("contact")}
}

func (c *Contact) Module() string { return "contact_enrichment" }

func (c *Contact) Enrich(ctx context.Context, l *lead.Lead) (lead.Fields, error) {
	if l.Website == "" {
		return nil, nil
	}

	f := lead.Fields{}
	var homepage *goquery.Document

	resp, err := c.http.Get(ctx, l.Website)
	if err == nil {
		homepage, err = goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	}
	if err != nil {
		c.logger.Debug("homepage unavailable", zap.String("website", l.Website), zap.Error(err))
	}
	if homepage != nil {
		mergeFields(f, extractEmails(homepage, l.Email))
		mergeFields(f, extractOwner(homepage))
	}

	// No owner on the homepage: walk the about pages until one names someone.
	if f["owner_name"] == nil {
		for _, path := range aboutPaths {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			resp, err := c.http.Get(ctx, strings.TrimRight(l.Website, "/")+path)
			if err != nil {
				continue
			}
			doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
			if err != nil {
				continue
			}
			owner := extractOwner(doc)
			if owner["owner_name"] != nil {
				mergeFields(f, owner)
				mergeFields(f, extractEmails(doc, l.Email))
				break
			}
		}
	}

	if f["owner_name"] != nil && f["owner_linkedin"] == nil && homepage != nil {
		if profile := findPersonalLinkedin(homepage); profile != "" {
			f["owner_linkedin"] = profile
		}
	}
	return f, nil
}

// extractEmails classifies the addresses on a page into a shared business
// mailbox and a personal one. The business mailbox only fills an empty email
// field; a personal address always becomes the owner email candidate.
func extractEmails(doc *goquery.Document, existingEmail string) lead.Fields {
	emails := emailInText.FindAllString(doc.Text(), -1)
	doc.Find(`a[href^="mailto:"]`).Each(func(_ int, el *goquery.Selection) {
		href, _ := el.Attr("href")
		addr, _, _ := strings.Cut(strings.TrimPrefix(href, "mailto:"), "?")
		addr = strings.TrimSpace(addr)
		if addr != "" && !contains(emails, addr) {
			emails = append(emails, addr)
		}
	})

	var filtered []string
	for _, e := range emails {
		if !isExcluded(junkEmailParts, e) {
			filtered = append(filtered, e)
		}
	}
	if len(filtered) == 0 {
		return nil
	}

	f := lead.Fields{}
	var businessEmail, ownerEmail string
	for _, email := range filtered {
		local, _, _ := strings.Cut(strings.ToLower(email), "@")
		switch {
		case local == "info" || local == "contact" || local == "hello" || local == "support":
			businessEmail = email
		case !isExcluded(sharedMailboxes, local):
			ownerEmail = email
		}
	}
	if existingEmail == "" && businessEmail != "" {
		f["email"] = businessEmail
	}
	if ownerEmail != "" {
		f["owner_email"] = ownerEmail
	} else {
		f["owner_email"] = filtered[0]
	}
	return f
}

// extractOwner scans page text for name/title pairs, then falls back to
// schema.org founder or employee entries.
func extractOwner(doc *goquery.Document) lead.Fields {
	text := doc.Text()

	if m := nameThenTitle.FindStringSubmatch(text); m != nil {
		return lead.Fields{"owner_name": m[1], "owner_title": titleCase(m[2])}
	}
	if m := titleThenName.FindStringSubmatch(text); m != nil {
		return lead.Fields{"owner_name": m[2], "owner_title": titleCase(m[1])}
	}
	if m := meetOurTitle.FindStringSubmatch(text); m != nil {
		return lead.Fields{"owner_name": m[2], "owner_title": titleCase(m[1])}
	}

	f := lead.Fields{}
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		var data map[string]any
		if err := json.Unmarshal([]byte(el.Text()), &data); err != nil {
			return true
		}
		person := data["founder"]
		if person == nil {
			person = data["employee"]
		}
		if list, ok := person.([]any); ok && len(list) > 0 {
			person = list[0]
		}
		obj, ok := person.(map[string]any)
		if !ok {
			return true
		}
		name, _ := obj["name"].(string)
		if name == "" {
			return true
		}
		f["owner_name"] = name
		if title, _ := obj["jobTitle"].(string); title != "" {
			f["owner_title"] = title
		} else {
			f["owner_title"] = "Owner"
		}
		return false
	})
	return f
}

func findPersonalLinkedin(doc *goquery.Document) string {
	profile := ""
	doc.Find(`a[href*="linkedin.com/in/"]`).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		href, _ := el.Attr("href")
		if strings.Contains(href, "/in/") && !strings.Contains(href, "company") {
			profile = strings.TrimRight(href, "/")
			return false
		}
		return true
	})
	return profile
}

func mergeFields(dst, src lead.Fields) {
	for k, v := range src {
		if dst[k] == nil {
			dst[k] = v
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

var _ Enricher = (*Contact)(nil)
