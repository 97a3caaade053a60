// Package dedupe cleans raw scraped fields and folds them into canonical
// lead records without creating duplicates.
package dedupe

import (
	"regexp"
	"strings"
)

// usStates is the set of valid two-letter codes, including DC.
var usStates = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true,
	"CO": true, "CT": true, "DE": true, "FL": true, "GA": true,
	"HI": true, "ID": true, "IL": true, "IN": true, "IA": true,
	"KS": true, "KY": true, "LA": true, "ME": true, "MD": true,
	"MA": true, "MI": true, "MN": true, "MS": true, "MO": true,
	"MT": true, "NE": true, "NV": true, "NH": true, "NJ": true,
	"NM": true, "NY": true, "NC": true, "ND": true, "OH": true,
	"OK": true, "OR": true, "PA": true, "RI": true, "SC": true,
	"SD": true, "TN": true, "TX": true, "UT": true, "VT": true,
	"VA": true, "WA": true, "WV": true, "WI": true, "WY": true,
	"DC": true,
}

var stateAbbrev = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR",
	"california": "CA", "colorado": "CO", "connecticut": "CT", "delaware": "DE",
	"florida": "FL", "georgia": "GA", "hawaii": "HI", "idaho": "ID",
	"illinois": "IL", "indiana": "IN", "iowa": "IA", "kansas": "KS",
	"kentucky": "KY", "louisiana": "LA", "maine": "ME", "maryland": "MD",
	"massachusetts": "MA", "michigan": "MI", "minnesota": "MN",
	"mississippi": "MS", "missouri": "MO", "montana": "MT", "nebraska": "NE",
	"nevada": "NV", "new hampshire": "NH", "new jersey": "NJ",
	"new mexico": "NM", "new york": "NY", "north carolina": "NC",
	"north dakota": "ND", "ohio": "OH", "oklahoma": "OK", "oregon": "OR",
	"pennsylvania": "PA", "rhode island": "RI", "south carolina": "SC",
	"south dakota": "SD", "tennessee": "TN", "texas": "TX", "utah": "UT",
	"vermont": "VT", "virginia": "VA", "washington": "WA",
	"west virginia": "WV", "wisconsin": "WI", "wyoming": "WY",
	"district of columbia": "DC",
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	nonDigits     = regexp.MustCompile(`\D`)
	closedMarker  = regexp.MustCompile(`(?i)\bCLOSED\b`)
	emailPattern  = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	urlPattern    = regexp.MustCompile(`^https?://[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
)

// CleanText collapses runs of whitespace and trims the result.
func CleanText(text string) string {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(text), " ")
}

// NormalizePhone converts a US phone number to E.164, tolerating any
// formatting. Returns "" when the digits don't form a ten-digit US number.
func NormalizePhone(phone string) string {
	digits := nonDigits.ReplaceAllString(phone, "")
	switch {
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits
	}
	return ""
}

// NormalizeEmail lowercases and validates an email address. Returns "" when
// it doesn't look like one.
func NormalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if emailPattern.MatchString(email) {
		return email
	}
	return ""
}

// NormalizeURL prepends https:// to scheme-less URLs and rejects anything
// that still doesn't parse as a web address.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	if urlPattern.MatchString(raw) {
		return raw
	}
	return ""
}

// NormalizeState maps a state name or code to its two-letter abbreviation.
// Unrecognized values come back empty.
func NormalizeState(state string) string {
	state = strings.TrimSpace(state)
	if len(state) == 2 {
		return strings.ToUpper(state)
	}
	return stateAbbrev[strings.ToLower(state)]
}

// NormalizeZip reduces a zip code to its five-digit form.
func NormalizeZip(zip string) string {
	digits := nonDigits.ReplaceAllString(zip, "")
	if len(digits) >= 5 {
		return digits[:5]
	}
	return ""
}

// isClosed reports whether a listing name marks a shut-down business.
func isClosed(name string) bool {
	return closedMarker.MatchString(name)
}

// validUSState reports whether a normalized state code is a real US state.
// An empty state passes: many listings omit it.
func validUSState(state string) bool {
	return state == "" || usStates[state]
}
