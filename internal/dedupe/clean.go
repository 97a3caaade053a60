package dedupe

import "github.com/leadgrid/lead-engine/internal/lead"

// Clean normalizes a raw scraped field map. It returns false when the lead
// fails minimum quality: no usable name, a CLOSED marker, or a location
// outside the US.
func Clean(raw lead.Fields) (lead.Fields, bool) {
	name := CleanText(stringField(raw, "business_name"))
	if name == "" || isClosed(name) {
		return nil, false
	}
	state := NormalizeState(stringField(raw, "state"))
	if !validUSState(state) {
		return nil, false
	}

	// Optional fields pass through untouched; only the identity and contact
	// fields get rewritten.
	out := make(lead.Fields, len(raw)+2)
	for k, v := range raw {
		out[k] = v
	}

	out["business_name"] = name
	out["phone"] = NormalizePhone(stringField(raw, "phone"))
	out["email"] = NormalizeEmail(stringField(raw, "email"))

	website := NormalizeURL(stringField(raw, "website"))
	out["website"] = website
	out["has_website"] = website != ""

	out["address"] = CleanText(stringField(raw, "address"))
	out["city"] = CleanText(stringField(raw, "city"))
	out["state"] = state
	out["zip_code"] = NormalizeZip(stringField(raw, "zip_code"))
	out["country"] = "US"
	out["category"] = CleanText(stringField(raw, "category"))

	return out, true
}

func stringField(f lead.Fields, key string) string {
	s, _ := f[key].(string)
	return s
}
