package lead

// Fields is a partial lead keyed by the snake_case names the scrapers and
// enrichers produce. Mapping snake_case keys onto Lead struct fields happens
// here and nowhere else.
type Fields map[string]any

// ApplyAdditive sets only fields that are currently empty on the lead.
// Scrape-stage merges use this policy: existing data is never regressed.
func (l *Lead) ApplyAdditive(f Fields) {
	l.apply(f, false)
}

// ApplyReplace overwrites fields whenever the incoming value is non-empty.
// Enrichment-stage merges use this policy so re-runs refresh stale data.
func (l *Lead) ApplyReplace(f Fields) {
	l.apply(f, true)
}

func (l *Lead) apply(f Fields, overwrite bool) {
	setStr := func(dst *string, v any) {
		s, ok := v.(string)
		if !ok || s == "" {
			return
		}
		if *dst == "" || overwrite {
			*dst = s
		}
	}
	setInt := func(dst *int, v any) {
		n := toInt(v)
		if n == 0 {
			return
		}
		if *dst == 0 || overwrite {
			*dst = n
		}
	}
	setFloat := func(dst *float64, v any) {
		n := toFloat64(v)
		if n == 0 {
			return
		}
		if *dst == 0 || overwrite {
			*dst = n
		}
	}
	// A false bool carries no signal in either policy: merges are additive
	// for flags, so a populated true is never cleared by a miss.
	setBool := func(dst *bool, v any) {
		if b, ok := v.(bool); ok && b {
			*dst = true
		}
	}

	for key, v := range f {
		if v == nil {
			continue
		}
		switch key {
		case "business_name":
			setStr(&l.BusinessName, v)
		case "phone":
			setStr(&l.Phone, v)
		case "email":
			setStr(&l.Email, v)
		case "website":
			setStr(&l.Website, v)
		case "has_website":
			setBool(&l.HasWebsite, v)
		case "address":
			setStr(&l.Address, v)
		case "city":
			setStr(&l.City, v)
		case "state":
			setStr(&l.State, v)
		case "zip_code":
			setStr(&l.ZipCode, v)
		case "country":
			setStr(&l.Country, v)
		case "category":
			setStr(&l.Category, v)
		case "source":
			setStr(&l.Source, v)
		case "source_url":
			setStr(&l.SourceURL, v)
		case "owner_name":
			setStr(&l.OwnerName, v)
		case "owner_title":
			setStr(&l.OwnerTitle, v)
		case "owner_email":
			setStr(&l.OwnerEmail, v)
		case "owner_phone":
			setStr(&l.OwnerPhone, v)
		case "owner_linkedin":
			setStr(&l.OwnerLinkedin, v)
		case "employee_count":
			setInt(&l.EmployeeCount, v)
		case "year_established":
			setInt(&l.YearEstablished, v)
		case "facebook_url":
			setStr(&l.FacebookURL, v)
		case "instagram_url":
			setStr(&l.InstagramURL, v)
		case "twitter_url":
			setStr(&l.TwitterURL, v)
		case "linkedin_url":
			setStr(&l.LinkedinURL, v)
		case "youtube_url":
			setStr(&l.YoutubeURL, v)
		case "tiktok_url":
			setStr(&l.TiktokURL, v)
		case "tech_stack":
			if m, ok := v.(map[string]bool); ok && len(m) > 0 {
				if l.TechStack == nil {
					l.TechStack = make(map[string]bool, len(m))
				}
				for tech, present := range m {
					if present {
						l.TechStack[tech] = true
					}
				}
			}
		case "website_platform":
			setStr(&l.WebsitePlatform, v)
		case "has_ssl":
			setBool(&l.HasSSL, v)
		case "mobile_friendly":
			setBool(&l.MobileFriendly, v)
		case "google_rating":
			setFloat(&l.GoogleRating, v)
		case "google_review_count":
			setInt(&l.GoogleReviewCount, v)
		case "yelp_rating":
			setFloat(&l.YelpRating, v)
		case "yelp_review_count":
			setInt(&l.YelpReviewCount, v)
		case "bbb_rating":
			setStr(&l.BBBRating, v)
		case "bbb_accredited":
			setBool(&l.BBBAccredited, v)
		case "has_google_business_profile":
			setBool(&l.HasGoogleBusinessProfile, v)
		case "runs_google_ads":
			setBool(&l.RunsGoogleAds, v)
		case "runs_facebook_ads":
			setBool(&l.RunsFacebookAds, v)
		}
	}
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	default:
		return 0
	}
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
