// Package export serializes leads into flat CSV or JSON rows with a stable
// snake_case column set.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/leadgrid/lead-engine/internal/lead"
)

// Columns is the export header, in emission order. New columns append at
// the end so downstream spreadsheets keep their positions.
var Columns = []string{
	"id",
	"business_name",
	"phone",
	"email",
	"website",
	"address",
	"city",
	"state",
	"zip_code",
	"category",
	"owner_name",
	"owner_title",
	"owner_email",
	"owner_phone",
	"owner_linkedin",
	"facebook_url",
	"instagram_url",
	"linkedin_url",
	"website_platform",
	"has_website",
	"google_rating",
	"google_review_count",
	"yelp_rating",
	"yelp_review_count",
	"bbb_rating",
	"tech_stack",
	"quality_score",
	"icp_score",
	"is_enriched",
	"source",
	"scraped_at",
}

// WriteCSV writes the leads as a CSV document with a header row.
func WriteCSV(w io.Writer, leads []*lead.Lead) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, l := range leads {
		if err := cw.Write(row(l)); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "export: flush")
	}
	return nil
}

// WriteJSON writes the leads as an array of objects keyed by Columns.
func WriteJSON(w io.Writer, leads []*lead.Lead) error {
	records := make([]map[string]string, 0, len(leads))
	for _, l := range leads {
		vals := row(l)
		rec := make(map[string]string, len(Columns))
		for i, col := range Columns {
			rec[col] = vals[i]
		}
		records = append(records, rec)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return eris.Wrap(err, "export: encode json")
	}
	return nil
}

func row(l *lead.Lead) []string {
	techStack := ""
	if len(l.TechStack) > 0 {
		if b, err := json.Marshal(l.TechStack); err == nil {
			techStack = string(b)
		}
	}
	return []string{
		strconv.FormatInt(l.ID, 10),
		l.BusinessName,
		l.Phone,
		l.Email,
		l.Website,
		l.Address,
		l.City,
		l.State,
		l.ZipCode,
		l.Category,
		l.OwnerName,
		l.OwnerTitle,
		l.OwnerEmail,
		l.OwnerPhone,
		l.OwnerLinkedin,
		l.FacebookURL,
		l.InstagramURL,
		l.LinkedinURL,
		l.WebsitePlatform,
		strconv.FormatBool(l.HasWebsite),
		formatFloat(l.GoogleRating),
		strconv.Itoa(l.GoogleReviewCount),
		formatFloat(l.YelpRating),
		strconv.Itoa(l.YelpReviewCount),
		l.BBBRating,
		techStack,
		strconv.Itoa(l.QualityScore),
		strconv.Itoa(l.ICPScore),
		strconv.FormatBool(l.IsEnriched),
		l.Source,
		l.ScrapedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

func formatFloat(f float64) string {
	if f == 0 {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
