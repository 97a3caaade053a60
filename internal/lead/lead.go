// Package lead defines the core types shared across subsystems.
package lead

import "time"

// Lead is the canonical record for one business entity. Identity fields are
// owned by the dedupe engine, scores by the scorer; nothing else mutates them.
type Lead struct {
	ID int64 `json:"id"`

	// Identity
	BusinessName string `json:"businessName"`
	Phone        string `json:"phone,omitempty"`
	Email        string `json:"email,omitempty"`
	Address      string `json:"address,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	ZipCode      string `json:"zipCode,omitempty"`
	Country      string `json:"country,omitempty"`

	Category   string `json:"category,omitempty"`
	Website    string `json:"website,omitempty"`
	HasWebsite bool   `json:"hasWebsite"`

	// Owner / decision maker
	OwnerName     string `json:"ownerName,omitempty"`
	OwnerTitle    string `json:"ownerTitle,omitempty"`
	OwnerEmail    string `json:"ownerEmail,omitempty"`
	OwnerPhone    string `json:"ownerPhone,omitempty"`
	OwnerLinkedin string `json:"ownerLinkedin,omitempty"`

	EmployeeCount   int `json:"employeeCount,omitempty"`
	YearEstablished int `json:"yearEstablished,omitempty"`

	// Social presence
	FacebookURL  string `json:"facebookUrl,omitempty"`
	InstagramURL string `json:"instagramUrl,omitempty"`
	TwitterURL   string `json:"twitterUrl,omitempty"`
	LinkedinURL  string `json:"linkedinUrl,omitempty"`
	YoutubeURL   string `json:"youtubeUrl,omitempty"`
	TiktokURL    string `json:"tiktokUrl,omitempty"`

	// Website technology
	TechStack       map[string]bool `json:"techStack,omitempty"`
	WebsitePlatform string          `json:"websitePlatform,omitempty"`
	HasSSL          bool            `json:"hasSsl"`
	MobileFriendly  bool            `json:"mobileFriendly"`

	// Reviews / reputation
	GoogleRating             float64 `json:"googleRating,omitempty"`
	GoogleReviewCount        int     `json:"googleReviewCount,omitempty"`
	YelpRating               float64 `json:"yelpRating,omitempty"`
	YelpReviewCount          int     `json:"yelpReviewCount,omitempty"`
	BBBRating                string  `json:"bbbRating,omitempty"`
	BBBAccredited            bool    `json:"bbbAccredited"`
	HasGoogleBusinessProfile bool    `json:"hasGoogleBusinessProfile"`

	// Ad intelligence
	RunsGoogleAds   bool `json:"runsGoogleAds"`
	RunsFacebookAds bool `json:"runsFacebookAds"`

	// Derived
	QualityScore     int    `json:"qualityScore"`
	ICPScore         int    `json:"icpScore"`
	IsEnriched       bool   `json:"isEnriched"`
	EnrichmentErrors string `json:"enrichmentErrors,omitempty"`

	// Provenance
	Source    string `json:"source,omitempty"`
	SourceURL string `json:"sourceUrl,omitempty"`

	ScrapedAt      time.Time  `json:"scrapedAt"`
	EnrichedAt     *time.Time `json:"enrichedAt,omitempty"`
	LastEnrichedAt *time.Time `json:"lastEnrichedAt,omitempty"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// ScrapeJobStatus is the lifecycle state of a persisted scrape job row.
type ScrapeJobStatus string

// Scrape job statuses persisted in scrape_jobs.status.
const (
	ScrapeJobRunning   ScrapeJobStatus = "running"
	ScrapeJobCompleted ScrapeJobStatus = "completed"
	ScrapeJobFailed    ScrapeJobStatus = "failed"
)

// ScrapeJob records one source/category/location invocation. Terminal rows
// are historical and never mutated again.
type ScrapeJob struct {
	ID              int64           `json:"id"`
	Source          string          `json:"source"`
	Category        string          `json:"category"`
	Location        string          `json:"location"`
	Status          ScrapeJobStatus `json:"status"`
	LeadsFound      int             `json:"leadsFound"`
	LeadsNew        int             `json:"leadsNew"`
	LeadsUpdated    int             `json:"leadsUpdated"`
	LeadsSkipped    int             `json:"leadsSkipped"`
	Errors          string          `json:"errors,omitempty"`
	DurationSeconds float64         `json:"durationSeconds"`
	StartedAt       time.Time       `json:"startedAt"`
	CompletedAt     *time.Time      `json:"completedAt,omitempty"`
}

// EnrichmentResult is the transient outcome of one enricher run. It is
// consumed by the orchestrator merge step and discarded.
type EnrichmentResult struct {
	Module string
	OK     bool
	Fields Fields
	Err    error
}
