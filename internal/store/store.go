// Package store defines interfaces for lead and scrape-job persistence.
// Implementations live in subpackages; this package must not import database
// drivers or concrete clients.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/leadgrid/lead-engine/internal/lead"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// LeadFilter narrows List results. Zero values mean "any".
type LeadFilter struct {
	State      string
	City       string
	Category   string
	Source     string
	MinQuality int
	MinICP     int
	Enriched   *bool
	Limit      int
	Offset     int
}

// StateCount is one row of the per-state rollup.
type StateCount struct {
	State string `json:"state"`
	Count int    `json:"count"`
}

// CategoryCount is one row of the per-category rollup.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Stats summarizes the lead table.
type Stats struct {
	TotalLeads      int             `json:"totalLeads"`
	EnrichedLeads   int             `json:"enrichedLeads"`
	UnenrichedLeads int             `json:"unenrichedLeads"`
	AvgQualityScore float64         `json:"avgQualityScore"`
	TopStates       []StateCount    `json:"topStates"`
	TopCategories   []CategoryCount `json:"topCategories"`
}

// LeadStore persists canonical lead records. The FindBy lookups return
// ErrNotFound when no row matches; FindByNameAddress compares name, address
// and city case-insensitively, state exactly.
type LeadStore interface {
	Insert(ctx context.Context, l *lead.Lead) error
	Update(ctx context.Context, l *lead.Lead) error
	Get(ctx context.Context, id int64) (*lead.Lead, error)
	Delete(ctx context.Context, ids []int64) (int, error)

	FindByPhone(ctx context.Context, phone string) (*lead.Lead, error)
	FindByEmail(ctx context.Context, email string) (*lead.Lead, error)
	FindByNameAddress(ctx context.Context, name, address, city, state string) (*lead.Lead, error)

	List(ctx context.Context, f LeadFilter) ([]*lead.Lead, error)
	ListUnenriched(ctx context.Context, limit int) ([]*lead.Lead, error)
	ListEnrichedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*lead.Lead, error)
	ByIDs(ctx context.Context, ids []int64) ([]*lead.Lead, error)

	Count(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*Stats, error)
}

// JobStore persists scrape job history rows.
type JobStore interface {
	CreateScrapeJob(ctx context.Context, j *lead.ScrapeJob) error
	FinishScrapeJob(ctx context.Context, j *lead.ScrapeJob) error
	ListScrapeJobs(ctx context.Context, limit int) ([]*lead.ScrapeJob, error)
}

// Store is the full persistence surface the engine wires together.
type Store interface {
	LeadStore
	JobStore
}
