// Package scrape turns search result pages from public business
// directories into raw lead field maps.
package scrape

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/leadgrid/lead-engine/internal/fetch"
	"github.com/leadgrid/lead-engine/internal/lead"
)

// ErrUnknownSource is returned by Registry.Get for a name nobody registered.
var ErrUnknownSource = errors.New("unknown scrape source")

// Fetcher is the slice of fetch.Client the scrapers need. Tests swap in a
// fake that serves canned HTML.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*fetch.Response, error)
}

// Scraper searches one directory for businesses matching a category and a
// location. Implementations emit one raw field map per listing, in page
// order, and stop early when a page yields no listings. A fetch failure
// aborts the whole invocation; a single listing that cannot be parsed is
// skipped.
type Scraper interface {
	Source() string
	Search(ctx context.Context, category, location string, maxPages int, emit func(lead.Fields)) error
}

// Registry maps source names to scrapers.
type Registry struct {
	mu       sync.RWMutex
	scrapers map[string]Scraper
}

func NewRegistry(scrapers ...Scraper) *Registry {
	r := &Registry{scrapers: make(map[string]Scraper, len(scrapers))}
	for _, s := range scrapers {
		r.Register(s)
	}
	return r
}

// Register adds or replaces the scraper for its source name.
func (r *Registry) Register(s Scraper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scrapers[strings.ToLower(s.Source())] = s
}

// Get looks a scraper up by name, case-insensitively.
func (r *Registry) Get(name string) (Scraper, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scrapers[strings.ToLower(name)]
	if !ok {
		return nil, ErrUnknownSource
	}
	return s, nil
}

// Sources returns the registered source names, sorted.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.scrapers))
	for name := range r.scrapers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
