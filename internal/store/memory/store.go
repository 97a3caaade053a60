// Package memory provides an in-memory Store for development and testing.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/leadgrid/lead-engine/internal/lead"
	"github.com/leadgrid/lead-engine/internal/store"
)

// Store keeps everything in maps guarded by one RWMutex. Lookups return
// copies so callers can mutate results without racing the store.
type Store struct {
	mu         sync.RWMutex
	leads      map[int64]*lead.Lead
	jobs       map[int64]*lead.ScrapeJob
	nextLeadID int64
	nextJobID  int64
}

func New() *Store {
	return &Store{
		leads: make(map[int64]*lead.Lead),
		jobs:  make(map[int64]*lead.ScrapeJob),
	}
}

func cloneLead(l *lead.Lead) *lead.Lead {
	c := *l
	if l.TechStack != nil {
		c.TechStack = make(map[string]bool, len(l.TechStack))
		for k, v := range l.TechStack {
			c.TechStack[k] = v
		}
	}
	return &c
}

func (s *Store) Insert(_ context.Context, l *lead.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLeadID++
	l.ID = s.nextLeadID
	s.leads[l.ID] = cloneLead(l)
	return nil
}

func (s *Store) Update(_ context.Context, l *lead.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leads[l.ID]; !ok {
		return store.ErrNotFound
	}
	s.leads[l.ID] = cloneLead(l)
	return nil
}

func (s *Store) Get(_ context.Context, id int64) (*lead.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leads[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneLead(l), nil
}

func (s *Store) Delete(_ context.Context, ids []int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for _, id := range ids {
		if _, ok := s.leads[id]; ok {
			delete(s.leads, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) FindByPhone(_ context.Context, phone string) (*lead.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findFirst(func(l *lead.Lead) bool { return l.Phone == phone })
}

func (s *Store) FindByEmail(_ context.Context, email string) (*lead.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findFirst(func(l *lead.Lead) bool { return l.Email == email })
}

func (s *Store) FindByNameAddress(_ context.Context, name, address, city, state string) (*lead.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findFirst(func(l *lead.Lead) bool {
		return strings.EqualFold(l.BusinessName, name) &&
			strings.EqualFold(l.Address, address) &&
			strings.EqualFold(l.City, city) &&
			l.State == strings.ToUpper(state)
	})
}

// findFirst scans in ID order so duplicate matches resolve to the oldest row.
// Callers hold at least a read lock.
func (s *Store) findFirst(match func(*lead.Lead) bool) (*lead.Lead, error) {
	ids := make([]int64, 0, len(s.leads))
	for id := range s.leads {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if match(s.leads[id]) {
			return cloneLead(s.leads[id]), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) List(_ context.Context, f store.LeadFilter) ([]*lead.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*lead.Lead
	for _, l := range s.leads {
		if f.State != "" && l.State != strings.ToUpper(f.State) {
			continue
		}
		if f.City != "" && !strings.EqualFold(l.City, f.City) {
			continue
		}
		if f.Category != "" && !strings.EqualFold(l.Category, f.Category) {
			continue
		}
		if f.Source != "" && l.Source != f.Source {
			continue
		}
		if f.MinQuality > 0 && l.QualityScore < f.MinQuality {
			continue
		}
		if f.MinICP > 0 && l.ICPScore < f.MinICP {
			continue
		}
		if f.Enriched != nil && l.IsEnriched != *f.Enriched {
			continue
		}
		out = append(out, cloneLead(l))
	}
	// Newest first, matching the scraped_at DESC ordering of the SQL store.
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) ListUnenriched(ctx context.Context, limit int) ([]*lead.Lead, error) {
	enriched := false
	return s.List(ctx, store.LeadFilter{Enriched: &enriched, Limit: limit})
}

func (s *Store) ListEnrichedBefore(_ context.Context, cutoff time.Time, limit int) ([]*lead.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*lead.Lead
	for _, l := range s.leads {
		if !l.IsEnriched || l.LastEnrichedAt == nil || !l.LastEnrichedAt.Before(cutoff) {
			continue
		}
		out = append(out, cloneLead(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastEnrichedAt.Before(*out[j].LastEnrichedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ByIDs(_ context.Context, ids []int64) ([]*lead.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*lead.Lead
	for _, id := range ids {
		if l, ok := s.leads[id]; ok {
			out = append(out, cloneLead(l))
		}
	}
	return out, nil
}

func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.leads), nil
}

func (s *Store) Stats(_ context.Context) (*store.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &store.Stats{TotalLeads: len(s.leads)}
	byState := make(map[string]int)
	byCategory := make(map[string]int)
	totalQuality := 0
	for _, l := range s.leads {
		if l.IsEnriched {
			stats.EnrichedLeads++
		}
		if l.State != "" {
			byState[l.State]++
		}
		if l.Category != "" {
			byCategory[l.Category]++
		}
		totalQuality += l.QualityScore
	}
	stats.UnenrichedLeads = stats.TotalLeads - stats.EnrichedLeads
	if stats.TotalLeads > 0 {
		stats.AvgQualityScore = float64(totalQuality) / float64(stats.TotalLeads)
	}
	for state, count := range byState {
		stats.TopStates = append(stats.TopStates, store.StateCount{State: state, Count: count})
	}
	sort.Slice(stats.TopStates, func(i, j int) bool {
		if stats.TopStates[i].Count != stats.TopStates[j].Count {
			return stats.TopStates[i].Count > stats.TopStates[j].Count
		}
		return stats.TopStates[i].State < stats.TopStates[j].State
	})
	if len(stats.TopStates) > 10 {
		stats.TopStates = stats.TopStates[:10]
	}
	for category, count := range byCategory {
		stats.TopCategories = append(stats.TopCategories, store.CategoryCount{Category: category, Count: count})
	}
	sort.Slice(stats.TopCategories, func(i, j int) bool {
		if stats.TopCategories[i].Count != stats.TopCategories[j].Count {
			return stats.TopCategories[i].Count > stats.TopCategories[j].Count
		}
		return stats.TopCategories[i].Category < stats.TopCategories[j].Category
	})
	if len(stats.TopCategories) > 10 {
		stats.TopCategories = stats.TopCategories[:10]
	}
	return stats, nil
}

func (s *Store) CreateScrapeJob(_ context.Context, j *lead.ScrapeJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextJobID++
	j.ID = s.nextJobID
	row := *j
	s.jobs[j.ID] = &row
	return nil
}

func (s *Store) FinishScrapeJob(_ context.Context, j *lead.ScrapeJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ID]; !ok {
		return store.ErrNotFound
	}
	row := *j
	s.jobs[j.ID] = &row
	return nil
}

func (s *Store) ListScrapeJobs(_ context.Context, limit int) ([]*lead.ScrapeJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*lead.ScrapeJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		row := *j
		out = append(out, &row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ store.Store = (*Store)(nil)
