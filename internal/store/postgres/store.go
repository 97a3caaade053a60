// Package postgres provides the Postgres-backed store implementation.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/leadgrid/lead-engine/internal/lead"
	"github.com/leadgrid/lead-engine/internal/store"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type db interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store persists leads and scrape jobs in Postgres.
type Store struct {
	pool db
}

var _ store.Store = (*Store)(nil)

// New creates a Store connected per the config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, eris.New("postgres: db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse dsn")
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool db) (*Store, error) {
	if pool == nil {
		return nil, eris.New("postgres: pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// leadColumns is the scan order used by every lead query.
const leadColumns = `id, business_name, phone, email, address, city, state, zip_code, country,
category, website, has_website,
owner_name, owner_title, owner_email, owner_phone, owner_linkedin,
employee_count, year_established,
facebook_url, instagram_url, twitter_url, linkedin_url, youtube_url, tiktok_url,
tech_stack, website_platform, has_ssl, mobile_friendly,
google_rating, google_review_count, yelp_rating, yelp_review_count,
bbb_rating, bbb_accredited, has_google_business_profile,
runs_google_ads, runs_facebook_ads,
quality_score, icp_score, is_enriched, enrichment_errors,
source, source_url, scraped_at, enriched_at, last_enriched_at, updated_at`

func scanLead(row pgx.Row) (*lead.Lead, error) {
	var (
		l         lead.Lead
		techStack []byte
	)
	err := row.Scan(
		&l.ID, &l.BusinessName, &l.Phone, &l.Email, &l.Address, &l.City, &l.State, &l.ZipCode, &l.Country,
		&l.Category, &l.Website, &l.HasWebsite,
		&l.OwnerName, &l.OwnerTitle, &l.OwnerEmail, &l.OwnerPhone, &l.OwnerLinkedin,
		&l.EmployeeCount, &l.YearEstablished,
		&l.FacebookURL, &l.InstagramURL, &l.TwitterURL, &l.LinkedinURL, &l.YoutubeURL, &l.TiktokURL,
		&techStack, &l.WebsitePlatform, &l.HasSSL, &l.MobileFriendly,
		&l.GoogleRating, &l.GoogleReviewCount, &l.YelpRating, &l.YelpReviewCount,
		&l.BBBRating, &l.BBBAccredited, &l.HasGoogleBusinessProfile,
		&l.RunsGoogleAds, &l.RunsFacebookAds,
		&l.QualityScore, &l.ICPScore, &l.IsEnriched, &l.EnrichmentErrors,
		&l.Source, &l.SourceURL, &l.ScrapedAt, &l.EnrichedAt, &l.LastEnrichedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(techStack) > 0 {
		if err := json.Unmarshal(techStack, &l.TechStack); err != nil {
			return nil, eris.Wrap(err, "postgres: decode tech_stack")
		}
	}
	return &l, nil
}

func leadArgs(l *lead.Lead) ([]any, error) {
	var techStack []byte
	if len(l.TechStack) > 0 {
		b, err := json.Marshal(l.TechStack)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: encode tech_stack")
		}
		techStack = b
	}
	return []any{
		l.BusinessName, l.Phone, l.Email, l.Address, l.City, l.State, l.ZipCode, l.Country,
		l.Category, l.Website, l.HasWebsite,
		l.OwnerName, l.OwnerTitle, l.OwnerEmail, l.OwnerPhone, l.OwnerLinkedin,
		l.EmployeeCount, l.YearEstablished,
		l.FacebookURL, l.InstagramURL, l.TwitterURL, l.LinkedinURL, l.YoutubeURL, l.TiktokURL,
		techStack, l.WebsitePlatform, l.HasSSL, l.MobileFriendly,
		l.GoogleRating, l.GoogleReviewCount, l.YelpRating, l.YelpReviewCount,
		l.BBBRating, l.BBBAccredited, l.HasGoogleBusinessProfile,
		l.RunsGoogleAds, l.RunsFacebookAds,
		l.QualityScore, l.ICPScore, l.IsEnriched, l.EnrichmentErrors,
		l.Source, l.SourceURL, l.ScrapedAt, l.EnrichedAt, l.LastEnrichedAt, l.UpdatedAt,
	}, nil
}

// placeholders returns "$1,$2,...,$n".
func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(parts, ",")
}

const insertColumns = `business_name, phone, email, address, city, state, zip_code, country,
category, website, has_website,
owner_name, owner_title, owner_email, owner_phone, owner_linkedin,
employee_count, year_established,
facebook_url, instagram_url, twitter_url, linkedin_url, youtube_url, tiktok_url,
tech_stack, website_platform, has_ssl, mobile_friendly,
google_rating, google_review_count, yelp_rating, yelp_review_count,
bbb_rating, bbb_accredited, has_google_business_profile,
runs_google_ads, runs_facebook_ads,
quality_score, icp_score, is_enriched, enrichment_errors,
source, source_url, scraped_at, enriched_at, last_enriched_at, updated_at`

const insertColumnCount = 47

// Insert writes a new lead and assigns its ID.
func (s *Store) Insert(ctx context.Context, l *lead.Lead) error {
	args, err := leadArgs(l)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(
		"INSERT INTO leads (%s) VALUES (%s) RETURNING id",
		insertColumns, placeholders(insertColumnCount),
	)
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&l.ID); err != nil {
		return eris.Wrap(err, "postgres: insert lead")
	}
	return nil
}

// Update rewrites every column of an existing lead.
func (s *Store) Update(ctx context.Context, l *lead.Lead) error {
	if l.ID == 0 {
		return eris.New("postgres: update requires an id")
	}
	args, err := leadArgs(l)
	if err != nil {
		return err
	}

	cols := splitColumns(insertColumns)
	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", col, i+1)
	}
	query := fmt.Sprintf("UPDATE leads SET %s WHERE id = $%d", strings.Join(sets, ", "), len(cols)+1)
	args = append(args, l.ID)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrap(err, "postgres: update lead")
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func splitColumns(cols string) []string {
	parts := strings.Split(cols, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// Get returns one lead by ID.
func (s *Store) Get(ctx context.Context, id int64) (*lead.Lead, error) {
	query := fmt.Sprintf("SELECT %s FROM leads WHERE id = $1", leadColumns)
	l, err := scanLead(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapErr(err, "postgres: get lead")
	}
	return l, nil
}

// Delete removes the given leads and reports how many rows went away.
func (s *Store) Delete(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, "DELETE FROM leads WHERE id = ANY($1)", ids)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete leads")
	}
	return int(tag.RowsAffected()), nil
}

// FindByPhone returns the lead with the given normalized phone.
func (s *Store) FindByPhone(ctx context.Context, phone string) (*lead.Lead, error) {
	query := fmt.Sprintf("SELECT %s FROM leads WHERE phone = $1 ORDER BY id LIMIT 1", leadColumns)
	l, err := scanLead(s.pool.QueryRow(ctx, query, phone))
	if err != nil {
		return nil, mapErr(err, "postgres: find by phone")
	}
	return l, nil
}

// FindByEmail returns the lead with the given normalized email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*lead.Lead, error) {
	query := fmt.Sprintf("SELECT %s FROM leads WHERE email = $1 ORDER BY id LIMIT 1", leadColumns)
	l, err := scanLead(s.pool.QueryRow(ctx, query, email))
	if err != nil {
		return nil, mapErr(err, "postgres: find by email")
	}
	return l, nil
}

// FindByNameAddress matches name, address and city case-insensitively and
// state exactly.
func (s *Store) FindByNameAddress(ctx context.Context, name, address, city, state string) (*lead.Lead, error) {
	query := fmt.Sprintf(`SELECT %s FROM leads
WHERE LOWER(business_name) = LOWER($1)
  AND LOWER(address) = LOWER($2)
  AND LOWER(city) = LOWER($3)
  AND state = $4
ORDER BY id LIMIT 1`, leadColumns)
	l, err := scanLead(s.pool.QueryRow(ctx, query, name, address, city, state))
	if err != nil {
		return nil, mapErr(err, "postgres: find by name and address")
	}
	return l, nil
}

// List returns leads matching the filter, newest scraped first.
func (s *Store) List(ctx context.Context, f store.LeadFilter) ([]*lead.Lead, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.State != "" {
		add("state = $%d", f.State)
	}
	if f.City != "" {
		add("LOWER(city) = LOWER($%d)", f.City)
	}
	if f.Category != "" {
		add("LOWER(category) = LOWER($%d)", f.Category)
	}
	if f.Source != "" {
		add("source = $%d", f.Source)
	}
	if f.MinQuality > 0 {
		add("quality_score >= $%d", f.MinQuality)
	}
	if f.MinICP > 0 {
		add("icp_score >= $%d", f.MinICP)
	}
	if f.Enriched != nil {
		add("is_enriched = $%d", *f.Enriched)
	}

	query := fmt.Sprintf("SELECT %s FROM leads", leadColumns)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY scraped_at DESC, id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	return s.queryLeads(ctx, query, args...)
}

// ListUnenriched returns leads awaiting their first enrichment, oldest first.
func (s *Store) ListUnenriched(ctx context.Context, limit int) ([]*lead.Lead, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM leads WHERE is_enriched = FALSE ORDER BY id LIMIT $1",
		leadColumns,
	)
	return s.queryLeads(ctx, query, limit)
}

// ListEnrichedBefore returns enriched leads whose last enrichment predates
// the cutoff, stalest first.
func (s *Store) ListEnrichedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*lead.Lead, error) {
	query := fmt.Sprintf(`SELECT %s FROM leads
WHERE is_enriched = TRUE AND COALESCE(last_enriched_at, enriched_at) < $1
ORDER BY COALESCE(last_enriched_at, enriched_at) ASC
LIMIT $2`, leadColumns)
	return s.queryLeads(ctx, query, cutoff, limit)
}

// ByIDs returns the leads with the given IDs; missing IDs are skipped.
func (s *Store) ByIDs(ctx context.Context, ids []int64) ([]*lead.Lead, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf("SELECT %s FROM leads WHERE id = ANY($1) ORDER BY id", leadColumns)
	return s.queryLeads(ctx, query, ids)
}

func (s *Store) queryLeads(ctx context.Context, query string, args ...any) ([]*lead.Lead, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query leads")
	}
	defer rows.Close()

	var out []*lead.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate leads")
	}
	return out, nil
}

// Count returns the total number of leads.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM leads").Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count leads")
	}
	return n, nil
}

// Stats computes the lead table rollup.
func (s *Store) Stats(ctx context.Context) (*store.Stats, error) {
	var st store.Stats
	err := s.pool.QueryRow(ctx, `SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE is_enriched),
	COALESCE(AVG(quality_score), 0)
FROM leads`).Scan(&st.TotalLeads, &st.EnrichedLeads, &st.AvgQualityScore)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats totals")
	}
	st.UnenrichedLeads = st.TotalLeads - st.EnrichedLeads

	st.TopStates, err = s.topStates(ctx)
	if err != nil {
		return nil, err
	}
	st.TopCategories, err = s.topCategories(ctx)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) topStates(ctx context.Context) ([]store.StateCount, error) {
	rows, err := s.pool.Query(ctx, `SELECT state, COUNT(*) AS n FROM leads
WHERE state <> '' GROUP BY state ORDER BY n DESC, state ASC LIMIT 10`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats states")
	}
	defer rows.Close()

	var out []store.StateCount
	for rows.Next() {
		var sc store.StateCount
		if err := rows.Scan(&sc.State, &sc.Count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan state count")
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *Store) topCategories(ctx context.Context) ([]store.CategoryCount, error) {
	rows, err := s.pool.Query(ctx, `SELECT category, COUNT(*) AS n FROM leads
WHERE category <> '' GROUP BY category ORDER BY n DESC, category ASC LIMIT 10`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats categories")
	}
	defer rows.Close()

	var out []store.CategoryCount
	for rows.Next() {
		var cc store.CategoryCount
		if err := rows.Scan(&cc.Category, &cc.Count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan category count")
		}
		out = append(out, cc)
	}
	return out, rows.Err()
}

func mapErr(err error, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return eris.Wrap(err, msg)
}
