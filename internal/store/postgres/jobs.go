package postgres

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/leadgrid/lead-engine/internal/lead"
	"github.com/leadgrid/lead-engine/internal/store"
)

// CreateScrapeJob inserts a running scrape job row and assigns its ID.
func (s *Store) CreateScrapeJob(ctx context.Context, j *lead.ScrapeJob) error {
	err := s.pool.QueryRow(ctx, `INSERT INTO scrape_jobs
(source, category, location, status, started_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`,
		j.Source, j.Category, j.Location, string(j.Status), j.StartedAt,
	).Scan(&j.ID)
	if err != nil {
		return eris.Wrap(err, "postgres: create scrape job")
	}
	return nil
}

// FinishScrapeJob writes the terminal status and counters of a job row.
func (s *Store) FinishScrapeJob(ctx context.Context, j *lead.ScrapeJob) error {
	tag, err := s.pool.Exec(ctx, `UPDATE scrape_jobs SET
status = $1,
leads_found = $2,
leads_new = $3,
leads_updated = $4,
leads_skipped = $5,
errors = $6,
duration_seconds = $7,
completed_at = $8
WHERE id = $9`,
		string(j.Status), j.LeadsFound, j.LeadsNew, j.LeadsUpdated, j.LeadsSkipped,
		j.Errors, j.DurationSeconds, j.CompletedAt, j.ID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: finish scrape job")
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListScrapeJobs returns the most recently started jobs first.
func (s *Store) ListScrapeJobs(ctx context.Context, limit int) ([]*lead.ScrapeJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `SELECT
id, source, category, location, status,
leads_found, leads_new, leads_updated, leads_skipped,
errors, duration_seconds, started_at, completed_at
FROM scrape_jobs
ORDER BY started_at DESC, id DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scrape jobs")
	}
	defer rows.Close()

	var out []*lead.ScrapeJob
	for rows.Next() {
		var (
			j      lead.ScrapeJob
			status string
		)
		err := rows.Scan(
			&j.ID, &j.Source, &j.Category, &j.Location, &status,
			&j.LeadsFound, &j.LeadsNew, &j.LeadsUpdated, &j.LeadsSkipped,
			&j.Errors, &j.DurationSeconds, &j.StartedAt, &j.CompletedAt,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan scrape job")
		}
		j.Status = lead.ScrapeJobStatus(status)
		out = append(out, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate scrape jobs")
	}
	return out, nil
}
