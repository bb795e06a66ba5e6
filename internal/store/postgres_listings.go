package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"jobpilot/pkg/models"
)

const listingColumns = `id, platform, external_id, company_name, job_title, location, salary_range, job_type,
	description, requirements, job_url, posted_date, scraped_at, is_active`

func scanListing(row rowScanner) (models.JobListing, error) {
	var l models.JobListing
	err := row.Scan(&l.ID, &l.Platform, &l.ExternalID, &l.CompanyName, &l.Title, &l.Location, &l.SalaryRange,
		&l.JobType, &l.Description, &l.Requirements, &l.URL, &l.PostedAt, &l.ScrapedAt, &l.IsActive)
	return l, err
}

func (s *PostgresStore) UpsertListing(ctx context.Context, listing *models.JobListing) error {
	if listing.ScrapedAt.IsZero() {
		listing.ScrapedAt = time.Now()
	}

	const q = `
INSERT INTO job_listings (id, platform, external_id, company_name, job_title, location, salary_range, job_type,
	description, requirements, job_url, posted_date, scraped_at, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, TRUE)
ON CONFLICT (platform, external_id) DO UPDATE SET
	company_name = EXCLUDED.company_name,
	job_title = EXCLUDED.job_title,
	location = EXCLUDED.location,
	salary_range = EXCLUDED.salary_range,
	job_type = EXCLUDED.job_type,
	description = EXCLUDED.description,
	requirements = EXCLUDED.requirements,
	job_url = EXCLUDED.job_url,
	posted_date = COALESCE(EXCLUDED.posted_date, job_listings.posted_date),
	scraped_at = EXCLUDED.scraped_at,
	is_active = TRUE
RETURNING id`

	err := s.pool.QueryRow(ctx, q, uuid.NewString(), listing.Platform, listing.ExternalID, listing.CompanyName,
		listing.Title, listing.Location, listing.SalaryRange, listing.JobType, listing.Description,
		listing.Requirements, listing.URL, listing.PostedAt, listing.ScrapedAt).Scan(&listing.ID)
	if err != nil {
		return fmt.Errorf("upsert listing %s/%s: %w", listing.Platform, listing.ExternalID, err)
	}
	listing.IsActive = true
	return nil
}

func (s *PostgresStore) GetListing(ctx context.Context, id string) (models.JobListing, error) {
	l, err := scanListing(s.pool.QueryRow(ctx, `SELECT `+listingColumns+` FROM job_listings WHERE id = $1`, id))
	if err != nil {
		return models.JobListing{}, notFound(err)
	}
	return l, nil
}

func (s *PostgresStore) ListListings(ctx context.Context, f ListingFilter) ([]models.JobListing, int, error) {
	var w whereBuilder
	if f.Platform != "" {
		w.add("lower(l.platform) = lower($%d)", f.Platform)
	}
	if f.ActiveOnly {
		w.addRaw("l.is_active")
	}
	if f.ExcludeQueuedForUser != "" {
		w.add("NOT EXISTS (SELECT 1 FROM job_queue q WHERE q.user_id = $%d AND q.job_listing_id = l.id)", f.ExcludeQueuedForUser)
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM job_listings l`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count listings: %w", err)
	}

	q := `SELECT ` + listingColumns + ` FROM job_listings l` + w.String() + ` ORDER BY l.scraped_at DESC, l.id`
	q += w.page(f.Offset, f.Limit)

	rows, err := s.pool.Query(ctx, q, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var out []models.JobListing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, l)
	}
	return out, total, rows.Err()
}

func (s *PostgresStore) DeleteListingsScrapedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM job_listings WHERE scraped_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale listings: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) DeactivateListingsScrapedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE job_listings SET is_active = FALSE WHERE is_active AND scraped_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deactivate stale listings: %w", err)
	}
	return tag.RowsAffected(), nil
}
