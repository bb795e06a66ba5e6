package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"jobpilot/pkg/models"
)

const profileColumns = `c.id, c.user_id, c.config_type, c.job_title, c.location, c.job_type, c.salary_min, c.salary_max,
	c.experience_level, c.remote_preference, c.keywords, COALESCE(c.resume_id, ''), c.platforms`

func (s *PostgresStore) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM users WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) ActiveSearchProfiles(ctx context.Context) ([]models.SearchProfile, error) {
	return s.queryProfiles(ctx, `
SELECT `+profileColumns+`
FROM job_search_configs c
JOIN users u ON u.id = c.user_id
JOIN subscriptions sub ON sub.user_id = c.user_id
WHERE c.is_active AND u.is_active AND sub.is_active
ORDER BY c.user_id, c.config_type`)
}

func (s *PostgresStore) SearchProfilesForUser(ctx context.Context, userID string) ([]models.SearchProfile, error) {
	return s.queryProfiles(ctx, `
SELECT `+profileColumns+`
FROM job_search_configs c
WHERE c.user_id = $1 AND c.is_active
ORDER BY c.config_type`, userID)
}

func (s *PostgresStore) queryProfiles(ctx context.Context, q string, args ...any) ([]models.SearchProfile, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query search profiles: %w", err)
	}
	defer rows.Close()

	var out []models.SearchProfile
	for rows.Next() {
		var p models.SearchProfile
		if err := rows.Scan(&p.ID, &p.UserID, &p.ConfigType, &p.JobTitle, &p.Location, &p.JobType, &p.SalaryMin,
			&p.SalaryMax, &p.ExperienceLevel, &p.RemotePreference, &p.Keywords, &p.ResumeID, &p.Platforms); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UserProfile(ctx context.Context, userID string) (models.UserProfile, error) {
	var u models.UserProfile
	err := s.pool.QueryRow(ctx, `
SELECT id, full_name, email, phone, location, years_experience, skills
FROM users WHERE id = $1`, userID).
		Scan(&u.ID, &u.FullName, &u.Email, &u.Phone, &u.Location, &u.YearsExperience, &u.Skills)
	if err != nil {
		return models.UserProfile{}, notFound(err)
	}
	return u, nil
}

func (s *PostgresStore) Usage(ctx context.Context, userID string) (models.Usage, error) {
	var u models.Usage
	err := s.pool.QueryRow(ctx, `
SELECT applications_used, applications_limit FROM subscriptions
WHERE user_id = $1 AND is_active`, userID).Scan(&u.Used, &u.Limit)
	if err != nil {
		return models.Usage{}, notFound(err)
	}
	return u, nil
}

// ResolveResume orders the user's resumes so the preferred one wins, then
// the default, then the newest upload.
func (s *PostgresStore) ResolveResume(ctx context.Context, userID, preferredID string) (models.Resume, error) {
	var (
		r       models.Resume
		encoded string
	)
	err := s.pool.QueryRow(ctx, `
SELECT id, user_id, filename, file_type, content_base64, is_default, uploaded_at
FROM resumes
WHERE user_id = $1
ORDER BY (id = $2) DESC, is_default DESC, uploaded_at DESC
LIMIT 1`, userID, preferredID).
		Scan(&r.ID, &r.UserID, &r.Filename, &r.FileType, &encoded, &r.IsDefault, &r.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Resume{}, ErrNoResume
	}
	if err != nil {
		return models.Resume{}, fmt.Errorf("resolve resume: %w", err)
	}

	r.Content, err = base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return models.Resume{}, fmt.Errorf("decode resume %s: %w", r.ID, err)
	}
	return r, nil
}

func (s *PostgresStore) Credential(ctx context.Context, userID, platform string) (CredentialRecord, error) {
	c := CredentialRecord{UserID: userID, Platform: platform}
	err := s.pool.QueryRow(ctx, `
SELECT username, encrypted_password, encrypted_cookies
FROM platform_credentials
WHERE user_id = $1 AND lower(platform) = lower($2)`, userID, platform).
		Scan(&c.Username, &c.Password, &c.Cookies)
	if err != nil {
		return CredentialRecord{}, notFound(err)
	}
	return c, nil
}
