package models

import "time"

// JobListing is a posting discovered on an external platform.
// (Platform, ExternalID) identifies a listing; re-scrapes refresh it in place.
type JobListing struct {
	ID           string     `json:"id"`
	Platform     string     `json:"platform"`
	ExternalID   string     `json:"external_id"`
	CompanyName  string     `json:"company_name"`
	Title        string     `json:"job_title"`
	Location     string     `json:"location"`
	SalaryRange  string     `json:"salary_range,omitempty"`
	JobType      string     `json:"job_type,omitempty"`
	Description  string     `json:"description,omitempty"`
	Requirements string     `json:"requirements,omitempty"`
	URL          string     `json:"job_url"`
	PostedAt     *time.Time `json:"posted_date,omitempty"`
	ScrapedAt    time.Time  `json:"scraped_at"`
	IsActive     bool       `json:"is_active"`
}

// Search profile variants
const (
	ConfigTypePrimary   = "primary"
	ConfigTypeSecondary = "secondary"
)

// SearchProfile is one active variant of a user's search criteria.
type SearchProfile struct {
	ID               string   `json:"id"`
	UserID           string   `json:"user_id"`
	ConfigType       string   `json:"config_type"`
	JobTitle         string   `json:"job_title"`
	Location         string   `json:"location"`
	JobType          string   `json:"job_type"`
	SalaryMin        int      `json:"salary_min,omitempty"`
	SalaryMax        int      `json:"salary_max,omitempty"`
	ExperienceLevel  string   `json:"experience_level,omitempty"`
	RemotePreference string   `json:"remote_preference,omitempty"`
	Keywords         []string `json:"keywords"`
	ResumeID         string   `json:"resume_id,omitempty"`
	Platforms        []string `json:"platforms"`
}

// UserProfile holds the applicant details used to fill application forms.
type UserProfile struct {
	ID              string   `json:"id"`
	FullName        string   `json:"full_name"`
	Email           string   `json:"email"`
	Phone           string   `json:"phone"`
	Location        string   `json:"location"`
	YearsExperience int      `json:"years_experience"`
	Skills          []string `json:"skills"`
}

// Resume is a stored resume file.
type Resume struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Filename   string    `json:"filename"`
	FileType   string    `json:"file_type"`
	IsDefault  bool      `json:"is_default"`
	UploadedAt time.Time `json:"uploaded_at"`
	Content    []byte    `json:"-"`
}

// Usage is a user's subscription consumption.
type Usage struct {
	Used  int `json:"used"`
	Limit int `json:"limit"`
}

// Exhausted reports whether no applications remain in the plan.
func (u Usage) Exhausted() bool {
	return u.Used >= u.Limit
}
