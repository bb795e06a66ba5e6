package utils

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// JobURLType classifies a job board URL
type JobURLType int

const (
	JobURLTypeUnknown    JobURLType = iota
	JobURLTypeJobView               // /jobs/view/123 or /viewjob?jk=abc
	JobURLTypeCollection            // /jobs/collections/recommended/?currentJobId=123
	JobURLTypeNonJob                // search pages, profiles, company pages
)

// JobURLInfo contains the parsed identity of a job URL
type JobURLInfo struct {
	Platform  string
	Type      JobURLType
	JobID     string
	PublicURL string
}

var (
	linkedInJobViewRe = regexp.MustCompile(`^/jobs/view/(?:[^/]*-)?(\d+)/?$`)
	numericIDRe       = regexp.MustCompile(`^\d+$`)
)

// PlatformFromURL returns the platform slug for a known job board host, or "".
func PlatformFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	switch {
	case host == "linkedin.com" || strings.HasSuffix(host, ".linkedin.com"):
		return "linkedin"
	case host == "indeed.com" || strings.HasSuffix(host, ".indeed.com"):
		return "indeed"
	case host == "glassdoor.com" || strings.HasSuffix(host, ".glassdoor.com"):
		return "glassdoor"
	default:
		return ""
	}
}

// ParseJobURL analyzes a LinkedIn or Indeed URL and extracts its job id.
func ParseJobURL(rawURL string) (*JobURLInfo, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	platform := PlatformFromURL(rawURL)
	info := &JobURLInfo{Platform: platform, Type: JobURLTypeUnknown}
	path := strings.ToLower(parsed.Path)
	query := parsed.Query()

	switch platform {
	case "linkedin":
		if m := linkedInJobViewRe.FindStringSubmatch(path); len(m) > 1 {
			info.Type = JobURLTypeJobView
			info.JobID = m[1]
		} else if strings.HasPrefix(path, "/jobs/collections/") || strings.HasPrefix(path, "/jobs/search") {
			if id := query.Get("currentJobId"); numericIDRe.MatchString(id) {
				info.Type = JobURLTypeCollection
				info.JobID = id
			} else {
				info.Type = JobURLTypeNonJob
			}
		} else {
			info.Type = JobURLTypeNonJob
		}
		if info.JobID != "" {
			info.PublicURL = fmt.Sprintf("https://www.linkedin.com/jobs/view/%s", info.JobID)
		}
	case "indeed":
		jk := query.Get("jk")
		if jk == "" {
			jk = query.Get("vjk")
		}
		if jk != "" {
			info.Type = JobURLTypeJobView
			info.JobID = jk
			info.PublicURL = fmt.Sprintf("%s://%s/viewjob?jk=%s", schemeOrHTTPS(parsed), parsed.Host, url.QueryEscape(jk))
		} else {
			info.Type = JobURLTypeNonJob
		}
	default:
		return nil, fmt.Errorf("unsupported job board URL: %s", rawURL)
	}

	return info, nil
}

// CanonicalJobURL strips tracking parameters from known job board URLs so the
// same posting always maps to the same string. Unknown URLs are returned trimmed.
func CanonicalJobURL(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	info, err := ParseJobURL(trimmed)
	if err != nil || info.PublicURL == "" {
		return trimmed
	}
	return info.PublicURL
}

func schemeOrHTTPS(u *url.URL) string {
	if u.Scheme == "" {
		return "https"
	}
	return u.Scheme
}
