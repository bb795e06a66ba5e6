package scraper

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var firstNumberRe = regexp.MustCompile(`(\d+)`)

// ParsePostedDate turns a board's relative date ("Just posted", "3 days ago",
// "30+ days ago", "5 hours ago") into a timestamp. Unrecognized text maps to now.
func ParsePostedDate(text string, now time.Time) time.Time {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return now
	}

	n := 0
	if m := firstNumberRe.FindStringSubmatch(t); len(m) > 1 {
		n, _ = strconv.Atoi(m[1])
	}

	switch {
	case strings.Contains(t, "just posted"), strings.Contains(t, "today"), strings.Contains(t, "just now"):
		return now
	case strings.Contains(t, "yesterday"):
		return now.AddDate(0, 0, -1)
	case strings.Contains(t, "month") && n > 0:
		return now.AddDate(0, -n, 0)
	case strings.Contains(t, "week") && n > 0:
		return now.AddDate(0, 0, -7*n)
	case strings.Contains(t, "day") && n > 0:
		return now.AddDate(0, 0, -n)
	case strings.Contains(t, "hour") && n > 0:
		return now.Add(-time.Duration(n) * time.Hour)
	case strings.Contains(t, "minute") && n > 0:
		return now.Add(-time.Duration(n) * time.Minute)
	default:
		return now
	}
}

// parseListDate reads a machine date attribute such as "2026-02-27" or an
// RFC 3339 timestamp.
func parseListDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// inferJobType maps free text to one of the job types boards use.
func inferJobType(text string) string {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "part-time"), strings.Contains(t, "part time"):
		return "Part-time"
	case strings.Contains(t, "contract"):
		return "Contract"
	case strings.Contains(t, "temporary"):
		return "Temporary"
	case strings.Contains(t, "internship"):
		return "Internship"
	default:
		return "Full-time"
	}
}
