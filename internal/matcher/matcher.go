// Package matcher scores job listings against a user's search profile.
// Scoring is pure: the same inputs always produce the same score.
package matcher

import (
	"strings"

	"jobpilot/pkg/models"
)

// Sub-score weights; they sum to 100.
const (
	KeywordWeight    = 40.0
	LocationWeight   = 20.0
	SalaryWeight     = 20.0
	ExperienceWeight = 10.0
	JobTypeWeight    = 10.0

	// remote listings earn this share of the location weight
	remoteLocationShare = 0.8

	DefaultThreshold = 70.0
)

var remoteMarkers = []string{"remote", "wfh", "work from home", "anywhere", "distributed"}

// Breakdown is a score split into its weighted components.
type Breakdown struct {
	Keywords   float64 `json:"keywords"`
	Location   float64 `json:"location"`
	Salary     float64 `json:"salary"`
	Experience float64 `json:"experience"`
	JobType    float64 `json:"job_type"`
}

// Total sums the components and clamps to [0,100].
func (b Breakdown) Total() float64 {
	return clamp(b.Keywords+b.Location+b.Salary+b.Experience+b.JobType, 0, 100)
}

// Score returns the match score of listing for profile in [0,100].
func Score(listing models.JobListing, profile models.SearchProfile, userSkills []string) float64 {
	return Explain(listing, profile, userSkills).Total()
}

// Explain computes each weighted sub-score.
func Explain(listing models.JobListing, profile models.SearchProfile, userSkills []string) Breakdown {
	return Breakdown{
		Keywords:   keywordScore(listing, profile, userSkills),
		Location:   locationScore(listing.Location, profile.Location),
		Salary:     salaryScore(listing.SalaryRange, profile.SalaryMin),
		Experience: substringScore(listing.Description, profile.ExperienceLevel, ExperienceWeight),
		JobType:    substringScore(listing.JobType, profile.JobType, JobTypeWeight),
	}
}

// ShouldEnqueue decides whether a listing is worth applying to and explains why.
// A non-positive threshold selects DefaultThreshold.
func ShouldEnqueue(listing models.JobListing, profile models.SearchProfile, userSkills []string, threshold float64) (bool, float64, []string) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	score := Score(listing, profile, userSkills)
	ok := score >= threshold

	var reason string
	switch {
	case !ok && score < 50:
		reason = "Low match score - job doesn't align well with preferences"
	case !ok:
		reason = "Below threshold - consider adjusting search criteria"
	case score >= 90:
		reason = "Excellent match for your skills and preferences"
	case score >= 80:
		reason = "Very good match for your profile"
	default:
		reason = "Good match for your criteria"
	}

	return ok, score, []string{reason}
}

func keywordScore(listing models.JobListing, profile models.SearchProfile, userSkills []string) float64 {
	wanted := make([]string, 0, len(profile.Keywords)+len(userSkills))
	wanted = append(wanted, profile.Keywords...)
	wanted = append(wanted, userSkills...)

	a := Tokenize(strings.Join(wanted, " "))
	b := Tokenize(listing.Description + " " + listing.Requirements)
	return Overlap(a, b) * KeywordWeight
}

func locationScore(listingLocation, wanted string) float64 {
	loc := strings.ToLower(listingLocation)
	wanted = strings.ToLower(strings.TrimSpace(wanted))

	if wanted != "" && strings.Contains(loc, wanted) {
		return LocationWeight
	}
	if IsRemote(loc) {
		return LocationWeight * remoteLocationShare
	}
	return 0
}

func salaryScore(salaryRange string, salaryMin int) float64 {
	if salaryMin <= 0 {
		return SalaryWeight
	}
	if ParseMinSalary(salaryRange) >= salaryMin {
		return SalaryWeight
	}
	return 0
}

// substringScore credits weight only when both sides are present and
// needle occurs in haystack.
func substringScore(haystack, needle string, weight float64) float64 {
	needle = strings.ToLower(strings.TrimSpace(needle))
	haystack = strings.ToLower(haystack)
	if needle == "" || strings.TrimSpace(haystack) == "" {
		return 0
	}
	if strings.Contains(haystack, needle) {
		return weight
	}
	return 0
}

// IsRemote reports whether a location string advertises remote work.
func IsRemote(location string) bool {
	location = strings.ToLower(location)
	for _, m := range remoteMarkers {
		if strings.Contains(location, m) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
