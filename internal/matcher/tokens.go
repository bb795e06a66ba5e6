package matcher

import (
	"strconv"
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {},
	"with": {}, "to": {}, "for": {}, "of": {}, "on": {}, "at": {}, "from": {}, "by": {},
}

// Tokenize lowercases text and splits it into a set of terms. '+' and '#'
// stay inside tokens so "c++" and "c#" survive; stopwords and one-character
// tokens are dropped.
func Tokenize(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#')
	})

	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		set[f] = struct{}{}
	}
	return set
}

// Overlap is |a∩b| / min(|a|,|b|), or 0 when either set is empty.
func Overlap(a, b map[string]struct{}) float64 {
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	if len(small) == 0 {
		return 0
	}

	shared := 0
	for t := range small {
		if _, ok := large[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}

// ParseMinSalary extracts the lower bound from free-text salary such as
// "$80k-100k" or "95,000 a year". It returns 0 when nothing parses.
// "3 years, $95k" reads as 3000: the first integer wins.
func ParseMinSalary(text string) int {
	lower := strings.ToLower(text)
	hasK := strings.Contains(lower, "k")

	cleaned := strings.NewReplacer("$", "", ",", "", "k", "").Replace(lower)

	start := strings.IndexFunc(cleaned, unicode.IsDigit)
	if start < 0 {
		return 0
	}
	end := start
	for end < len(cleaned) && cleaned[end] >= '0' && cleaned[end] <= '9' {
		end++
	}

	n, err := strconv.Atoi(cleaned[start:end])
	if err != nil {
		return 0
	}
	if hasK && n < 1000 {
		n *= 1000
	}
	return n
}
