package automation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"jobpilot/internal/browser"
)

// Field describes a form control by its identifying attributes, lowercased
type Field struct {
	Type        string
	Name        string
	ID          string
	Placeholder string
	AriaLabel   string
	Label       string
}

func (f Field) has(words ...string) bool {
	for _, w := range words {
		if strings.Contains(f.Name, w) || strings.Contains(f.ID, w) ||
			strings.Contains(f.Placeholder, w) || strings.Contains(f.AriaLabel, w) ||
			strings.Contains(f.Label, w) {
			return true
		}
	}
	return false
}

// FieldRule fills a field when Match accepts it. Rules are tried in order
// and the first match wins.
type FieldRule struct {
	Name  string
	Match func(Field) bool
	Value func(Applicant) string
}

// DefaultFieldRules covers the contact fields job boards ask for. Specific
// name rules precede the generic one.
var DefaultFieldRules = []FieldRule{
	{
		Name:  "phone",
		Match: func(f Field) bool { return f.Type == "tel" || f.has("phone", "mobile") },
		Value: func(a Applicant) string { return a.Phone },
	},
	{
		Name:  "email",
		Match: func(f Field) bool { return f.Type == "email" || f.has("email") },
		Value: func(a Applicant) string { return a.Email },
	},
	{
		Name:  "first_name",
		Match: func(f Field) bool { return f.has("first", "given") },
		Value: func(a Applicant) string { return a.FirstName },
	},
	{
		Name:  "last_name",
		Match: func(f Field) bool { return f.has("last", "family", "surname") },
		Value: func(a Applicant) string { return a.LastName },
	},
	{
		Name:  "years_experience",
		Match: func(f Field) bool { return f.has("years", "experience") },
		Value: func(a Applicant) string { return strconv.Itoa(a.YearsExperience) },
	},
	{
		Name:  "location",
		Match: func(f Field) bool { return f.has("city", "location", "address") },
		Value: func(a Applicant) string { return a.Location },
	},
	{
		Name:  "full_name",
		Match: func(f Field) bool { return f.has("name") },
		Value: func(a Applicant) string { return a.FullName },
	},
}

const textInputSelector = `input[type="text"], input[type="tel"], input[type="email"], input[type="number"], textarea`

func describe(el browser.Element) Field {
	attr := func(name string) string {
		return strings.ToLower(browser.AttrOr(el, name, ""))
	}
	return Field{
		Type:        attr("type"),
		Name:        attr("name"),
		ID:          attr("id"),
		Placeholder: attr("placeholder"),
		AriaLabel:   attr("aria-label"),
		Label:       strings.ToLower(el.Label()),
	}
}

// FillReport counts what a fill pass touched
type FillReport struct {
	Filled   int
	Selected int
	Checked  int
	Errors   []error
}

func (r *FillReport) merge(o FillReport) {
	r.Filled += o.Filled
	r.Selected += o.Selected
	r.Checked += o.Checked
	r.Errors = append(r.Errors, o.Errors...)
}

// Err joins the collected errors, nil when there were none.
func (r FillReport) Err() error {
	return errors.Join(r.Errors...)
}

// FillTextFields types applicant values into the empty visible text inputs
// of scope. Pre-filled, disabled and readonly inputs are left alone.
func FillTextFields(ctx context.Context, scope browser.Page, rules []FieldRule, a Applicant) FillReport {
	var rep FillReport

	inputs, err := scope.FindAll(ctx, textInputSelector)
	if err != nil {
		rep.Errors = append(rep.Errors, err)
		return rep
	}

	for _, el := range inputs {
		if err := ctx.Err(); err != nil {
			rep.Errors = append(rep.Errors, err)
			return rep
		}
		if !el.Visible() || !browser.Editable(el) || browser.AttrOr(el, "value", "") != "" {
			continue
		}
		f := describe(el)
		for _, rule := range rules {
			if !rule.Match(f) {
				continue
			}
			if v := rule.Value(a); v != "" {
				if err := el.Input(ctx, v); err != nil {
					rep.Errors = append(rep.Errors, fmt.Errorf("%s: %w", rule.Name, err))
				} else {
					rep.Filled++
				}
			}
			break
		}
	}
	return rep
}

var placeholderOptions = []string{"select", "choose", "please", "--"}

func usableOptions(options []string) []string {
	out := make([]string, 0, len(options))
	for _, o := range options {
		t := strings.TrimSpace(o)
		if t == "" {
			continue
		}
		lower := strings.ToLower(t)
		placeholder := false
		for _, p := range placeholderOptions {
			if strings.HasPrefix(lower, p) {
				placeholder = true
				break
			}
		}
		if !placeholder {
			out = append(out, o)
		}
	}
	return out
}

// ChooseOption picks a dropdown answer for the question described by label:
// education takes the middle option, experience or years takes the first
// option mentioning the applicant's years, anything else the first real
// option. ok is false when there is nothing to choose.
func ChooseOption(label string, options []string, years int) (string, bool) {
	opts := usableOptions(options)
	if len(opts) == 0 {
		return "", false
	}

	label = strings.ToLower(label)
	switch {
	case strings.Contains(label, "education") || strings.Contains(label, "degree"):
		return opts[len(opts)/2], true
	case strings.Contains(label, "experience") || strings.Contains(label, "years"):
		y := strconv.Itoa(years)
		for _, o := range opts {
			if strings.Contains(o, y) {
				return o, true
			}
		}
	}
	return opts[0], true
}

// FillSelects answers unanswered dropdowns with ChooseOption.
func FillSelects(ctx context.Context, scope browser.Page, a Applicant) FillReport {
	var rep FillReport

	selects, err := scope.FindAll(ctx, "select")
	if err != nil {
		rep.Errors = append(rep.Errors, err)
		return rep
	}

	for _, el := range selects {
		if !el.Visible() || !browser.Editable(el) || browser.AttrOr(el, "value", "") != "" {
			continue
		}
		options, err := el.Options()
		if err != nil {
			rep.Errors = append(rep.Errors, err)
			continue
		}
		f := describe(el)
		label := strings.Join([]string{f.Label, f.Name, f.ID, f.AriaLabel}, " ")
		choice, ok := ChooseOption(label, options, a.YearsExperience)
		if !ok {
			continue
		}
		if err := el.Select(ctx, choice); err != nil {
			rep.Errors = append(rep.Errors, err)
			continue
		}
		rep.Selected++
	}
	return rep
}

// FillRadios answers each radio group that has no selection, preferring a
// "yes" option and otherwise the first. Radios without a name belong to no
// group and are left alone, as are disabled ones.
func FillRadios(ctx context.Context, scope browser.Page) FillReport {
	var rep FillReport

	radios, err := scope.FindAll(ctx, `input[type="radio"]`)
	if err != nil {
		rep.Errors = append(rep.Errors, err)
		return rep
	}

	var order []string
	groups := make(map[string][]browser.Element)
	for _, r := range radios {
		name := browser.AttrOr(r, "name", "")
		if name == "" || !browser.Editable(r) {
			continue
		}
		if _, seen := groups[name]; !seen {
			order = append(order, name)
		}
		groups[name] = append(groups[name], r)
	}

	for _, name := range order {
		group := groups[name]
		answered := false
		for _, r := range group {
			if r.Checked() {
				answered = true
				break
			}
		}
		if answered {
			continue
		}

		pick := group[0]
		for _, r := range group {
			if strings.Contains(strings.ToLower(r.Label()), "yes") {
				pick = r
				break
			}
		}
		if err := pick.Click(ctx); err != nil {
			rep.Errors = append(rep.Errors, err)
			continue
		}
		rep.Checked++
	}
	return rep
}

// FillAll runs the text, dropdown and radio passes over scope.
func FillAll(ctx context.Context, scope browser.Page, rules []FieldRule, a Applicant) FillReport {
	var rep FillReport
	rep.merge(FillTextFields(ctx, scope, rules, a))
	rep.merge(FillSelects(ctx, scope, a))
	rep.merge(FillRadios(ctx, scope))
	return rep
}

// attachResume sets the resume on the first file input of scope. It returns
// false with a nil error when no file input is present.
func attachResume(ctx context.Context, scope browser.Page, a *Attempt) (bool, error) {
	if a.resumeAttached {
		return true, nil
	}
	if a.ResumePath == "" {
		return false, nil
	}
	el, err := scope.Find(ctx, `input[type="file"]`)
	if errors.Is(err, browser.ErrElementNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := el.SetFiles(ctx, []string{a.ResumePath}); err != nil {
		return false, err
	}
	a.resumeAttached = true
	return true, nil
}

var pollInterval = 500 * time.Millisecond

// waitUntil polls cond until it holds, timeout elapses or ctx ends.
func waitUntil(ctx context.Context, timeout time.Duration, cond func() bool) bool {
	if cond() {
		return true
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return cond()
		case <-tick.C:
			if cond() {
				return true
			}
		}
	}
}

func urlContainsAny(page browser.Page, parts ...string) bool {
	u := strings.ToLower(page.URL())
	for _, p := range parts {
		if strings.Contains(u, p) {
			return true
		}
	}
	return false
}

func textContainsAny(text string, parts ...string) bool {
	lower := strings.ToLower(text)
	for _, p := range parts {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// clickFirst clicks the first element matched by selector. found is false
// when nothing matched.
func clickFirst(ctx context.Context, scope browser.Page, selector string) (found bool, err error) {
	el, err := scope.Find(ctx, selector)
	if errors.Is(err, browser.ErrElementNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, el.Click(ctx)
}
