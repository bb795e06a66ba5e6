package captcha

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Kind classifies a challenge
type Kind string

const (
	KindNone      Kind = ""
	KindRecaptcha Kind = "recaptcha"
	KindTurnstile Kind = "turnstile"
	// KindChallenge is a verification page with no solvable widget
	KindChallenge Kind = "challenge"
)

// Challenge is a detected captcha or verification gate
type Challenge struct {
	Kind    Kind
	SiteKey string
}

// Solvable reports whether a site key was found for a known widget.
func (c Challenge) Solvable() bool {
	return (c.Kind == KindRecaptcha || c.Kind == KindTurnstile) && c.SiteKey != ""
}

var (
	recaptchaKeyPatterns = compile(
		`data-sitekey="([^"]+)"`,
		`data-sitekey='([^']+)'`,
		`"sitekey"\s*:\s*"([^"]+)"`,
	)
	turnstileKeyPatterns = compile(
		`cf-turnstile[^>]*data-sitekey=['"]([^'"]+)['"]`,
		`data-sitekey=['"]([^'"]+)['"][^>]*cf-turnstile`,
		`challenges\.cloudflare\.com[^"]*/(0x[0-9a-zA-Z_-]{10,})/`,
	)
	challengeURLMarkers  = []string{"/checkpoint/challenge", "/checkpoint/lg/", "/authwall"}
	challengeBodyMarkers = []string{
		"security verification",
		"let's do a quick security check",
		"please verify you are a human",
		"checking your browser",
		"cf-challenge",
	}
)

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

func firstMatch(html string, patterns []*regexp.Regexp) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(html); len(m) > 1 {
			if key := strings.TrimSpace(m[1]); key != "" {
				return key
			}
		}
	}
	return ""
}

// Detect inspects the current URL and page source for a captcha or
// verification challenge.
func Detect(pageURL, html string) Challenge {
	lower := strings.ToLower(html)

	if strings.Contains(lower, "cf-turnstile") || strings.Contains(lower, "challenges.cloudflare.com") {
		if key := firstMatch(html, turnstileKeyPatterns); key != "" {
			return Challenge{Kind: KindTurnstile, SiteKey: key}
		}
	}

	if strings.Contains(lower, "g-recaptcha") || strings.Contains(lower, "recaptcha/api") {
		if key := firstMatch(html, recaptchaKeyPatterns); key != "" {
			return Challenge{Kind: KindRecaptcha, SiteKey: key}
		}
		return Challenge{Kind: KindChallenge}
	}

	lowerURL := strings.ToLower(pageURL)
	for _, m := range challengeURLMarkers {
		if strings.Contains(lowerURL, m) {
			return Challenge{Kind: KindChallenge}
		}
	}
	for _, m := range challengeBodyMarkers {
		if strings.Contains(lower, m) {
			return Challenge{Kind: KindChallenge}
		}
	}

	return Challenge{Kind: KindNone}
}

// InjectionScript returns a page function that writes token into the
// challenge response fields, fires the widget callback and submits the
// enclosing form.
func InjectionScript(kind Kind, token string) string {
	quoted, _ := json.Marshal(token)
	field := "g-recaptcha-response"
	widget := ".g-recaptcha"
	if kind == KindTurnstile {
		field = "cf-turnstile-response"
		widget = ".cf-turnstile"
	}

	return fmt.Sprintf(`() => {
		const token = %s;
		for (const el of document.querySelectorAll('[name="%s"], #%s')) {
			el.value = token;
			el.innerHTML = token;
		}
		const widget = document.querySelector('%s');
		if (widget) {
			const cb = widget.getAttribute('data-callback');
			if (cb && typeof window[cb] === 'function') {
				window[cb](token);
			}
			const form = widget.closest('form');
			if (form) {
				form.submit();
			}
		}
		return 'ok';
	}`, quoted, field, field, widget)
}
