package policy

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	// Azure keys are 32 hex chars; bearer-style secrets usually carry an sk- prefix.
	secretPattern = regexp.MustCompile(`\b(?:sk-[A-Za-z0-9_\-]{16,}|[a-f0-9]{32})\b`)
)

// Redactor masks PII in chat text before it reaches logs or the transcript archive.
// A disabled Redactor passes text through untouched.
type Redactor struct {
	Enabled bool
}

func NewRedactor(enabled bool) Redactor { return Redactor{Enabled: enabled} }

// Redact returns the masked text and whether anything was replaced.
func (r Redactor) Redact(input string) (string, bool) {
	if !r.Enabled {
		return input, false
	}
	return RedactPII(input)
}

// RedactPII masks common high-risk PII patterns.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	// Cards go before phones so long digit runs are not reported as phone numbers.
	for _, rule := range []struct {
		re   *regexp.Regexp
		mask string
	}{
		{emailPattern, "[REDACTED_EMAIL]"},
		{secretPattern, "[REDACTED_SECRET]"},
		{cardPattern, "[REDACTED_CARD]"},
		{phonePattern, "[REDACTED_PHONE]"},
	} {
		next := rule.re.ReplaceAllString(out, rule.mask)
		changed = changed || next != out
		out = next
	}
	return out, changed
}
