package security

import (
	"regexp"
)

type secretPattern struct {
	name       string
	regex      *regexp.Regexp
	redactWith string
}

var defaultSecretPatterns = []struct {
	name       string
	pattern    string
	redactWith string
}{
	{"JWT Token", `eyJ[a-zA-Z0-9\-_]+\.eyJ[a-zA-Z0-9\-_]+\.[a-zA-Z0-9\-_]+`, "eyJ****"},
	{"Bearer Header", `(?i)bearer\s+[a-zA-Z0-9\-_.~+/]{8,}=*`, "Bearer ****"},
	{"Telegram Bot Token", `[0-9]{8,10}:[a-zA-Z0-9_-]{35}`, "****:****"},
	{"One-Time Password", `(?i)("?otp"?\s*[:=]\s*"?)[0-9]{4,8}`, "${1}****"},
	{"Generic API Key", `(?i)(api[_-]?key|apikey|access[_-]?key)['"]?\s*[:=]\s*['"]?[0-9a-zA-Z\-_]{16,}['"]?`, "API_KEY****"},
	{"Generic Secret", `(?i)(secret|password|token)['"]?\s*[:=]\s*['"]?[^\s'",}]{8,}['"]?`, "SECRET****"},
}

// SecretScanner replaces credentials found in free text
type SecretScanner struct {
	patterns []*secretPattern
}

func NewSecretScanner() *SecretScanner {
	scanner := &SecretScanner{
		patterns: make([]*secretPattern, 0, len(defaultSecretPatterns)),
	}

	for _, p := range defaultSecretPatterns {
		scanner.patterns = append(scanner.patterns, &secretPattern{
			name:       p.name,
			regex:      regexp.MustCompile(p.pattern),
			redactWith: p.redactWith,
		})
	}

	return scanner
}

// HasSecrets reports whether any pattern matches input
func (s *SecretScanner) HasSecrets(input string) bool {
	for _, p := range s.patterns {
		if p.regex.MatchString(input) {
			return true
		}
	}
	return false
}

// Redact replaces every match in input
func (s *SecretScanner) Redact(input string) string {
	result := input
	for _, pattern := range s.patterns {
		result = pattern.regex.ReplaceAllString(result, pattern.redactWith)
	}
	return result
}

var defaultScanner = NewSecretScanner()

// RedactSecrets scrubs input with the default patterns
func RedactSecrets(input string) string {
	return defaultScanner.Redact(input)
}
