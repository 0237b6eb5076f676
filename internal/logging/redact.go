package logging

import "regexp"

const redactedPlaceholder = "[REDACTED]"

// Secrets that tend to leak into log lines: HTTP auth headers, provider API
// keys, and chat bot tokens (the "123456:ABC..." form appears inside URLs).
var redactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(authorization:\s*bearer\s+)[A-Za-z0-9._\-]+`),
	regexp.MustCompile(`(?i)(api[_-]?key["'=:\s]+)[A-Za-z0-9._\-]{16,}`),
	regexp.MustCompile(`sk-[A-Za-z0-9]{16,}`),
	regexp.MustCompile(`ghp_[A-Za-z0-9]{20,}`),
	// No leading \b: the token usually follows "bot" in the request path.
	regexp.MustCompile(`\d{6,12}:[A-Za-z0-9_\-]{30,}\b`),
}

// Redact masks secret material in a log line before it reaches any sink.
func Redact(line string) string {
	for _, pattern := range redactPatterns {
		line = pattern.ReplaceAllStringFunc(line, func(match string) string {
			if sub := pattern.FindStringSubmatch(match); len(sub) > 1 {
				return sub[1] + redactedPlaceholder
			}
			return redactedPlaceholder
		})
	}
	return line
}
