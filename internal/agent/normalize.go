package agent

import (
	"regexp"
	"strings"
)

// Local normalization runs before (and independent of) the LLM pass, so the
// executor still gets a cleaned instruction when the provider is down.

var whitespacePattern = regexp.MustCompile(`\s+`)

// salutationPatterns strip lead-ins that carry no instruction content.
var salutationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(please|pls|kindly)[,\s]+`),
	regexp.MustCompile(`(?i)^(hi|hey|hello)[,!\s]+`),
	regexp.MustCompile(`(?i)^(help me|can you|could you|would you)[,\s]+`),
	regexp.MustCompile(`^(请|麻烦|帮我|帮忙)+`),
}

// termCorrections fixes common misspellings of technology names.
var termCorrections = map[*regexp.Regexp]string{
	regexp.MustCompile(`(?i)\bpyton\b`):       "python",
	regexp.MustCompile(`(?i)\bpytohn\b`):      "python",
	regexp.MustCompile(`(?i)\bjavascrpit\b`):  "javascript",
	regexp.MustCompile(`(?i)\bjavascirpt\b`):  "javascript",
	regexp.MustCompile(`(?i)\btypescrpit\b`):  "typescript",
	regexp.MustCompile(`(?i)\bdokcer\b`):      "docker",
	regexp.MustCompile(`(?i)\bkubernets\b`):   "kubernetes",
	regexp.MustCompile(`(?i)\bkuberentes\b`):  "kubernetes",
	regexp.MustCompile(`(?i)\bpostgre\b`):     "postgres",
	regexp.MustCompile(`(?i)\breadct\b`):      "react",
	regexp.MustCompile(`(?i)\bgtihub\b`):      "github",
}

// colloquialVerbs converts casual phrasing into the imperative form the
// executor expects.
var colloquialVerbs = map[*regexp.Regexp]string{
	regexp.MustCompile(`(?i)\bfix up\b`):       "fix",
	regexp.MustCompile(`(?i)\bcheck out\b`):    "review",
	regexp.MustCompile(`(?i)\blook at\b`):      "review",
	regexp.MustCompile(`(?i)\bsort out\b`):     "resolve",
	regexp.MustCompile(`(?i)\bget rid of\b`):   "remove",
	regexp.MustCompile(`(?i)\bfigure out\b`):   "determine",
	regexp.MustCompile(`搞一下`):                  "处理",
	regexp.MustCompile(`弄一下`):                  "处理",
	regexp.MustCompile(`看看`):                   "检查",
}

// Normalize applies the local cleanup pass: whitespace collapse, salutation
// strip, spelling fixes, colloquial verb substitution.
func Normalize(prompt string) string {
	text := whitespacePattern.ReplaceAllString(strings.TrimSpace(prompt), " ")

	for _, pattern := range salutationPatterns {
		text = pattern.ReplaceAllString(text, "")
	}
	text = strings.TrimSpace(text)

	for pattern, replacement := range termCorrections {
		text = pattern.ReplaceAllString(text, replacement)
	}
	for pattern, replacement := range colloquialVerbs {
		text = pattern.ReplaceAllString(text, replacement)
	}
	return strings.TrimSpace(text)
}
