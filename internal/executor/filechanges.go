package executor

import (
	"regexp"
	"strings"
)

// FileChanges groups the file paths hinted at in executor output.
type FileChanges struct {
	Created  []string
	Modified []string
	Deleted  []string
}

// One regex set, shared with the file-exists validator, so the two consumers
// can never drift apart.
// The keyword must sit at a line start or after a non-word, non-slash rune so
// that path segments like example.com/created: never count as a hint.
var (
	createdPattern  = regexp.MustCompile(`(?im)(?:^|[^/\w])(?:created?|new file|wrote(?: to)?|saved?(?: to)?|generated)\s*[:\s]\s*([^\s"']+\.\w+)`)
	modifiedPattern = regexp.MustCompile(`(?im)(?:^|[^/\w])(?:modified|updated?|changed|edited)\s*[:\s]\s*([^\s"']+\.\w+)`)
	deletedPattern  = regexp.MustCompile(`(?im)(?:^|[^/\w])(?:deleted?|removed?)\s*[:\s]\s*([^\s"']+\.\w+)`)
)

// ExtractFileChanges scans executor output for created/modified/deleted file
// hints. URLs are skipped and duplicates removed preserving first-seen order.
func ExtractFileChanges(text string) FileChanges {
	return FileChanges{
		Created:  extract(createdPattern, text),
		Modified: extract(modifiedPattern, text),
		Deleted:  extract(deletedPattern, text),
	}
}

// ExtractFilePaths returns every path hinted at in text, all kinds combined,
// deduplicated preserving order.
func ExtractFilePaths(text string) []string {
	changes := ExtractFileChanges(text)
	seen := make(map[string]struct{})
	var out []string
	for _, group := range [][]string{changes.Created, changes.Modified, changes.Deleted} {
		for _, path := range group {
			if _, ok := seen[path]; ok {
				continue
			}
			seen[path] = struct{}{}
			out = append(out, path)
		}
	}
	return out
}

func extract(pattern *regexp.Regexp, text string) []string {
	matches := pattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, match := range matches {
		path := strings.Trim(match[1], ".,;:)]}")
		if path == "" {
			continue
		}
		if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		out = append(out, path)
	}
	return out
}
