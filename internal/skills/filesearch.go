package skills

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"
)

// maxSearchResults caps a file search so a match against / stays bounded.
const maxSearchResults = 100

var fileSearchPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:find|search(?: for)?|list)\s+(?:all\s+)?(?:files?\s+)?(?:named\s+|matching\s+)?([\w*?.\-/]+\.[\w*?]+)`),
	regexp.MustCompile(`(?:查找|搜索|找)\s*([\w*?.\-/]+\.[\w*?]+)\s*(?:文件)?`),
}

// FileSearch finds files under a root by glob pattern.
type FileSearch struct {
	root string
}

func NewFileSearch(root string) *FileSearch {
	return &FileSearch{root: root}
}

func (*FileSearch) Name() string           { return "file_search" }
func (*FileSearch) Description() string    { return "find files by name pattern under the work directory" }
func (*FileSearch) Permission() Permission { return PermReadOnly }

func (s *FileSearch) Match(prompt string) (map[string]string, bool) {
	for _, re := range fileSearchPatterns {
		if m := re.FindStringSubmatch(prompt); m != nil {
			return map[string]string{"pattern": m[1]}, true
		}
	}
	return nil, false
}

func (s *FileSearch) Execute(ctx context.Context, args map[string]string) (string, error) {
	pattern := args["pattern"]
	if pattern == "" {
		return "", fmt.Errorf("file_search: no pattern")
	}
	var matches []string
	truncated := false
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree, keep going
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if name := d.Name(); name == ".git" || name == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		ok, matchErr := filepath.Match(pattern, d.Name())
		if matchErr != nil {
			return matchErr
		}
		if ok {
			rel, relErr := filepath.Rel(s.root, path)
			if relErr != nil {
				rel = path
			}
			matches = append(matches, rel)
			if len(matches) >= maxSearchResults {
				truncated = true
				return filepath.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("file_search: %w", err)
	}
	if len(matches) == 0 {
		return fmt.Sprintf("找到 0 个文件 (no files matching %s)", pattern), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "找到 %d 个文件 (found %d files matching %s)", len(matches), len(matches), pattern)
	if truncated {
		b.WriteString(", showing first 100")
	}
	b.WriteString(":\n")
	for _, m := range matches {
		b.WriteString("- ")
		b.WriteString(m)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
