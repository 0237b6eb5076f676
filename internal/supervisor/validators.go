package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"hermes/internal/executor"
	jsonx "hermes/internal/shared/json"
)

// Outcome is a single validator's verdict on an execution result.
type Outcome struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Validator checks an execution result after the run completes. Validators
// are advisory: a failed check downgrades the report, it does not flip the
// task's success flag.
type Validator interface {
	Name() string
	Description() string
	Validate(result *executor.Result) Outcome
}

func combinedOutput(result *executor.Result) string {
	return result.Stdout + "\n" + result.Stderr
}

// RegexValidator passes when the pattern matches the combined output. With
// Required unset, empty output passes too.
type RegexValidator struct {
	Label    string
	Pattern  *regexp.Regexp
	Required bool
}

func (v *RegexValidator) Name() string { return v.Label }

func (v *RegexValidator) Description() string {
	if v.Pattern == nil {
		return "regex match"
	}
	return fmt.Sprintf("output matches %q", v.Pattern.String())
}

func (v *RegexValidator) Validate(result *executor.Result) Outcome {
	out := Outcome{Name: v.Label}
	if v.Pattern == nil {
		out.Detail = "no pattern configured"
		return out
	}
	text := strings.TrimSpace(combinedOutput(result))
	if text == "" && !v.Required {
		out.Passed = true
		return out
	}
	if v.Pattern.MatchString(text) {
		out.Passed = true
		return out
	}
	out.Detail = fmt.Sprintf("output does not match %q", v.Pattern.String())
	return out
}

// FileExistsValidator confirms that claimed file changes happened on disk:
// created/modified paths (extracted plus a configured required set) must
// exist under the work dir, deleted paths must be gone.
type FileExistsValidator struct {
	Root string
	// Required paths must exist regardless of what the output mentions.
	Required []string
}

func (v *FileExistsValidator) Name() string { return "file_exists" }

func (v *FileExistsValidator) Description() string {
	return "files mentioned in the output exist on disk"
}

func (v *FileExistsValidator) Validate(result *executor.Result) Outcome {
	out := Outcome{Name: v.Name()}
	var expect []string
	expect = append(expect, v.Required...)
	expect = append(expect, result.CreatedFiles...)
	expect = append(expect, result.ModifiedFiles...)

	var missing []string
	found := 0
	seen := make(map[string]struct{}, len(expect))
	for _, path := range expect {
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}
		if _, err := os.Stat(v.abs(path)); err != nil {
			missing = append(missing, path)
		} else {
			found++
		}
	}
	var lingering []string
	for _, path := range result.DeletedFiles {
		if _, err := os.Stat(v.abs(path)); err == nil {
			lingering = append(lingering, path)
		}
	}

	out.Passed = len(missing) == 0 && len(lingering) == 0
	var parts []string
	parts = append(parts, fmt.Sprintf("found %d/%d", found, len(seen)))
	if len(missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(missing, ", "))
	}
	if len(lingering) > 0 {
		parts = append(parts, "still present: "+strings.Join(lingering, ", "))
	}
	out.Detail = strings.Join(parts, "; ")
	return out
}

func (v *FileExistsValidator) abs(path string) string {
	if filepath.IsAbs(path) || v.Root == "" {
		return path
	}
	return filepath.Join(v.Root, path)
}

// JSONValidator passes when the output contains a well-formed JSON object
// or array: the first fenced block if present, otherwise the outermost
// brace/bracket span. RequiredFields must all be present on the root
// object.
type JSONValidator struct {
	RequiredFields []string
}

func (v *JSONValidator) Name() string { return "json" }

func (v *JSONValidator) Description() string { return "output contains well-formed JSON" }

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(.+?)```")

func (v *JSONValidator) Validate(result *executor.Result) Outcome {
	out := Outcome{Name: v.Name()}
	candidate := extractJSONBlock(result.Stdout)
	if candidate == "" {
		out.Detail = "no JSON block in output"
		return out
	}
	if !jsonx.Valid([]byte(candidate)) {
		out.Detail = "JSON block does not parse"
		return out
	}
	if len(v.RequiredFields) > 0 {
		var root map[string]jsonx.RawMessage
		if err := jsonx.Unmarshal([]byte(candidate), &root); err != nil {
			out.Detail = "root is not an object"
			return out
		}
		for _, field := range v.RequiredFields {
			if _, ok := root[field]; !ok {
				out.Detail = fmt.Sprintf("missing root field %q", field)
				return out
			}
		}
	}
	out.Passed = true
	return out
}

func extractJSONBlock(text string) string {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	for _, pair := range [][2]byte{{'{', '}'}, {'[', ']'}} {
		start := strings.IndexByte(text, pair[0])
		end := strings.LastIndexByte(text, pair[1])
		if start >= 0 && end > start {
			return text[start : end+1]
		}
	}
	return ""
}

// KeywordValidator requires every Required keyword and rejects any
// Forbidden one over the combined output. Matching is case-insensitive
// unless CaseSensitive is set.
type KeywordValidator struct {
	Required      []string
	Forbidden     []string
	CaseSensitive bool
}

func (v *KeywordValidator) Name() string { return "keyword" }

func (v *KeywordValidator) Description() string {
	return "required keywords present, forbidden ones absent"
}

func (v *KeywordValidator) Validate(result *executor.Result) Outcome {
	out := Outcome{Name: v.Name(), Passed: true}
	haystack := combinedOutput(result)
	norm := func(s string) string { return s }
	if !v.CaseSensitive {
		haystack = strings.ToLower(haystack)
		norm = strings.ToLower
	}
	for _, kw := range v.Required {
		if !strings.Contains(haystack, norm(kw)) {
			out.Passed = false
			out.Detail = fmt.Sprintf("missing required keyword %q", kw)
			return out
		}
	}
	for _, kw := range v.Forbidden {
		if strings.Contains(haystack, norm(kw)) {
			out.Passed = false
			out.Detail = fmt.Sprintf("found forbidden keyword %q", kw)
			return out
		}
	}
	return out
}

// CompositeMode selects how a composite combines its children.
type CompositeMode string

const (
	CompositeAll CompositeMode = "all"
	CompositeAny CompositeMode = "any"
)

// CompositeValidator combines child validators with all/any semantics.
type CompositeValidator struct {
	Mode     CompositeMode
	Children []Validator
}

func (v *CompositeValidator) Name() string { return "composite_" + string(v.Mode) }

func (v *CompositeValidator) Description() string {
	names := make([]string, len(v.Children))
	for i, c := range v.Children {
		names[i] = c.Name()
	}
	return fmt.Sprintf("%s of: %s", v.Mode, strings.Join(names, ", "))
}

func (v *CompositeValidator) Validate(result *executor.Result) Outcome {
	out := Outcome{Name: v.Name()}
	if len(v.Children) == 0 {
		out.Passed = true
		return out
	}
	var failures []string
	passedAny := false
	for _, child := range v.Children {
		childOut := child.Validate(result)
		if childOut.Passed {
			passedAny = true
			continue
		}
		failures = append(failures, fmt.Sprintf("%s: %s", childOut.Name, childOut.Detail))
	}
	switch v.Mode {
	case CompositeAny:
		out.Passed = passedAny
	default:
		out.Passed = len(failures) == 0
	}
	if !out.Passed {
		out.Detail = strings.Join(failures, "; ")
	}
	return out
}

// RunValidators applies each validator in order and reports all outcomes
// plus the overall verdict.
func RunValidators(validators []Validator, result *executor.Result) ([]Outcome, bool) {
	outcomes := make([]Outcome, 0, len(validators))
	allPassed := true
	for _, v := range validators {
		out := v.Validate(result)
		if !out.Passed {
			allPassed = false
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, allPassed
}
