package report

import (
	"strconv"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// FormatPreview renders the pre-execution confirmation message: the
// refined plan plus an inline diff against the user's original wording so
// they can see what the refiner changed. When nothing changed, the diff
// section is omitted.
func FormatPreview(original, refined string, steps []string) string {
	var b strings.Builder
	b.WriteString("📋 About to execute:\n\n")
	b.WriteString(refined)
	b.WriteString("\n")

	if len(steps) > 0 {
		b.WriteString("\nPlanned steps:\n")
		for i, step := range steps {
			b.WriteString(strconv.Itoa(i+1) + ". " + step + "\n")
		}
	}

	if diff := inlineDiff(original, refined); diff != "" {
		b.WriteString("\nChanges from your request:\n")
		b.WriteString(diff)
		b.WriteString("\n")
	}

	b.WriteString("\nReply within a moment to cancel, or wait and it will start.")
	return b.String()
}

// inlineDiff marks deletions with ~strikethrough~ and insertions with
// *bold*, the markup both channels render.
func inlineDiff(original, refined string) string {
	if original == refined {
		return ""
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(original, refined, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var b strings.Builder
	changed := false
	for _, d := range diffs {
		text := d.Text
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			if strings.TrimSpace(text) == "" {
				continue
			}
			b.WriteString("~" + text + "~")
			changed = true
		case diffmatchpatch.DiffInsert:
			if strings.TrimSpace(text) == "" {
				b.WriteString(text)
				continue
			}
			b.WriteString("*" + text + "*")
			changed = true
		default:
			b.WriteString(text)
		}
	}
	if !changed {
		return ""
	}
	return b.String()
}

