package memory

import (
	"fmt"
	"sort"
	"strings"
)

// FormatContext renders preferences, retrieved entries, and recent history
// into a prompt-ready block. Empty sections are omitted; an empty result
// means there is nothing worth injecting.
func FormatContext(prefs map[string]string, entries []*Entry, history []*Interaction) string {
	var b strings.Builder

	if len(prefs) > 0 {
		b.WriteString("User preferences:\n")
		keys := make([]string, 0, len(prefs))
		for k := range prefs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, prefs[k])
		}
	}

	if len(entries) > 0 {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("Relevant memories:\n")
		for _, e := range entries {
			fmt.Fprintf(&b, "- [%s] %s\n", e.Kind, e.Content)
		}
	}

	if len(history) > 0 {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("Recent interactions:\n")
		for _, h := range history {
			status := "ok"
			if !h.Success {
				status = "failed"
			}
			fmt.Fprintf(&b, "- (%s) %s\n", status, firstLine(h.Prompt))
		}
	}

	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const max = 120
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max]) + "..."
	}
	return s
}
