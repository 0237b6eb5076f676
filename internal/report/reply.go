// Package report turns execution outcomes into channel replies and
// Markdown artifacts.
package report

import (
	"fmt"
	"strings"

	"hermes/internal/supervisor"
)

const (
	// maxReplyLen is the longest reply a chat channel will accept from us.
	maxReplyLen = 3000
	// truncatedReplyLen is where we cut when a reply is over the limit,
	// leaving room for the truncation footer.
	truncatedReplyLen = 2500
	// maxFailureDetail bounds how much raw error output goes to the user.
	maxFailureDetail = 500
)

// FormatReply renders the user-facing reply for a finished task.
func FormatReply(result *supervisor.MonitoredResult, outcomes []supervisor.Outcome, validationPassed bool) string {
	switch {
	case result.TimedOut:
		return formatPartial(result)
	case result.Success && validationPassed:
		return formatSuccess(result)
	case result.Success:
		return formatValidationFailure(result, outcomes)
	default:
		return formatFailure(result)
	}
}

func formatSuccess(result *supervisor.MonitoredResult) string {
	var b strings.Builder
	b.WriteString("✅ Task completed")
	fmt.Fprintf(&b, " in %.0fs\n\n", result.DurationSeconds)
	b.WriteString(summarizeOutput(result.Stdout))
	writeFileChanges(&b, result)
	return truncateReply(b.String())
}

func formatPartial(result *supervisor.MonitoredResult) string {
	var b strings.Builder
	b.WriteString("⚠️ Task interrupted (partial results)\n\n")
	fmt.Fprintf(&b, "The task produced no output for %d seconds and was stopped.\n", result.InactiveSeconds)
	if out := strings.TrimSpace(result.Stdout); out != "" {
		b.WriteString("\nOutput so far:\n")
		b.WriteString(summarizeOutput(out))
	}
	writeFileChanges(&b, result)
	return truncateReply(b.String())
}

func formatFailure(result *supervisor.MonitoredResult) string {
	var b strings.Builder
	b.WriteString("❌ Task failed")
	if result.ExitCode != 0 {
		fmt.Fprintf(&b, " (exit code %d)", result.ExitCode)
	}
	b.WriteString("\n\n")
	detail := strings.TrimSpace(result.Error)
	if stderr := strings.TrimSpace(result.Stderr); stderr != "" {
		detail = detail + "\n" + stderr
	}
	b.WriteString(truncateRunes(strings.TrimSpace(detail), maxFailureDetail))
	return truncateReply(b.String())
}

func formatValidationFailure(result *supervisor.MonitoredResult, outcomes []supervisor.Outcome) string {
	var b strings.Builder
	b.WriteString("⚠️ Task finished but validation did not pass\n\n")
	for _, o := range outcomes {
		if o.Passed {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", o.Name, o.Detail)
	}
	b.WriteString("\n")
	b.WriteString(summarizeOutput(result.Stdout))
	writeFileChanges(&b, result)
	return truncateReply(b.String())
}

func writeFileChanges(b *strings.Builder, result *supervisor.MonitoredResult) {
	total := len(result.CreatedFiles) + len(result.ModifiedFiles) + len(result.DeletedFiles)
	if total == 0 {
		return
	}
	fmt.Fprintf(b, "\nFile changes (%d):\n", total)
	for _, f := range result.CreatedFiles {
		fmt.Fprintf(b, "+ %s\n", f)
	}
	for _, f := range result.ModifiedFiles {
		fmt.Fprintf(b, "~ %s\n", f)
	}
	for _, f := range result.DeletedFiles {
		fmt.Fprintf(b, "- %s\n", f)
	}
}

// summarizeOutput keeps the tail of long output; the end of a run is where
// the conclusion lives.
func summarizeOutput(stdout string) string {
	out := strings.TrimSpace(stdout)
	if out == "" {
		return "(no output)"
	}
	runes := []rune(out)
	if len(runes) <= 1500 {
		return out
	}
	tail := string(runes[len(runes)-1500:])
	if i := strings.IndexByte(tail, '\n'); i >= 0 && i < len(tail)-1 {
		tail = tail[i+1:]
	}
	return "...\n" + tail
}

func truncateReply(reply string) string {
	runes := []rune(reply)
	if len(runes) <= maxReplyLen {
		return reply
	}
	return string(runes[:truncatedReplyLen]) + "\n\n... (output truncated, full report in the task document)"
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
