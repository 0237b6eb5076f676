package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"hermes/internal/logging"
	"hermes/internal/state"
	"hermes/internal/supervisor"
)

// taskLogName is the index file listing every task document.
const taskLogName = "TASK_LOG.md"

// ArtifactWriter produces one Markdown document per finished task under
// <root>/tasks/ and keeps TASK_LOG.md as an index. Documents are named
// task_YYYYMMDD_NNN.md with NNN counting up per day.
type ArtifactWriter struct {
	mu     sync.Mutex
	root   string
	logger logging.Logger
	clock  func() time.Time
}

func NewArtifactWriter(root string, logger logging.Logger) *ArtifactWriter {
	return &ArtifactWriter{
		root:   root,
		logger: logging.OrNop(logger),
		clock:  time.Now,
	}
}

func (w *ArtifactWriter) tasksDir() string {
	return filepath.Join(w.root, "tasks")
}

// nextDocName picks the first unused task_YYYYMMDD_NNN.md for today.
func (w *ArtifactWriter) nextDocName(day string) string {
	for n := 1; ; n++ {
		name := fmt.Sprintf("task_%s_%03d.md", day, n)
		if _, err := os.Stat(filepath.Join(w.tasksDir(), name)); os.IsNotExist(err) {
			return name
		}
	}
}

// Write renders the task document, updates the index, and returns the
// document path relative to the artifact root.
func (w *ArtifactWriter) Write(task *state.TaskInfo, result *supervisor.MonitoredResult, outcomes []supervisor.Outcome, steps []string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.tasksDir(), 0o755); err != nil {
		return "", fmt.Errorf("create tasks dir: %w", err)
	}
	now := w.clock()
	name := w.nextDocName(now.Format("20060102"))
	rel := filepath.Join("tasks", name)
	path := filepath.Join(w.tasksDir(), name)

	doc := renderTaskDoc(task, result, outcomes, steps, now)
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return "", fmt.Errorf("write task doc: %w", err)
	}
	if err := w.appendIndex(task, rel, now); err != nil {
		w.logger.Warn("report: update %s: %v", taskLogName, err)
	}
	w.logger.Info("report: wrote %s for task %s", rel, task.TaskID)
	return rel, nil
}

func renderTaskDoc(task *state.TaskInfo, result *supervisor.MonitoredResult, outcomes []supervisor.Outcome, steps []string, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Task %s\n\n", task.TaskID)

	b.WriteString("## Metadata\n\n")
	fmt.Fprintf(&b, "- **Status:** %s\n", task.Status)
	fmt.Fprintf(&b, "- **Sender:** %s\n", task.Sender)
	fmt.Fprintf(&b, "- **Channel:** %s\n", task.Channel)
	fmt.Fprintf(&b, "- **Intent:** %s\n", task.IntentType)
	fmt.Fprintf(&b, "- **Confidence:** %.2f\n", task.Confidence)
	fmt.Fprintf(&b, "- **Created:** %s\n", task.CreatedAt.Format(time.RFC3339))
	if task.StartedAt != nil {
		fmt.Fprintf(&b, "- **Started:** %s\n", task.StartedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "- **Finished:** %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Duration:** %.1fs\n", result.DurationSeconds)

	b.WriteString("\n## Original Request\n\n")
	b.WriteString(task.OriginalPrompt)
	b.WriteString("\n")

	if task.RefinedPrompt != "" && task.RefinedPrompt != task.OriginalPrompt {
		b.WriteString("\n## Refined Prompt\n\n")
		b.WriteString(task.RefinedPrompt)
		b.WriteString("\n")
	}

	if len(steps) > 0 {
		b.WriteString("\n## Plan\n\n")
		for i, step := range steps {
			fmt.Fprintf(&b, "%d. %s\n", i+1, step)
		}
	}

	b.WriteString("\n## Execution Output\n\n```\n")
	b.WriteString(truncateRunes(strings.TrimSpace(result.Stdout), 20000))
	b.WriteString("\n```\n")
	if stderr := strings.TrimSpace(result.Stderr); stderr != "" {
		b.WriteString("\n### Stderr\n\n```\n")
		b.WriteString(truncateRunes(stderr, 5000))
		b.WriteString("\n```\n")
	}

	total := len(result.CreatedFiles) + len(result.ModifiedFiles) + len(result.DeletedFiles)
	if total > 0 {
		b.WriteString("\n## File Changes\n\n")
		for _, f := range result.CreatedFiles {
			fmt.Fprintf(&b, "- created `%s`\n", f)
		}
		for _, f := range result.ModifiedFiles {
			fmt.Fprintf(&b, "- modified `%s`\n", f)
		}
		for _, f := range result.DeletedFiles {
			fmt.Fprintf(&b, "- deleted `%s`\n", f)
		}
	}

	if len(outcomes) > 0 {
		b.WriteString("\n## Validation\n\n")
		for _, o := range outcomes {
			mark := "✅"
			if !o.Passed {
				mark = "❌"
			}
			fmt.Fprintf(&b, "- %s %s", mark, o.Name)
			if o.Detail != "" {
				fmt.Fprintf(&b, ": %s", o.Detail)
			}
			b.WriteString("\n")
		}
	}

	if result.Error != "" {
		b.WriteString("\n## Errors\n\n")
		b.WriteString(result.Error)
		b.WriteString("\n")
	}
	return b.String()
}

// appendIndex adds one row per task to TASK_LOG.md. A task that already
// has a row (same task ID) is not indexed twice.
func (w *ArtifactWriter) appendIndex(task *state.TaskInfo, docRel string, now time.Time) error {
	path := filepath.Join(w.root, taskLogName)
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if strings.Contains(string(existing), "["+task.TaskID+"]") {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if len(existing) == 0 {
		if _, err := f.WriteString("# Task Log\n\n| Date | Status | Task | Description |\n|------|--------|------|-------------|\n"); err != nil {
			return err
		}
	}
	row := fmt.Sprintf("| %s | %s | [%s](%s) | %s |\n",
		now.Format("2006-01-02 15:04"), task.Status, task.TaskID, docRel, indexDescription(task.OriginalPrompt))
	_, err = f.WriteString(row)
	return err
}

// indexDescription is the first prompt line, pipe-escaped and capped so the
// index table stays one row per task.
func indexDescription(prompt string) string {
	line := strings.TrimSpace(prompt)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	line = strings.ReplaceAll(line, "|", "\\|")
	if runes := []rune(line); len(runes) > 60 {
		line = string(runes[:60]) + "…"
	}
	return line
}
