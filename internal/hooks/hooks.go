// Package hooks generates the hooks.json file and companion shell scripts
// that let the code-generation CLI report lifecycle events back to the
// engine through an append-only event log.
package hooks

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"hermes/internal/logging"
	jsonx "hermes/internal/shared/json"
)

// Events the CLI fires, in lifecycle order.
var Events = []string{
	"PreTaskValidation",
	"PostToolUse",
	"TaskComplete",
	"PostExecutorComplete",
}

type entry struct {
	Command        string `json:"command"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

type fileSchema struct {
	Version int              `json:"version"`
	Hooks   map[string]entry `json:"hooks"`
}

// Generator writes hook configuration into a target directory.
type Generator struct {
	logger logging.Logger
	// EventLog is where the emitted scripts append their records.
	EventLog string
}

func NewGenerator(eventLog string, logger logging.Logger) *Generator {
	return &Generator{logger: logging.OrNop(logger), EventLog: eventLog}
}

// Generate writes <dir>/hooks.json plus one script per event under
// <dir>/scripts/. Existing files are overwritten so regeneration after a
// config change is safe.
func (g *Generator) Generate(dir string) error {
	scriptsDir := filepath.Join(dir, "scripts")
	if err := os.MkdirAll(scriptsDir, 0o755); err != nil {
		return fmt.Errorf("create hooks dir: %w", err)
	}

	schema := fileSchema{Version: 1, Hooks: make(map[string]entry, len(Events))}
	for _, event := range Events {
		scriptPath := filepath.Join(scriptsDir, scriptName(event))
		if err := os.WriteFile(scriptPath, []byte(g.script(event)), 0o755); err != nil {
			return fmt.Errorf("write hook script %s: %w", event, err)
		}
		schema.Hooks[event] = entry{Command: scriptPath, TimeoutSeconds: 10}
	}

	data, err := jsonx.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal hooks.json: %w", err)
	}
	path := filepath.Join(dir, "hooks.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write hooks.json: %w", err)
	}
	g.logger.Info("hooks: generated %s with %d events", path, len(Events))
	return nil
}

// scriptName converts an event like PostToolUse to post_tool_use.sh.
func scriptName(event string) string {
	var b strings.Builder
	for i, r := range event {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String() + ".sh"
}

func (g *Generator) script(event string) string {
	return fmt.Sprintf(`#!/bin/sh
# Appends one line per %s event; the engine tails this file.
printf '%%s %s %%s\n' "$(date -u +%%Y-%%m-%%dT%%H:%%M:%%SZ)" "$*" >> %q
`, event, event, g.EventLog)
}
