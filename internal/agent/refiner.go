package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hermes/internal/llm"
	"hermes/internal/logging"
	jsonx "hermes/internal/shared/json"
	tokenutil "hermes/internal/shared/token"
	"hermes/internal/state"
)

const refinerSystemPrompt = `You rewrite a user's coding request into a precise, imperative instruction
for an autonomous code-generation CLI. Reply with JSON only:
{
  "refined_prompt": the rewritten instruction, concrete and self-contained,
  "clarifications": questions to ask when the request is ambiguous (empty list when clear),
  "suggested_steps": ordered steps the executor will likely take,
  "confidence": number between 0 and 1,
  "intent_type": short label of the request kind,
  "reasoning": one sentence on how you interpreted the request
}`

// contextTokenBudget caps the rendered system-context block.
const contextTokenBudget = 1200

// Refiner rewrites raw prompts into executable instructions.
type Refiner struct {
	client llm.Client
	logger logging.Logger
	clock  func() time.Time
}

// NewRefiner creates a refiner. A nil client yields local-only refinement.
func NewRefiner(client llm.Client, logger logging.Logger) *Refiner {
	return &Refiner{client: client, logger: logging.OrNop(logger), clock: time.Now}
}

// Refine rewrites prompt with the system context rendered into the request.
// It never returns an error: failures degrade to the locally normalized
// prompt with confidence 0.5.
func (r *Refiner) Refine(ctx context.Context, prompt string, view state.Snapshot, sessionStats string) *RefinedResult {
	normalized := Normalize(prompt)

	if r.client == nil {
		return r.QuickRefine(prompt)
	}

	contextBlock := tokenutil.TruncateToBudget(renderContext(view, sessionStats), contextTokenBudget)

	var user strings.Builder
	user.WriteString("## System context\n")
	user.WriteString(contextBlock)
	fmt.Fprintf(&user, "\n\n## Current time\n%s\n", r.clock().Format(time.RFC3339))
	user.WriteString("\n## User request\n")
	user.WriteString(normalized)

	resp, err := r.client.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: refinerSystemPrompt},
			{Role: "user", Content: user.String()},
		},
		Temperature: 0.3,
		MaxTokens:   1000,
	})
	if err != nil {
		r.logger.Warn("refiner llm call failed, passing normalized prompt through: %v", err)
		return r.QuickRefine(prompt)
	}

	var result RefinedResult
	if err := decodeLLMJSON(resp.Content, &result); err != nil {
		r.logger.Warn("refiner response unparseable, using raw text: %v", err)
		// The model replied with prose; treat it as the refined prompt.
		raw := strings.TrimSpace(resp.Content)
		if raw == "" {
			raw = normalized
		}
		return &RefinedResult{
			RefinedPrompt:  raw,
			Confidence:     0.5,
			OriginalPrompt: prompt,
		}
	}

	if strings.TrimSpace(result.RefinedPrompt) == "" {
		result.RefinedPrompt = normalized
	}
	if result.Confidence <= 0 || result.Confidence > 1 {
		result.Confidence = 0.5
	}
	result.OriginalPrompt = prompt
	return &result
}

// QuickRefine is the local-only path: normalization, confidence 0.5.
func (r *Refiner) QuickRefine(prompt string) *RefinedResult {
	return &RefinedResult{
		RefinedPrompt:  Normalize(prompt),
		Confidence:     0.5,
		OriginalPrompt: prompt,
	}
}

// renderContext produces the system-status block: last status, recent error,
// recent file changes, project context, task counters.
func renderContext(view state.Snapshot, sessionStats string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "status: %s\n", view.LastStatus)
	if view.LastError != "" {
		when := ""
		if view.LastErrorTimestamp != nil {
			when = view.LastErrorTimestamp.Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "last error: %s (%s)\n", view.LastError, when)
	}

	changes := view.ModifiedFiles
	if len(changes) > 5 {
		changes = changes[len(changes)-5:]
	}
	if len(changes) > 0 {
		b.WriteString("recent file changes:\n")
		for _, change := range changes {
			fmt.Fprintf(&b, "  [%s] %s\n", change.ChangeType, change.FilePath)
		}
	}

	if len(view.ProjectContext) > 0 {
		if data, err := jsonx.Marshal(view.ProjectContext); err == nil {
			fmt.Fprintf(&b, "project context: %s\n", data)
		}
	}

	fmt.Fprintf(&b, "tasks completed: %d, failed: %d\n", view.CompletedTasksCount, view.FailedTasksCount)
	if sessionStats != "" {
		fmt.Fprintf(&b, "session: %s\n", sessionStats)
	}
	return b.String()
}

// NeedsClarification reports whether the pipeline must escalate with
// questions instead of executing.
func (result *RefinedResult) NeedsClarification() bool {
	return result.Confidence < ClarificationThreshold && len(result.Clarifications) > 0
}
