// Package agent holds the two LLM-backed reasoning steps of the pipeline:
// intent understanding against recent task context, and prompt refinement
// into a precise executable instruction.
package agent

// Intent classifies a user message relative to recent task context.
type Intent string

const (
	IntentNewTask       Intent = "new_task"
	IntentContinue      Intent = "continue"
	IntentModify        Intent = "modify"
	IntentCancel        Intent = "cancel"
	IntentClarification Intent = "clarification"
	IntentConfirm       Intent = "confirm"
)

// ValidIntent reports whether s is one of the six known intents.
func ValidIntent(s string) bool {
	switch Intent(s) {
	case IntentNewTask, IntentContinue, IntentModify, IntentCancel, IntentClarification, IntentConfirm:
		return true
	}
	return false
}

// intentAliases maps near-miss labels the model tends to produce onto the
// canonical enum.
var intentAliases = map[string]Intent{
	"new":           IntentNewTask,
	"task":          IntentNewTask,
	"create":        IntentNewTask,
	"continue_task": IntentContinue,
	"continuation":  IntentContinue,
	"modification":  IntentModify,
	"change":        IntentModify,
	"abort":         IntentCancel,
	"stop":          IntentCancel,
	"question":      IntentClarification,
	"clarify":       IntentClarification,
	"confirmation":  IntentConfirm,
	"ack":           IntentConfirm,
}

// NormalizeIntent maps s onto the canonical enum, defaulting to new_task.
func NormalizeIntent(s string) Intent {
	if ValidIntent(s) {
		return Intent(s)
	}
	if mapped, ok := intentAliases[s]; ok {
		return mapped
	}
	return IntentNewTask
}

// UnderstandingResult is the output of the understanding agent.
type UnderstandingResult struct {
	Intent             Intent   `json:"intent_type"`
	Understanding      string   `json:"understanding"`
	ShouldInterrupt    bool     `json:"should_interrupt"`
	ContextSummary     string   `json:"context_summary"`
	RelatedTaskID      string   `json:"related_task_id,omitempty"`
	Confidence         float64  `json:"confidence"`
	SuggestedQuestions []string `json:"suggested_questions,omitempty"`
}

// RefinedResult is the output of the refiner.
type RefinedResult struct {
	RefinedPrompt  string   `json:"refined_prompt"`
	Clarifications []string `json:"clarifications,omitempty"`
	SuggestedSteps []string `json:"suggested_steps,omitempty"`
	Confidence     float64  `json:"confidence"`
	Intent         string   `json:"intent_type,omitempty"`
	Reasoning      string   `json:"reasoning,omitempty"`
	OriginalPrompt string   `json:"original_prompt"`
}

// ClarificationThreshold: below this confidence, present clarifications
// instead of executing.
const ClarificationThreshold = 0.6
