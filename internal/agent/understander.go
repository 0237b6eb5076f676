package agent

import (
	"context"
	"fmt"
	"strings"

	"hermes/internal/llm"
	"hermes/internal/logging"
	"hermes/internal/state"
)

const understandingSystemPrompt = `You classify a user's message relative to their recent coding tasks.
Reply with JSON only, no prose, using exactly these fields:
{
  "intent_type": one of "new_task" | "continue" | "modify" | "cancel" | "clarification" | "confirm",
  "understanding": one-sentence restatement of what the user wants,
  "should_interrupt": true when the message should interrupt the currently running task,
  "context_summary": short summary of how this relates to recent tasks,
  "related_task_id": id of the related task or "",
  "confidence": number between 0 and 1,
  "suggested_questions": list of questions to ask if the message is unclear
}`

// Understander classifies inbound messages against recent task context.
type Understander struct {
	client llm.Client
	logger logging.Logger
}

// NewUnderstander creates an understander. A nil client forces the keyword
// fallback path.
func NewUnderstander(client llm.Client, logger logging.Logger) *Understander {
	return &Understander{client: client, logger: logging.OrNop(logger)}
}

// Understand classifies prompt. It never returns an error: any LLM or parse
// failure degrades to the keyword heuristics.
func (u *Understander) Understand(ctx context.Context, prompt string, recent []*state.TaskInfo, current *state.TaskInfo) *UnderstandingResult {
	if u.client == nil {
		return u.QuickUnderstand(prompt, current)
	}

	resp, err := u.client.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: understandingSystemPrompt},
			{Role: "user", Content: buildUnderstandingContext(prompt, recent, current)},
		},
		Temperature: 0.3,
		MaxTokens:   800,
	})
	if err != nil {
		u.logger.Warn("understanding llm call failed, using keyword fallback: %v", err)
		return u.QuickUnderstand(prompt, current)
	}

	var result UnderstandingResult
	if err := decodeLLMJSON(resp.Content, &result); err != nil {
		u.logger.Warn("understanding response unparseable, using keyword fallback: %v", err)
		return u.QuickUnderstand(prompt, current)
	}

	result.Intent = NormalizeIntent(string(result.Intent))
	if result.Confidence <= 0 || result.Confidence > 1 {
		result.Confidence = 0.5
	}
	// An interrupt without a running task is meaningless.
	if current == nil {
		result.ShouldInterrupt = false
	}
	return &result
}

// QuickUnderstand applies the keyword heuristics without calling the LLM.
// Priority: clarification, confirm, cancel, continue, modify, new_task.
func (u *Understander) QuickUnderstand(prompt string, current *state.TaskInfo) *UnderstandingResult {
	lower := strings.ToLower(strings.TrimSpace(prompt))

	result := &UnderstandingResult{
		Understanding:  prompt,
		Confidence:     0.5,
		ContextSummary: "keyword fallback (no llm classification)",
	}

	switch {
	case isQuestion(lower):
		result.Intent = IntentClarification
	case containsAny(lower, "ok", "okay", "yes", "yep", "go ahead", "sounds good", "sure", "好的", "好", "是的", "确认", "可以"):
		result.Intent = IntentConfirm
	case containsAny(lower, "cancel", "stop", "abort", "取消", "停止", "算了"):
		result.Intent = IntentCancel
	case containsAny(lower, "continue", "also", "furthermore", "then ", "继续", "另外", "还有"):
		result.Intent = IntentContinue
	case containsAny(lower, "change to", "modify", "rewrite", "instead", "改成", "修改", "改一下"):
		result.Intent = IntentModify
	default:
		result.Intent = IntentNewTask
	}

	if current != nil && (result.Intent == IntentContinue || result.Intent == IntentModify || result.Intent == IntentConfirm || result.Intent == IntentCancel) {
		result.RelatedTaskID = current.TaskID
	}
	return result
}

func isQuestion(lower string) bool {
	if strings.Contains(lower, "?") || strings.Contains(lower, "？") {
		return true
	}
	for _, word := range []string{"how ", "what ", "why ", "which ", "怎么", "什么", "为什么", "吗"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

func containsAny(haystack string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

// buildUnderstandingContext renders the stable format the classifier sees:
// current task block, recent task block, analysis request.
func buildUnderstandingContext(prompt string, recent []*state.TaskInfo, current *state.TaskInfo) string {
	var b strings.Builder

	if current != nil {
		b.WriteString("## Currently processing task\n")
		fmt.Fprintf(&b, "- id: %s\n- status: %s\n- prompt: %s\n\n",
			current.TaskID, current.Status, current.OriginalPrompt)
	} else {
		b.WriteString("## Currently processing task\nnone\n\n")
	}

	b.WriteString("## Recent tasks (newest first)\n")
	if len(recent) == 0 {
		b.WriteString("none\n")
	}
	for _, task := range recent {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", task.Status, task.TaskID, task.OriginalPrompt)
	}

	b.WriteString("\n## User message\n")
	b.WriteString(prompt)
	b.WriteString("\n\nClassify the user message against this context.")
	return b.String()
}
