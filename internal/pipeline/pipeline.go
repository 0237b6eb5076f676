// Package pipeline drives the per-task orchestration: understanding,
// skill interception, refinement, preview, supervised execution,
// validation, and reporting. One task at a time; pollers only enqueue.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hermes/internal/agent"
	"hermes/internal/channels"
	"hermes/internal/executor"
	"hermes/internal/logging"
	"hermes/internal/memory"
	"hermes/internal/observability"
	"hermes/internal/report"
	"hermes/internal/session"
	"hermes/internal/skills"
	"hermes/internal/state"
	"hermes/internal/supervisor"
)

// Config tunes pipeline behavior.
type Config struct {
	// WorkDir is where the executor runs.
	WorkDir string
	// PreviewPause is the window between preview and execution in which a
	// new message can still interrupt.
	PreviewPause time.Duration
	// SessionReuse passes a per-sender session name to the executor.
	SessionReuse bool
}

// Deps are the injected collaborators. Everything the pipeline touches
// comes in here; it owns none of their lifecycles.
type Deps struct {
	Store        *state.Store
	Understander *agent.Understander
	Refiner      *agent.Refiner
	Executor     *executor.Executor
	Monitor      *supervisor.Monitor
	Validators   []supervisor.Validator
	Skills       *skills.Registry
	Sessions     *session.Manager
	Memory       *memory.Store
	Retriever    *memory.Retriever
	Artifacts    *report.ArtifactWriter
	Adapters     map[string]channels.Adapter
	Metrics      *observability.Metrics
	Tracer       *observability.TracerProvider
	Logger       logging.Logger
}

type Pipeline struct {
	deps Deps
	cfg  Config
	log  logging.Logger
}

func New(deps Deps, cfg Config) *Pipeline {
	if cfg.PreviewPause <= 0 {
		cfg.PreviewPause = 2 * time.Second
	}
	if deps.Tracer == nil {
		deps.Tracer, _ = observability.NewTracerProvider(observability.TracingConfig{})
	}
	return &Pipeline{deps: deps, cfg: cfg, log: logging.OrNop(deps.Logger)}
}

// ProcessNext pulls one task from the queue head and runs it to a terminal
// state. Returns false when the queue was empty. Panics inside a task are
// contained: the task fails, the user gets an apology, the loop survives.
func (p *Pipeline) ProcessNext(ctx context.Context) (processed bool, err error) {
	task := p.deps.Store.NextTask()
	if task == nil {
		return false, nil
	}

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("internal error: %v", r)
			p.log.Error("pipeline: panic in task %s: %v", task.TaskID, r)
			p.deps.Store.RecordError(msg, time.Now())
			_ = p.deps.Store.FinishTask(task.TaskID, state.TaskFailed, state.TaskUpdate{Error: msg})
			p.reply(ctx, task, "😥 Something went wrong on my side while handling your task. Please try again.")
			err = fmt.Errorf("task %s: %s", task.TaskID, msg)
			processed = true
		}
	}()

	ctx, span := p.deps.Tracer.StartSpan(ctx, observability.SpanPipelineProcess,
		observability.TaskAttrs(task.TaskID, task.Channel)...)
	defer span.End()

	p.log.Info("pipeline: processing %s from %s/%s", task.TaskID, task.Channel, task.Sender)
	p.deps.Store.UpdateStatus(state.StatusRunning)
	defer p.deps.Store.UpdateStatus(state.StatusIdle)

	p.process(ctx, task)
	return true, nil
}

func (p *Pipeline) process(ctx context.Context, task *state.TaskInfo) {
	start := time.Now()
	sess := p.deps.Sessions.GetOrCreate(task.Sender, task.Channel)
	sess.AddMessage("user", task.OriginalPrompt)
	defer p.deps.Sessions.Save(sess)

	// Step 2-3: understand against recent context.
	recent := p.deps.Store.RecentTasks(5)
	prior := priorTaskFor(task.Sender, recent)
	understanding := p.deps.Understander.Understand(ctx, task.OriginalPrompt, recent, prior)
	p.log.Info("pipeline: %s intent=%s confidence=%.2f", task.TaskID, understanding.Intent, understanding.Confidence)

	// Step 4: branch on intent.
	switch understanding.Intent {
	case agent.IntentCancel:
		p.finish(ctx, task, sess, state.TaskCancelled, "🚫 Okay, cancelled.", "", start)
		return
	case agent.IntentClarification:
		p.finish(ctx, task, sess, state.TaskCompleted, clarificationReply(understanding), "", start)
		return
	case agent.IntentConfirm:
		if prior != nil && prior.RefinedPrompt != "" {
			p.executeAndReport(ctx, task, sess, prior.RefinedPrompt, nil, start)
			return
		}
		// No prior refined prompt to confirm; treat as a fresh request.
	}

	// Skill interception before any LLM refinement.
	if p.trySkill(ctx, task, sess, start) {
		return
	}

	// Step 5: refine.
	refined := p.refine(ctx, task, sess)
	if refined.NeedsClarification() {
		p.finish(ctx, task, sess, state.TaskCompleted, numberedQuestions(refined.Clarifications), "", start)
		return
	}

	// Step 6: preview with an interruptible pause.
	p.reply(ctx, task, report.FormatPreview(task.OriginalPrompt, refined.RefinedPrompt, refined.SuggestedSteps))
	select {
	case <-time.After(p.cfg.PreviewPause):
	case <-ctx.Done():
		_ = p.deps.Store.FinishTask(task.TaskID, state.TaskCancelled, state.TaskUpdate{Error: ctx.Err().Error()})
		return
	}

	// Steps 7-10.
	p.executeAndReport(ctx, task, sess, refined.RefinedPrompt, refined.SuggestedSteps, start)
}

func (p *Pipeline) refine(ctx context.Context, task *state.TaskInfo, sess *session.Session) *agent.RefinedResult {
	ctx, span := p.deps.Tracer.StartSpan(ctx, observability.SpanRefine)
	defer span.End()

	stats := sess.Stats()
	if memCtx := p.memoryContext(ctx, task); memCtx != "" {
		stats += "\n" + memCtx
	}
	refined := p.deps.Refiner.Refine(ctx, task.OriginalPrompt, p.deps.Store.View(), stats)
	confidence := refined.Confidence
	_ = p.deps.Store.UpdateTask(task.TaskID, state.TaskUpdate{
		RefinedPrompt: refined.RefinedPrompt,
		IntentType:    refined.Intent,
		Confidence:    &confidence,
	})
	return refined
}

func (p *Pipeline) memoryContext(ctx context.Context, task *state.TaskInfo) string {
	if p.deps.Retriever == nil {
		return ""
	}
	entries, err := p.deps.Retriever.Retrieve(ctx, task.Sender, task.OriginalPrompt)
	if err != nil {
		p.log.Warn("pipeline: memory retrieval for %s: %v", task.TaskID, err)
	}
	prefs := p.deps.Memory.Preferences(task.Sender)
	history := p.deps.Memory.RecentInteractions(task.Sender, 3)
	return memory.FormatContext(prefs, entries, history)
}

// trySkill answers simple prompts locally. A skill failure falls through to
// normal refinement.
func (p *Pipeline) trySkill(ctx context.Context, task *state.TaskInfo, sess *session.Session, start time.Time) bool {
	if p.deps.Skills == nil {
		return false
	}
	skill, args, ok := p.deps.Skills.Match(task.OriginalPrompt)
	if !ok {
		return false
	}
	output, err := skill.Execute(ctx, args)
	if err != nil {
		p.log.Warn("pipeline: skill %s failed on %s, falling through: %v", skill.Name(), task.TaskID, err)
		return false
	}
	p.log.Info("pipeline: %s answered by skill %s", task.TaskID, skill.Name())
	p.deps.Metrics.RecordSkillHit(ctx, skill.Name())
	p.finish(ctx, task, sess, state.TaskCompleted, output, "", start)
	return true
}

func (p *Pipeline) executeAndReport(ctx context.Context, task *state.TaskInfo, sess *session.Session, prompt string, steps []string, start time.Time) {
	ctx, span := p.deps.Tracer.StartSpan(ctx, observability.SpanExecute)
	defer span.End()

	taskType := supervisor.InferTaskType(prompt)
	run, err := p.deps.Executor.Start(ctx, prompt, p.cfg.WorkDir, p.sessionName(task))
	if err != nil {
		msg := fmt.Sprintf("could not start the executor: %v", err)
		p.deps.Store.RecordError(msg, time.Now())
		p.finishFailed(ctx, task, sess, msg, start)
		return
	}

	notify := func(nctx context.Context, text string) { p.reply(nctx, task, text) }
	monitored := p.deps.Monitor.Watch(ctx, run, taskType, notify)
	p.deps.Metrics.RecordExecution(ctx, monitored.Success, time.Duration(monitored.DurationSeconds*float64(time.Second)))
	if monitored.TimedOut {
		p.deps.Metrics.RecordMonitorKill(ctx, string(taskType))
	}

	// Step 8: validators are advisory.
	outcomes, validationPassed := supervisor.RunValidators(p.deps.Validators, monitored.Result)

	// Step 9: a timeout that still produced output counts as (partial)
	// success rather than a hard failure.
	if promoteTimeout(monitored) {
		monitored.Success = true
	}

	// Step 10: report, persist, remember.
	reply := report.FormatReply(monitored, outcomes, validationPassed)
	artifactPath := ""
	status := state.TaskFailed
	if monitored.Success {
		status = state.TaskCompleted
	}
	task.Status = status // rendered into the artifact
	if p.deps.Artifacts != nil {
		if rel, artErr := p.deps.Artifacts.Write(task, monitored, outcomes, steps); artErr != nil {
			p.log.Warn("pipeline: artifact for %s: %v", task.TaskID, artErr)
		} else {
			artifactPath = rel
			reply += "\n\n📄 Full report: " + rel
		}
	}

	p.recordFileChanges(task, monitored)
	p.finishWithResult(ctx, task, sess, status, reply, artifactPath, monitored, start)
}

// promoteTimeout decides whether a failed run still counts as partial
// success: it produced output and died of a timeout, either because the
// monitor killed it or because the CLI itself reported a timeout-like error.
func promoteTimeout(m *supervisor.MonitoredResult) bool {
	if m.Success || strings.TrimSpace(m.Stdout) == "" {
		return false
	}
	return m.TimedOut || timeoutLikeError(m.Error)
}

// timeoutLikeError reports whether an executor error reads as a timeout
// rather than a real failure.
func timeoutLikeError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "timed out") ||
		strings.Contains(lower, "deadline exceeded")
}

func (p *Pipeline) recordFileChanges(task *state.TaskInfo, monitored *supervisor.MonitoredResult) {
	for _, f := range monitored.CreatedFiles {
		p.deps.Store.AddFileChange(f, "created", "executor")
	}
	for _, f := range monitored.ModifiedFiles {
		p.deps.Store.AddFileChange(f, "modified", "executor")
	}
	for _, f := range monitored.DeletedFiles {
		p.deps.Store.AddFileChange(f, "deleted", "executor")
	}
}

func (p *Pipeline) finishWithResult(ctx context.Context, task *state.TaskInfo, sess *session.Session, status state.TaskStatus, reply, artifactPath string, monitored *supervisor.MonitoredResult, start time.Time) {
	update := state.TaskUpdate{
		CreatedFiles:  monitored.CreatedFiles,
		ModifiedFiles: monitored.ModifiedFiles,
		DeletedFiles:  monitored.DeletedFiles,
	}
	if !monitored.Success {
		update.Error = monitored.Error
	}
	if err := p.deps.Store.FinishTask(task.TaskID, status, update); err != nil {
		p.log.Error("pipeline: finish %s: %v", task.TaskID, err)
	}
	if artifactPath != "" {
		_ = p.deps.Store.AttachReportURL(task.TaskID, artifactPath)
	}
	p.reply(ctx, task, reply)
	sess.AddMessage("assistant", reply)
	if p.deps.Memory != nil {
		p.deps.Memory.AddInteraction(task.Sender, task.OriginalPrompt, reply, status == state.TaskCompleted)
	}
	p.rememberOutcome(ctx, task, status, monitored, time.Since(start))
	p.deps.Metrics.RecordTaskFinished(ctx, string(status), time.Since(start))
	p.log.Info("pipeline: %s finished %s in %.1fs", task.TaskID, status, time.Since(start).Seconds())
}

// rememberOutcome feeds the retriever one entry per executed task so later
// refinements can recall what was attempted and how it went.
func (p *Pipeline) rememberOutcome(ctx context.Context, task *state.TaskInfo, status state.TaskStatus, monitored *supervisor.MonitoredResult, elapsed time.Duration) {
	if p.deps.Retriever == nil {
		return
	}
	prompt := task.RefinedPrompt
	if prompt == "" {
		prompt = task.OriginalPrompt
	}
	touched := len(monitored.CreatedFiles) + len(monitored.ModifiedFiles) + len(monitored.DeletedFiles)
	content := fmt.Sprintf("task %s (%d files touched, %.0fs): %s", status, touched, elapsed.Seconds(), prompt)
	if _, err := p.deps.Retriever.Remember(ctx, &memory.Entry{
		UserID:  task.Sender,
		Kind:    memory.KindTaskOutcome,
		Content: content,
	}); err != nil {
		p.log.Warn("pipeline: remember outcome for %s: %v", task.TaskID, err)
	}
}

// finish completes a task that never reached the executor (skill answers,
// clarifications, cancellations).
func (p *Pipeline) finish(ctx context.Context, task *state.TaskInfo, sess *session.Session, status state.TaskStatus, reply, errMsg string, start time.Time) {
	if err := p.deps.Store.FinishTask(task.TaskID, status, state.TaskUpdate{Error: errMsg}); err != nil {
		p.log.Error("pipeline: finish %s: %v", task.TaskID, err)
	}
	p.reply(ctx, task, reply)
	sess.AddMessage("assistant", reply)
	if p.deps.Memory != nil {
		p.deps.Memory.AddInteraction(task.Sender, task.OriginalPrompt, reply, status == state.TaskCompleted)
	}
	p.deps.Metrics.RecordTaskFinished(ctx, string(status), time.Since(start))
}

func (p *Pipeline) finishFailed(ctx context.Context, task *state.TaskInfo, sess *session.Session, errMsg string, start time.Time) {
	p.finish(ctx, task, sess, state.TaskFailed, "❌ Task failed: "+errMsg, errMsg, start)
}

// reply sends text to the task's originating channel. Send failures are
// logged and recorded in the state error field; they never fail the task.
func (p *Pipeline) reply(ctx context.Context, task *state.TaskInfo, text string) {
	if text == "" {
		return
	}
	adapter, ok := p.deps.Adapters[task.Channel]
	if !ok {
		p.log.Warn("pipeline: no adapter for channel %s", task.Channel)
		return
	}
	msg := channels.Message{
		Channel:   task.Channel,
		Recipient: task.ReplyHandle(),
		Subject:   task.Metadata[state.MetaSubject],
		Content:   text,
		Metadata:  task.Metadata,
	}
	if err := adapter.Send(ctx, msg); err != nil {
		p.log.Error("pipeline: reply to %s via %s: %v", task.Sender, task.Channel, err)
		p.deps.Store.RecordError(fmt.Sprintf("reply send failed: %v", err), time.Now())
		p.deps.Metrics.RecordChannelError(ctx, task.Channel)
	}
}

// sessionName derives a stable CLI session per sender so consecutive tasks
// share conversation state.
func (p *Pipeline) sessionName(task *state.TaskInfo) string {
	if !p.cfg.SessionReuse {
		return ""
	}
	var b strings.Builder
	for _, r := range task.Sender {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "hermes"
	}
	return "hermes-" + b.String()
}

// priorTaskFor finds the sender's most recent finished task, the anchor
// for confirm/continue/cancel intents.
func priorTaskFor(sender string, recent []*state.TaskInfo) *state.TaskInfo {
	for _, t := range recent {
		if t.Sender == sender && t.Status != state.TaskCancelled {
			return t
		}
	}
	return nil
}

func clarificationReply(u *agent.UnderstandingResult) string {
	if len(u.SuggestedQuestions) > 0 {
		return "❓ " + numberedQuestions(u.SuggestedQuestions)
	}
	if u.Understanding != "" {
		return u.Understanding
	}
	return "❓ Could you say a bit more about what you'd like me to do?"
}

func numberedQuestions(questions []string) string {
	var b strings.Builder
	b.WriteString("Before I start, I need a few details:\n")
	for i, q := range questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	return strings.TrimRight(b.String(), "\n")
}
