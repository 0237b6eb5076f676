package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"hermes/internal/errors"
	"hermes/internal/logging"
)

// Config controls how the code-generation CLI is invoked.
type Config struct {
	// CLIPath is an explicit path to the binary; empty means auto-resolve.
	CLIPath string
	// ShellPath is the bash used to wrap invocations on Windows.
	ShellPath string
	// SessionReuse enables --continue with a named session so consecutive
	// tasks from the same user share CLI conversation state.
	SessionReuse bool
	// Timeout bounds a single execution; zero means caller-managed.
	Timeout time.Duration
}

// Result captures everything a completed execution produced.
type Result struct {
	Success         bool     `json:"success"`
	Stdout          string   `json:"stdout"`
	Stderr          string   `json:"stderr"`
	ExitCode        int      `json:"exit_code"`
	DurationSeconds float64  `json:"duration_seconds"`
	CreatedFiles    []string `json:"created_files,omitempty"`
	ModifiedFiles   []string `json:"modified_files,omitempty"`
	DeletedFiles    []string `json:"deleted_files,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// Executor launches the code-generation CLI as a supervised subprocess.
type Executor struct {
	cfg    Config
	logger logging.Logger

	resolveOnce sync.Once
	cliPath     string
	resolveErr  error
}

func New(cfg Config, logger logging.Logger) *Executor {
	return &Executor{cfg: cfg, logger: logging.OrNop(logger)}
}

// growBuffer is a byte buffer whose length can be observed concurrently
// while reader goroutines append to it. The supervisor polls Len to detect
// whether the child is still producing output.
type growBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *growBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *growBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func (b *growBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Run is a single in-flight CLI execution. It is handed to the health
// monitor, which watches OutputLen for growth and calls Cancel when the
// child goes quiet.
type Run struct {
	stdout *growBuffer
	stderr *growBuffer
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	result *Result
}

// OutputLen reports the combined bytes the child has written so far.
func (r *Run) OutputLen() int {
	return r.stdout.Len() + r.stderr.Len()
}

// PartialStdout returns whatever stdout the child has produced so far.
// Safe to call while the run is still in flight.
func (r *Run) PartialStdout() string {
	return r.stdout.String()
}

// Done closes when the child has exited and the result is available.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Cancel kills the child's process group.
func (r *Run) Cancel() {
	r.cancel()
}

// Result returns the execution outcome. It blocks until the run finishes.
func (r *Run) Result() *Result {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

func (e *Executor) resolve() (string, error) {
	e.resolveOnce.Do(func() {
		e.cliPath, e.resolveErr = ResolveCLI(e.cfg.CLIPath)
	})
	return e.cliPath, e.resolveErr
}

// buildCommand assembles the CLI invocation. On Windows the binary is run
// through a bash wrapper because the npm shim does not handle multi-line
// prompts passed as a single argv element.
func (e *Executor) buildCommand(ctx context.Context, cliPath, prompt, workDir, session string) *exec.Cmd {
	args := []string{"-p", prompt}
	if e.cfg.SessionReuse && session != "" {
		args = append(args, "--continue", "--session="+session)
	}

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		shell := e.cfg.ShellPath
		if shell == "" {
			shell = "bash"
		}
		var sb strings.Builder
		sb.WriteString(shellQuote(toPosixPath(cliPath)))
		for _, a := range args {
			sb.WriteByte(' ')
			sb.WriteString(shellQuote(a))
		}
		cmd = exec.CommandContext(ctx, shell, "-c", sb.String())
	} else {
		cmd = exec.CommandContext(ctx, cliPath, args...)
	}
	cmd.Dir = workDir
	cmd.Env = injectEnv(os.Environ())
	setupProcessControl(cmd)
	return cmd
}

// injectEnv layers the non-interactive overrides on top of the parent
// environment: the CLI must not prompt, must not write its own log file,
// and needs a terminal type so its renderer does not crash headless.
func injectEnv(base []string) []string {
	overrides := map[string]string{
		"CLAUDE_NO_INTERACTIVE": "1",
		"CLAUDE_LOG_FILE":       "",
		"TERM":                  "xterm-256color",
	}
	env := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			key = kv[:i]
		}
		if _, ok := overrides[key]; ok {
			continue
		}
		env = append(env, kv)
	}
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}

// Start launches the CLI and returns immediately with a Run handle.
func (e *Executor) Start(ctx context.Context, prompt, workDir, session string) (*Run, error) {
	cliPath, err := e.resolve()
	if err != nil {
		return nil, errors.NewPermanentError(err, "coding CLI not found")
	}
	if workDir != "" {
		if info, statErr := os.Stat(workDir); statErr != nil || !info.IsDir() {
			return nil, errors.NewPermanentError(fmt.Errorf("work dir %s is not a directory", workDir), "invalid work directory")
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &Run{
		stdout: &growBuffer{},
		stderr: &growBuffer{},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	cmd := e.buildCommand(runCtx, cliPath, prompt, workDir, session)
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, err
	}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, errors.NewTransientError(fmt.Errorf("start cli: %w", err), "could not start the coding CLI")
	}
	e.logger.Info("executor: started pid=%d session=%q dir=%s", cmd.Process.Pid, session, workDir)

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		io.Copy(run.stdout, stdoutPipe) //nolint:errcheck
	}()
	go func() {
		defer readers.Done()
		io.Copy(run.stderr, stderrPipe) //nolint:errcheck
	}()

	go func() {
		defer cancel()
		readers.Wait()
		waitErr := cmd.Wait()
		result := e.buildResult(run, waitErr, time.Since(started))
		run.mu.Lock()
		run.result = result
		run.mu.Unlock()
		close(run.done)
	}()

	return run, nil
}

func (e *Executor) buildResult(run *Run, waitErr error, elapsed time.Duration) *Result {
	stdout := run.stdout.String()
	stderr := run.stderr.String()
	result := &Result{
		Stdout:          stdout,
		Stderr:          stderr,
		DurationSeconds: elapsed.Seconds(),
	}
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
		result.Error = waitErr.Error()
		e.logger.Warn("executor: exited code=%d err=%v elapsed=%.1fs", result.ExitCode, waitErr, elapsed.Seconds())
	} else {
		result.Success = true
		e.logger.Info("executor: completed elapsed=%.1fs stdout=%dB", elapsed.Seconds(), len(stdout))
	}

	changes := ExtractFileChanges(stdout + "\n" + stderr)
	result.CreatedFiles = changes.Created
	result.ModifiedFiles = changes.Modified
	result.DeletedFiles = changes.Deleted
	return result
}

// Execute runs the CLI to completion. Most callers go through the health
// monitor instead; this is the plain synchronous path used by self tests
// and the CLI surface.
func (e *Executor) Execute(ctx context.Context, prompt, workDir, session string) (*Result, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}
	run, err := e.Start(ctx, prompt, workDir, session)
	if err != nil {
		return nil, err
	}
	select {
	case <-run.Done():
		return run.Result(), nil
	case <-ctx.Done():
		run.Cancel()
		<-run.Done()
		result := run.Result()
		result.Success = false
		if result.Error == "" {
			result.Error = ctx.Err().Error()
		}
		return result, nil
	}
}

// Version probes the CLI with --version.
func (e *Executor) Version(ctx context.Context) (string, error) {
	cliPath, err := e.resolve()
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, cliPath, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("probe cli version: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// SelfTest verifies the CLI is reachable and responds to a trivial prompt.
func (e *Executor) SelfTest(ctx context.Context) error {
	if _, err := e.Version(ctx); err != nil {
		return err
	}
	return nil
}
