package executor

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hermeserrors "hermes/internal/errors"
)

func TestExtractFileChanges(t *testing.T) {
	out := `
Created: cmd/server/main.go
modified: internal/api/handler.go
I also updated: internal/api/handler.go
Deleted: old/legacy.py
see https://example.com/created: docs.md for details
wrote to config/app.yaml
`
	changes := ExtractFileChanges(out)
	assert.Equal(t, []string{"cmd/server/main.go", "config/app.yaml"}, changes.Created)
	assert.Equal(t, []string{"internal/api/handler.go"}, changes.Modified)
	assert.Equal(t, []string{"old/legacy.py"}, changes.Deleted)
}

func TestExtractFileChangesSkipsURLs(t *testing.T) {
	changes := ExtractFileChanges("created: https://example.com/file.py and created: real.py")
	assert.Equal(t, []string{"real.py"}, changes.Created)

	// A keyword embedded in a URL path is not a file hint.
	changes = ExtractFileChanges("fetched https://example.com/created: docs.md")
	assert.Empty(t, changes.Created)
}

func TestExtractFilePathsDeduplicatesAcrossKinds(t *testing.T) {
	paths := ExtractFilePaths("created: a.go\nmodified: a.go\nmodified: b.go")
	assert.Equal(t, []string{"a.go", "b.go"}, paths)
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "''", shellQuote(""))
	assert.Equal(t, "'plain'", shellQuote("plain"))
	assert.Equal(t, `'it'\''s here'`, shellQuote("it's here"))
}

func TestToPosixPath(t *testing.T) {
	assert.Equal(t, "/c/work/repo", toPosixPath(`C:\work\repo`))
	assert.Equal(t, "/home/dev/repo", toPosixPath("/home/dev/repo"))
}

func TestInjectEnv(t *testing.T) {
	env := injectEnv([]string{"PATH=/usr/bin", "TERM=dumb", "CLAUDE_LOG_FILE=/tmp/x.log"})
	assert.Contains(t, env, "PATH=/usr/bin")
	assert.Contains(t, env, "CLAUDE_NO_INTERACTIVE=1")
	assert.Contains(t, env, "CLAUDE_LOG_FILE=")
	assert.Contains(t, env, "TERM=xterm-256color")
	assert.NotContains(t, env, "TERM=dumb")
	assert.NotContains(t, env, "CLAUDE_LOG_FILE=/tmp/x.log")
}

func TestBuildCommandComposesArgs(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("windows wraps the invocation in a bash shell line")
	}
	e := New(Config{}, nil)
	cmd := e.buildCommand(context.Background(), "/usr/bin/claude", "add a test", "/work", "alice")
	assert.Equal(t, []string{"/usr/bin/claude", "-p", "add a test"}, cmd.Args)
	assert.Equal(t, "/work", cmd.Dir)

	e = New(Config{SessionReuse: true}, nil)
	cmd = e.buildCommand(context.Background(), "/usr/bin/claude", "add a test", "/work", "alice")
	assert.Equal(t,
		[]string{"/usr/bin/claude", "-p", "add a test", "--continue", "--session=alice"},
		cmd.Args)

	// Session reuse without a session name stays a plain one-shot run.
	cmd = e.buildCommand(context.Background(), "/usr/bin/claude", "add a test", "/work", "")
	assert.Equal(t, []string{"/usr/bin/claude", "-p", "add a test"}, cmd.Args)
}

// writeFakeCLI drops an executable shell script the executor can use in
// place of the real binary.
func writeFakeCLI(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script fake cli needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-cli")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestExecuteCollectsOutputAndFileChanges(t *testing.T) {
	cli := writeFakeCLI(t, `echo "Created: hello.py"
echo "non_interactive=$CLAUDE_NO_INTERACTIVE"`)
	exe := New(Config{CLIPath: cli}, nil)

	result, err := exe.Execute(context.Background(), "write hello", t.TempDir(), "")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Zero(t, result.ExitCode)
	assert.Contains(t, result.Stdout, "non_interactive=1")
	assert.Equal(t, []string{"hello.py"}, result.CreatedFiles)
	assert.Greater(t, result.DurationSeconds, 0.0)
}

func TestExecuteReportsNonZeroExit(t *testing.T) {
	cli := writeFakeCLI(t, `echo "boom" >&2
exit 3`)
	exe := New(Config{CLIPath: cli}, nil)

	result, err := exe.Execute(context.Background(), "fail", "", "")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 3, result.ExitCode)
	assert.Contains(t, result.Stderr, "boom")
	assert.NotEmpty(t, result.Error)
}

func TestCancelKillsRun(t *testing.T) {
	cli := writeFakeCLI(t, `sleep 30`)
	exe := New(Config{CLIPath: cli}, nil)

	run, err := exe.Start(context.Background(), "hang", "", "")
	require.NoError(t, err)
	run.Cancel()

	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not terminate after cancel")
	}
	assert.False(t, run.Result().Success)
}

func TestOutputLenGrowsWhileRunning(t *testing.T) {
	cli := writeFakeCLI(t, `echo "working"
sleep 2`)
	exe := New(Config{CLIPath: cli}, nil)

	run, err := exe.Start(context.Background(), "slow", "", "")
	require.NoError(t, err)
	defer run.Cancel()

	deadline := time.Now().Add(3 * time.Second)
	for run.OutputLen() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no output observed while run in flight")
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.Contains(t, run.PartialStdout(), "working")
	run.Cancel()
	<-run.Done()
}

func TestStartRejectsMissingWorkDir(t *testing.T) {
	cli := writeFakeCLI(t, `true`)
	exe := New(Config{CLIPath: cli}, nil)

	_, err := exe.Start(context.Background(), "x", "/nonexistent/dir", "")
	require.Error(t, err)

	// Misconfiguration is permanent: retrying would not help.
	var perm *hermeserrors.PermanentError
	require.ErrorAs(t, err, &perm)
	assert.Equal(t, "invalid work directory", perm.Message)
}

func TestExecuteTimeoutPromotesPartialOutput(t *testing.T) {
	cli := writeFakeCLI(t, `echo "partial progress"
sleep 30`)
	exe := New(Config{CLIPath: cli, Timeout: 500 * time.Millisecond}, nil)

	result, err := exe.Execute(context.Background(), "slow", "", "")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Stdout, "partial progress")
	assert.NotEmpty(t, result.Error)
}
