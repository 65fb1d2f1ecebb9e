package gitcmd

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// launchFailureExit is the synthetic exit code reported when the git
// binary cannot be spawned at all (missing binary, bad working dir).
const launchFailureExit = 127

// Result captures the outcome of a single git invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Ok reports whether the invocation exited successfully.
func (r Result) Ok() bool {
	return r.ExitCode == 0
}

// Output returns stdout with surrounding whitespace trimmed.
func (r Result) Output() string {
	return strings.TrimSpace(r.Stdout)
}

// Runner executes git subcommands.
type Runner interface {
	// Run invokes git with the given arguments in dir (empty dir means the
	// process working directory). It always returns a Result, even when the
	// binary cannot be launched; callers inspect the exit code, never an error.
	Run(ctx context.Context, dir string, args ...string) Result
}

// ExecRunner implements Runner by spawning the external git binary.
type ExecRunner struct {
	bin     string // defaults to "git"
	timeout time.Duration
}

// NewExecRunner creates a runner for the git binary on PATH. A non-zero
// timeout bounds every invocation; zero leaves invocations unbounded.
func NewExecRunner(timeout time.Duration) *ExecRunner {
	return &ExecRunner{timeout: timeout}
}

// Run spawns a single git child process and waits for it to exit.
// Exactly one invocation per call; no retries.
func (r *ExecRunner) Run(ctx context.Context, dir string, args ...string) Result {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.binary(), args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		// Launch failure: surface a synthetic exit code and a diagnostic
		// message instead of propagating the error.
		res.ExitCode = launchFailureExit
		if res.Stderr == "" {
			res.Stderr = err.Error()
		}
	}

	return res
}

func (r *ExecRunner) binary() string {
	if r.bin != "" {
		return r.bin
	}
	return "git"
}
