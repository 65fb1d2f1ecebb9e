package syncer

import (
	"fmt"
	"strings"
)

// ErrNotConfigured is returned when a mutating operation runs without a
// remote URL configured. It is raised before any process is spawned.
var ErrNotConfigured = fmt.Errorf("remote url is not configured")

// CommandError reports a failed git invocation of a mutating operation,
// carrying the captured stderr.
type CommandError struct {
	Op       string // git subcommand, e.g. "clone", "pull", "checkout"
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = "no error output"
	}
	return fmt.Sprintf("git %s failed (exit %d): %s", e.Op, e.ExitCode, msg)
}
