// Package testutil provides helpers for tests that need real git
// repositories on disk.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// GitRepo is a real git repository in a temp directory, used as the
// "remote" side in synchronizer tests.
type GitRepo struct {
	Dir string
	t   *testing.T
}

// NewGitRepo initializes a repository with the given default branch.
func NewGitRepo(t *testing.T, branch string) *GitRepo {
	t.Helper()

	dir := t.TempDir()
	r := &GitRepo{Dir: dir, t: t}
	r.Git("init", "-b", branch, ".")
	r.Git("config", "user.email", "ops@example.com")
	r.Git("config", "user.name", "Ops Test")
	return r
}

// Git runs a git subcommand inside the repository and fails the test on error.
func (r *GitRepo) Git(args ...string) string {
	r.t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = r.Dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		r.t.Fatalf("git %v: %v: %s", args, err, out)
	}
	return strings.TrimSpace(string(out))
}

// WriteFile creates or overwrites a file relative to the repository root.
func (r *GitRepo) WriteFile(rel, content string) {
	r.t.Helper()

	path := filepath.Join(r.Dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		r.t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		r.t.Fatal(err)
	}
}

// Commit writes a file and commits it, returning the new commit hash.
func (r *GitRepo) Commit(rel, content, message string) string {
	r.t.Helper()

	r.WriteFile(rel, content)
	r.Git("add", "-A")
	r.Git("commit", "-m", message)
	return r.Head()
}

// Head returns the current HEAD commit hash.
func (r *GitRepo) Head() string {
	r.t.Helper()
	return r.Git("rev-parse", "HEAD")
}
