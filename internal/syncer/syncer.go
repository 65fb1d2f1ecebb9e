package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opsmirror/playbooksyncd/internal/config"
	"github.com/opsmirror/playbooksyncd/internal/gitcmd"
	"github.com/opsmirror/playbooksyncd/internal/playbook"
)

// DefaultHistoryLimit bounds History queries when the caller passes no limit.
const DefaultHistoryLimit = 20

// Synchronizer mirrors a remote git repository of playbooks into a local
// working copy. One instance owns exactly one working-tree path; callers
// are responsible for serializing concurrent mutating operations.
type Synchronizer struct {
	state      RepositoryState
	cloneDepth int
	runner     gitcmd.Runner
	logger     *slog.Logger
	log        []OperationRecord // chronological, append-only
}

// New creates a synchronizer for the repository described by cfg. An
// existing checkout at the local path is detected and reused rather than
// re-cloned.
func New(cfg *config.Config, runner gitcmd.Runner, logger *slog.Logger) *Synchronizer {
	s := &Synchronizer{
		state: RepositoryState{
			RemoteURL:   cfg.Repo.URL,
			Branch:      cfg.Repo.Branch,
			LocalPath:   cfg.Paths.LocalPath,
			PlaybookDir: cfg.Repo.PlaybookDir,
			AutoSync:    cfg.Repo.AutoSync,
		},
		cloneDepth: cfg.Repo.CloneDepth,
		runner:     runner,
		logger:     logger,
	}

	// Reuse a checkout left behind by a previous run.
	if _, err := os.Stat(filepath.Join(s.state.LocalPath, ".git")); err == nil {
		s.state.IsCloned = true
	}

	return s
}

// State returns a copy of the current repository state.
func (s *Synchronizer) State() RepositoryState {
	return s.state
}

// Operations returns the operation log, newest first.
func (s *Synchronizer) Operations() []OperationRecord {
	out := make([]OperationRecord, len(s.log))
	for i, rec := range s.log {
		out[len(s.log)-1-i] = rec
	}
	return out
}

// Clone bootstraps the local working copy. Any pre-existing directory at
// the local path is removed first. On success the repository state is
// updated and a clone record is appended; on failure IsCloned stays false.
func (s *Synchronizer) Clone(ctx context.Context) (*OperationRecord, error) {
	if strings.TrimSpace(s.state.RemoteURL) == "" {
		return nil, ErrNotConfigured
	}

	s.logger.Info("cloning playbook repository",
		"remote", s.state.RemoteURL,
		"branch", s.state.Branch,
		"path", s.state.LocalPath)

	if err := os.RemoveAll(s.state.LocalPath); err != nil {
		return nil, fmt.Errorf("failed to remove existing checkout: %w", err)
	}

	res := s.runner.Run(ctx, "",
		"clone", "--branch", s.state.Branch, "--depth", strconv.Itoa(s.cloneDepth),
		s.state.RemoteURL, s.state.LocalPath)
	if !res.Ok() {
		s.logger.Error("clone failed",
			"remote", s.state.RemoteURL,
			"branch", s.state.Branch,
			"stderr", strings.TrimSpace(res.Stderr))
		return nil, &CommandError{Op: "clone", ExitCode: res.ExitCode, Stderr: res.Stderr}
	}

	head, err := s.head(ctx)
	if err != nil {
		return nil, err
	}

	s.state.IsCloned = true
	s.state.LastCommit = head
	s.state.LastSync = time.Now().UTC()

	rec := s.appendRecord(ActionClone, head, "", 0, false)
	s.logger.Info("clone complete", "remote", s.state.RemoteURL, "branch", s.state.Branch, "commit", head)
	return &rec, nil
}

// Pull updates the working copy from the remote branch. A not-yet-cloned
// repository bootstraps via Clone with identical failure semantics.
func (s *Synchronizer) Pull(ctx context.Context) (*OperationRecord, error) {
	if !s.state.IsCloned {
		return s.Clone(ctx)
	}

	before, err := s.head(ctx)
	if err != nil {
		return nil, err
	}

	res := s.runner.Run(ctx, s.state.LocalPath, "pull", "origin", s.state.Branch)
	if !res.Ok() {
		s.logger.Error("pull failed",
			"remote", s.state.RemoteURL,
			"branch", s.state.Branch,
			"stderr", strings.TrimSpace(res.Stderr))
		return nil, &CommandError{Op: "pull", ExitCode: res.ExitCode, Stderr: res.Stderr}
	}

	after, err := s.head(ctx)
	if err != nil {
		return nil, err
	}

	upToDate := after == before
	filesChanged := 0
	if !upToDate {
		diff := s.runner.Run(ctx, s.state.LocalPath, "diff", "--name-only", before, after)
		if diff.Ok() {
			filesChanged = countNonEmptyLines(diff.Stdout)
		} else {
			s.logger.Warn("could not count changed files", "stderr", strings.TrimSpace(diff.Stderr))
		}
	}

	s.state.LastCommit = after
	s.state.LastSync = time.Now().UTC()

	rec := s.appendRecord(ActionPull, after, before, filesChanged, upToDate)
	s.logger.Info("pull complete",
		"remote", s.state.RemoteURL,
		"branch", s.state.Branch,
		"commit", after,
		"files_changed", filesChanged,
		"up_to_date", upToDate)
	return &rec, nil
}

// DiffPreview fetches the remote branch and reports pending file changes
// without touching the working tree. It returns an empty list, without
// contacting the remote, when the repository has not been cloned.
func (s *Synchronizer) DiffPreview(ctx context.Context) ([]DiffEntry, error) {
	if !s.state.IsCloned {
		return nil, nil
	}

	fetch := s.runner.Run(ctx, s.state.LocalPath, "fetch", "origin", s.state.Branch)
	if !fetch.Ok() {
		return nil, &CommandError{Op: "fetch", ExitCode: fetch.ExitCode, Stderr: fetch.Stderr}
	}

	target := "HEAD..origin/" + s.state.Branch

	// Human-readable summary, for the log only.
	if stat := s.runner.Run(ctx, s.state.LocalPath, "diff", target, "--stat"); stat.Ok() {
		if summary := stat.Output(); summary != "" {
			s.logger.Debug("pending changes", "stat", summary)
		}
	}

	res := s.runner.Run(ctx, s.state.LocalPath, "diff", target, "--name-status")
	if !res.Ok() {
		return nil, &CommandError{Op: "diff", ExitCode: res.ExitCode, Stderr: res.Stderr}
	}

	return parseNameStatus(res.Stdout), nil
}

// History returns the commit history scoped to the playbook directory,
// newest first, bounded to limit entries (DefaultHistoryLimit when limit
// is not positive). It returns an empty list when not cloned.
func (s *Synchronizer) History(ctx context.Context, limit int) ([]CommitRecord, error) {
	if !s.state.IsCloned {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	res := s.runner.Run(ctx, s.state.LocalPath,
		"log", "--max-count="+strconv.Itoa(limit),
		"--pretty=format:%H|%an|%ae|%ai|%s",
		"--", s.state.PlaybookDir)
	if !res.Ok() {
		return nil, &CommandError{Op: "log", ExitCode: res.ExitCode, Stderr: res.Stderr}
	}

	return parseHistory(res.Stdout), nil
}

// Rollback checks out a historical commit scoped to the playbook
// directory; the rest of the working tree is left untouched. The last
// known commit is deliberately updated to the rollback target even though
// this is a path-scoped checkout, so the operation log reflects what the
// playbook directory contains.
func (s *Synchronizer) Rollback(ctx context.Context, commit string) (*OperationRecord, error) {
	if !s.state.IsCloned {
		return nil, &CommandError{Op: "checkout", ExitCode: 1, Stderr: "repository has not been cloned"}
	}

	s.logger.Info("rolling back playbook directory",
		"remote", s.state.RemoteURL,
		"branch", s.state.Branch,
		"target", commit,
		"playbook_dir", s.state.PlaybookDir)

	res := s.runner.Run(ctx, s.state.LocalPath, "checkout", commit, "--", s.state.PlaybookDir)
	if !res.Ok() {
		s.logger.Error("rollback failed", "target", commit, "stderr", strings.TrimSpace(res.Stderr))
		return nil, &CommandError{Op: "checkout", ExitCode: res.ExitCode, Stderr: res.Stderr}
	}

	previous := s.state.LastCommit
	s.state.LastCommit = commit

	rec := s.appendRecord(ActionRollback, commit, previous, 0, false)
	s.logger.Info("rollback complete", "commit", commit, "previous", previous)
	return &rec, nil
}

// Status merges static configuration with best-effort live readings.
// Nothing is cached; every call recomputes the live fields.
func (s *Synchronizer) Status(ctx context.Context) Status {
	st := Status{
		RemoteURL:   s.state.RemoteURL,
		Branch:      s.state.Branch,
		LocalPath:   s.state.LocalPath,
		PlaybookDir: s.state.PlaybookDir,
		AutoSync:    s.state.AutoSync,
		IsCloned:    s.state.IsCloned,
		LastCommit:  s.state.LastCommit,
		LastSync:    s.state.LastSync,
	}

	if !s.state.IsCloned {
		return st
	}

	if res := s.runner.Run(ctx, s.state.LocalPath, "rev-parse", "--abbrev-ref", "HEAD"); res.Ok() {
		st.CurrentBranch = res.Output()
	}
	if files, err := s.PlaybookFiles(); err == nil {
		st.PlaybookCount = len(files)
	}

	return st
}

// PlaybookFiles lists the playbook files currently on disk, sorted by
// path. It returns an empty list when the repository is not cloned or the
// playbook directory is absent.
func (s *Synchronizer) PlaybookFiles() ([]playbook.FileMeta, error) {
	if !s.state.IsCloned {
		return nil, nil
	}
	return playbook.Index(filepath.Join(s.state.LocalPath, s.state.PlaybookDir))
}

// head resolves the commit currently checked out in the working copy.
func (s *Synchronizer) head(ctx context.Context) (string, error) {
	res := s.runner.Run(ctx, s.state.LocalPath, "rev-parse", "HEAD")
	if !res.Ok() {
		return "", &CommandError{Op: "rev-parse", ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return res.Output(), nil
}

// appendRecord stamps and stores a new operation record.
func (s *Synchronizer) appendRecord(action Action, commit, previous string, filesChanged int, upToDate bool) OperationRecord {
	rec := OperationRecord{
		ID:             uuid.NewString(),
		Action:         action,
		Commit:         commit,
		PreviousCommit: previous,
		Branch:         s.state.Branch,
		Timestamp:      time.Now().UTC(),
		FilesChanged:   filesChanged,
		UpToDate:       upToDate,
	}
	s.log = append(s.log, rec)
	return rec
}

// parseNameStatus turns name-status diff output into structured entries.
// Each line is split on its first tab into a status code and a path; the
// first letter of the code selects the semantic status.
func parseNameStatus(out string) []DiffEntry {
	var entries []DiffEntry
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			continue
		}

		code := strings.TrimSpace(parts[0])
		if code == "" {
			continue
		}
		// Rename entries carry a similarity score (e.g. "R100"); the
		// leading letter is the status.
		code = code[:1]

		entries = append(entries, DiffEntry{
			Path:   parts[1],
			Status: statusFromCode(code),
			Code:   code,
		})
	}
	return entries
}

// parseHistory turns pipe-delimited log output into commit records. The
// bounded split keeps pipe characters inside commit subjects from
// shifting field alignment.
func parseHistory(out string) []CommitRecord {
	var records []CommitRecord
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, "|", 5)
		if len(parts) != 5 {
			continue
		}

		records = append(records, CommitRecord{
			Hash:        parts[0],
			AuthorName:  parts[1],
			AuthorEmail: parts[2],
			Date:        parts[3],
			Subject:     parts[4],
		})
	}
	return records
}

// countNonEmptyLines counts the non-empty lines of command output.
func countNonEmptyLines(out string) int {
	count := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return count
}
