package syncer

import "time"

// Action identifies a mutating sync operation.
type Action string

const (
	ActionClone    Action = "clone"
	ActionPull     Action = "pull"
	ActionRollback Action = "rollback"
)

// RepositoryState holds the configuration and live status of the one
// working copy a Synchronizer manages.
type RepositoryState struct {
	RemoteURL   string
	Branch      string
	LocalPath   string
	PlaybookDir string
	AutoSync    bool

	IsCloned   bool
	LastCommit string
	LastSync   time.Time
}

// OperationRecord describes one completed mutating operation. Records are
// immutable once appended to the operation log.
type OperationRecord struct {
	ID             string    `json:"id"`
	Action         Action    `json:"action"`
	Commit         string    `json:"commit"`
	PreviousCommit string    `json:"previous_commit,omitempty"` // empty for clone
	Branch         string    `json:"branch"`
	Timestamp      time.Time `json:"timestamp"`
	FilesChanged   int       `json:"files_changed"`
	UpToDate       bool      `json:"up_to_date,omitempty"` // pull only
}

// DiffStatus is the semantic kind of a single diff entry.
type DiffStatus string

const (
	StatusAdded    DiffStatus = "added"
	StatusModified DiffStatus = "modified"
	StatusDeleted  DiffStatus = "deleted"
	StatusRenamed  DiffStatus = "renamed"
	StatusUnknown  DiffStatus = "unknown"
)

// DiffEntry is one file-level change reported by a diff preview.
type DiffEntry struct {
	Path   string     `json:"file"`
	Status DiffStatus `json:"status"`
	Code   string     `json:"status_code"`
}

// CommitRecord is one parsed entry of the playbook-scoped commit history.
type CommitRecord struct {
	Hash        string `json:"hash"`
	AuthorName  string `json:"author_name"`
	AuthorEmail string `json:"author_email"`
	Date        string `json:"date"`
	Subject     string `json:"subject"`
}

// Status merges static configuration with best-effort live readings.
type Status struct {
	RemoteURL   string    `json:"remote_url"`
	Branch      string    `json:"branch"`
	LocalPath   string    `json:"local_path"`
	PlaybookDir string    `json:"playbook_dir"`
	AutoSync    bool      `json:"auto_sync"`
	IsCloned    bool      `json:"is_cloned"`
	LastCommit  string    `json:"last_commit,omitempty"`
	LastSync    time.Time `json:"last_sync,omitempty"`

	// Live fields, populated only when the repository is cloned.
	CurrentBranch string `json:"current_branch,omitempty"`
	PlaybookCount int    `json:"playbook_count"`
}

// statusFromCode maps a raw name-status letter to its semantic status.
// The mapping is total: unrecognized letters map to StatusUnknown.
func statusFromCode(code string) DiffStatus {
	switch code {
	case "A":
		return StatusAdded
	case "M":
		return StatusModified
	case "D":
		return StatusDeleted
	case "R":
		return StatusRenamed
	default:
		return StatusUnknown
	}
}
