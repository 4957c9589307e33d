package updater

import "time"

// State is where the updater is in a check/apply cycle.
type State string

// Updater states.
const (
	StateIdle       State = "idle"
	StateChecking   State = "checking"
	StateAvailable  State = "available"
	StateApplying   State = "applying"
	StateApplied    State = "applied"
	StateError      State = "error"
	StateRolledBack State = "rolled_back"
)

// DefaultRepository is the GitHub slug release binaries are published under.
const DefaultRepository = "smazurov/lednode"

// Options configures New.
type Options struct {
	Repository string
	Prerelease bool
	// BackupDir defaults to ~/.cache/lednode/backup.
	BackupDir string
}

// UpdateInfo describes the newest release relative to the running binary.
type UpdateInfo struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version"`
	ReleaseNotes    string    `json:"release_notes,omitempty"`
	ReleaseURL      string    `json:"release_url,omitempty"`
	PublishedAt     time.Time `json:"published_at,omitzero"`
	AssetSize       int       `json:"asset_size,omitempty"`
	UpdateAvailable bool      `json:"update_available"`
}

// Status is a snapshot of the updater.
type Status struct {
	State          State     `json:"state"`
	CurrentVersion string    `json:"current_version"`
	TargetVersion  string    `json:"target_version,omitempty"`
	Error          string    `json:"error,omitempty"`
	LastChecked    time.Time `json:"last_checked,omitzero"`
	BackupVersion  string    `json:"backup_version,omitempty"`
}
