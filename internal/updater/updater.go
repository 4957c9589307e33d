// Package updater replaces the running binary with the newest GitHub release
// and keeps one backup to roll back to.
package updater

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/smazurov/lednode/internal/logging"
	"github.com/smazurov/lednode/internal/version"
)

// releaseSource is the part of *selfupdate.Updater the service uses.
type releaseSource interface {
	DetectLatest(ctx context.Context, repository selfupdate.Repository) (*selfupdate.Release, bool, error)
	UpdateTo(ctx context.Context, rel *selfupdate.Release, cmdPath string) error
}

// Service runs check, apply and rollback. Methods are safe for concurrent use
// but a second operation is refused while one is running.
type Service struct {
	repo       selfupdate.Repository
	slug       string
	releases   releaseSource
	backups    *backupManager
	executable func() (string, error)
	current    string
	disabled   string
	logger     *slog.Logger

	mu          sync.Mutex
	state       State
	latest      *selfupdate.Release
	target      string
	lastChecked time.Time
	lastErr     error
}

// New builds a Service. A binary in a directory the process cannot write to
// yields a disabled service rather than an error.
func New(opts Options) (*Service, error) {
	logger := logging.GetLogger("updater")
	if opts.Repository == "" {
		opts.Repository = DefaultRepository
	}

	s := &Service{
		repo:       selfupdate.ParseSlug(opts.Repository),
		slug:       opts.Repository,
		executable: selfupdate.ExecutablePath,
		current:    version.Version,
		state:      StateIdle,
		logger:     logger,
	}

	if reason := checkWritable(s.executable); reason != "" {
		logger.Warn("Self-update disabled", "reason", reason)
		s.disabled = reason
		return s, nil
	}

	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("github source: %w", err)
	}
	up, err := selfupdate.NewUpdater(selfupdate.Config{Source: source, Prerelease: opts.Prerelease})
	if err != nil {
		return nil, fmt.Errorf("create updater: %w", err)
	}
	s.releases = up

	dir := opts.BackupDir
	if dir == "" {
		if dir, err = defaultBackupDir(); err != nil {
			logger.Warn("Rollback unavailable", "error", err)
			return s, nil
		}
	}
	if s.backups, err = newBackupManager(dir, logger); err != nil {
		logger.Warn("Rollback unavailable", "error", err)
	}
	return s, nil
}

func checkWritable(executable func() (string, error)) string {
	exe, err := executable()
	if err != nil {
		return fmt.Sprintf("executable path: %v", err)
	}
	probe := filepath.Join(filepath.Dir(exe), ".lednode.update.test")
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Sprintf("no write permission to %s", filepath.Dir(exe))
	}
	f.Close()
	os.Remove(probe)
	return ""
}

// Enabled reports whether the service can replace the binary.
func (s *Service) Enabled() bool { return s.disabled == "" }

// Check asks GitHub for the newest release. A "dev" build is always outdated.
func (s *Service) Check(ctx context.Context) (*UpdateInfo, error) {
	if err := s.begin(StateChecking, StateIdle, StateAvailable, StateError, StateRolledBack); err != nil {
		return nil, err
	}

	rel, found, err := s.releases.DetectLatest(ctx, s.repo)
	s.mu.Lock()
	s.lastChecked = time.Now()
	s.mu.Unlock()
	if err != nil {
		return nil, s.fail(newError(CodeCheckFailed, "detect latest release", err))
	}
	if !found {
		return nil, s.fail(newError(CodeNotFound, "no release found for "+s.slug+" on this platform", nil))
	}

	info := &UpdateInfo{
		CurrentVersion: s.current,
		LatestVersion:  rel.Version(),
		ReleaseNotes:   rel.ReleaseNotes,
		ReleaseURL:     rel.URL,
		PublishedAt:    rel.PublishedAt,
		AssetSize:      rel.AssetByteSize,
	}
	if s.current != "dev" && !rel.GreaterThan(s.current) {
		s.settle(StateIdle)
		return info, nil
	}

	info.UpdateAvailable = true
	s.mu.Lock()
	s.latest = rel
	s.target = info.LatestVersion
	s.state = StateAvailable
	s.mu.Unlock()
	return info, nil
}

// Apply backs up the running binary and replaces it with the release found
// by Check, checking first when nothing is pending. A failed replacement
// restores the backup. It returns the installed version; the caller restarts.
func (s *Service) Apply(ctx context.Context) (string, error) {
	if s.currentState() != StateAvailable {
		info, err := s.Check(ctx)
		if err != nil {
			return "", err
		}
		if !info.UpdateAvailable {
			return "", newError(CodeNoUpdate, "already running "+info.LatestVersion, nil)
		}
	}
	if err := s.begin(StateApplying, StateAvailable); err != nil {
		return "", err
	}

	exe, err := s.executable()
	if err != nil {
		return "", s.fail(newError(CodeApplyFailed, "executable path", err))
	}
	if s.backups != nil {
		if err := s.backups.create(exe, s.current); err != nil {
			return "", s.fail(newError(CodeBackupFailed, "back up current binary", err))
		}
	}

	s.mu.Lock()
	rel, target := s.latest, s.target
	s.mu.Unlock()

	if err := s.releases.UpdateTo(ctx, rel, exe); err != nil {
		s.restoreAfterFailure()
		return "", s.fail(newError(CodeApplyFailed, "install "+target, err))
	}

	s.settle(StateApplied)
	s.logger.Info("Update installed", "from", s.current, "to", target)
	return target, nil
}

// Rollback puts the backed up binary back in place and returns its version.
func (s *Service) Rollback(_ context.Context) (string, error) {
	if !s.Enabled() {
		return "", newError(CodeDisabled, s.disabled, nil)
	}
	if s.backups == nil {
		return "", newError(CodeNoBackup, "no backup available", nil)
	}
	restored, err := s.backups.restore()
	if err != nil {
		if HasCode(err, CodeNoBackup) {
			return "", err
		}
		return "", s.fail(newError(CodeRollbackFailed, "restore backup", err))
	}
	s.settle(StateRolledBack)
	return restored, nil
}

// Status returns a snapshot.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:          s.state,
		CurrentVersion: s.current,
		TargetVersion:  s.target,
		LastChecked:    s.lastChecked,
	}
	if s.lastErr != nil {
		st.Error = s.lastErr.Error()
	}
	if s.disabled != "" {
		st.Error = s.disabled
	}
	if s.backups != nil {
		st.BackupVersion = s.backups.version()
	}
	return st
}

// begin moves to next when the current state is one of from.
func (s *Service) begin(next State, from ...State) error {
	if !s.Enabled() {
		return newError(CodeDisabled, s.disabled, nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(from, s.state) {
		return newError(CodeInvalidState, fmt.Sprintf("cannot move to %s from %s", next, s.state), nil)
	}
	s.logger.Debug("State transition", "from", s.state, "to", next)
	s.state = next
	s.lastErr = nil
	return nil
}

func (s *Service) settle(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Service) fail(err *Error) error {
	s.mu.Lock()
	s.state = StateError
	s.lastErr = err
	s.mu.Unlock()
	return err
}

func (s *Service) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Service) restoreAfterFailure() {
	if s.backups == nil {
		s.logger.Error("No backup to restore after failed update")
		return
	}
	if _, err := s.backups.restore(); err != nil {
		s.logger.Error("Failed to restore backup", "error", err)
		return
	}
	s.logger.Info("Restored previous binary after failed update")
}
