package updater

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/smazurov/lednode/internal/logging"
)

type fakeSource struct {
	found     bool
	detectErr error
	payload   string
	updateErr error
	detects   int
}

func (f *fakeSource) DetectLatest(context.Context, selfupdate.Repository) (*selfupdate.Release, bool, error) {
	f.detects++
	return nil, f.found, f.detectErr
}

func (f *fakeSource) UpdateTo(_ context.Context, _ *selfupdate.Release, cmdPath string) error {
	if err := os.WriteFile(cmdPath, []byte(f.payload), 0o755); err != nil {
		return err
	}
	return f.updateErr
}

func newTestService(t *testing.T, src *fakeSource) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	exe := filepath.Join(dir, "lednode")
	if err := os.WriteFile(exe, []byte("old"), 0o755); err != nil {
		t.Fatal(err)
	}
	logger := logging.GetLogger("updater")
	backups, err := newBackupManager(filepath.Join(dir, "backup"), logger)
	if err != nil {
		t.Fatal(err)
	}
	return &Service{
		repo:       selfupdate.ParseSlug(DefaultRepository),
		slug:       DefaultRepository,
		releases:   src,
		backups:    backups,
		executable: func() (string, error) { return exe, nil },
		current:    "1.0.0",
		state:      StateIdle,
		logger:     logger,
	}, exe
}

// makeAvailable puts the service in the state a successful Check leaves.
func makeAvailable(s *Service, target string) {
	s.state = StateAvailable
	s.latest = &selfupdate.Release{}
	s.target = target
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestCheckFailures(t *testing.T) {
	tests := []struct {
		name string
		src  *fakeSource
		code string
	}{
		{"no release", &fakeSource{}, CodeNotFound},
		{"github down", &fakeSource{detectErr: errors.New("connection refused")}, CodeCheckFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestService(t, tt.src)

			_, err := s.Check(context.Background())
			if !HasCode(err, tt.code) {
				t.Fatalf("Check() error = %v, want code %s", err, tt.code)
			}
			st := s.Status()
			if st.State != StateError || st.Error == "" {
				t.Errorf("Status() = %+v, want error state", st)
			}
			if st.LastChecked.IsZero() {
				t.Error("LastChecked not recorded")
			}

			// A failed check can be retried.
			if _, err := s.Check(context.Background()); !HasCode(err, tt.code) {
				t.Errorf("second Check() error = %v", err)
			}
			if tt.src.detects != 2 {
				t.Errorf("detects = %d, want 2", tt.src.detects)
			}
		})
	}
}

func TestApplyAndRollback(t *testing.T) {
	s, exe := newTestService(t, &fakeSource{payload: "new"})
	makeAvailable(s, "1.1.0")

	installed, err := s.Apply(context.Background())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if installed != "1.1.0" {
		t.Errorf("Apply() = %q, want 1.1.0", installed)
	}
	if got := readFile(t, exe); got != "new" {
		t.Errorf("binary = %q, want new", got)
	}
	if st := s.Status(); st.State != StateApplied || st.BackupVersion != "1.0.0" {
		t.Errorf("Status() = %+v", st)
	}

	restored, err := s.Rollback(context.Background())
	if err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if restored != "1.0.0" {
		t.Errorf("Rollback() = %q, want 1.0.0", restored)
	}
	if got := readFile(t, exe); got != "old" {
		t.Errorf("binary after rollback = %q, want old", got)
	}
	if s.Status().State != StateRolledBack {
		t.Errorf("state = %s, want rolled_back", s.Status().State)
	}
}

func TestApplyFailureRestoresBackup(t *testing.T) {
	s, exe := newTestService(t, &fakeSource{payload: "truncated", updateErr: errors.New("checksum mismatch")})
	makeAvailable(s, "1.1.0")

	_, err := s.Apply(context.Background())
	if !HasCode(err, CodeApplyFailed) {
		t.Fatalf("Apply() error = %v, want %s", err, CodeApplyFailed)
	}
	if got := readFile(t, exe); got != "old" {
		t.Errorf("binary = %q, want old restored", got)
	}
	if s.Status().State != StateError {
		t.Errorf("state = %s, want error", s.Status().State)
	}
}

func TestApplyChecksFirst(t *testing.T) {
	src := &fakeSource{}
	s, exe := newTestService(t, src)

	if _, err := s.Apply(context.Background()); !HasCode(err, CodeNotFound) {
		t.Fatalf("Apply() error = %v, want %s", err, CodeNotFound)
	}
	if src.detects != 1 {
		t.Errorf("detects = %d, want 1", src.detects)
	}
	if got := readFile(t, exe); got != "old" {
		t.Errorf("binary = %q, want untouched", got)
	}
}

func TestBusyServiceRefuses(t *testing.T) {
	s, _ := newTestService(t, &fakeSource{found: true})
	s.state = StateApplying

	if _, err := s.Check(context.Background()); !HasCode(err, CodeInvalidState) {
		t.Errorf("Check() error = %v, want %s", err, CodeInvalidState)
	}
}

func TestDisabledService(t *testing.T) {
	s, _ := newTestService(t, &fakeSource{})
	s.disabled = "no write permission to /usr/bin"

	if s.Enabled() {
		t.Error("Enabled() = true")
	}
	if _, err := s.Check(context.Background()); !HasCode(err, CodeDisabled) {
		t.Errorf("Check() error = %v", err)
	}
	if _, err := s.Rollback(context.Background()); !HasCode(err, CodeDisabled) {
		t.Errorf("Rollback() error = %v", err)
	}
	if st := s.Status(); st.Error != s.disabled {
		t.Errorf("Status().Error = %q", st.Error)
	}
}

func TestRollbackWithoutBackup(t *testing.T) {
	s, _ := newTestService(t, &fakeSource{})
	if _, err := s.Rollback(context.Background()); !HasCode(err, CodeNoBackup) {
		t.Errorf("Rollback() error = %v, want %s", err, CodeNoBackup)
	}
}

func TestBackupSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "lednode")
	if err := os.WriteFile(exe, []byte("old"), 0o755); err != nil {
		t.Fatal(err)
	}
	logger := logging.GetLogger("updater")

	first, err := newBackupManager(filepath.Join(dir, "backup"), logger)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.create(exe, "0.9.0"); err != nil {
		t.Fatal(err)
	}

	second, err := newBackupManager(filepath.Join(dir, "backup"), logger)
	if err != nil {
		t.Fatal(err)
	}
	if got := second.version(); got != "0.9.0" {
		t.Errorf("version() = %q, want 0.9.0", got)
	}
}

func TestCheckWritable(t *testing.T) {
	dir := t.TempDir()
	ok := func() (string, error) { return filepath.Join(dir, "lednode"), nil }
	if reason := checkWritable(ok); reason != "" {
		t.Errorf("checkWritable(temp dir) = %q", reason)
	}

	missing := func() (string, error) { return filepath.Join(dir, "nope", "lednode"), nil }
	if reason := checkWritable(missing); reason == "" {
		t.Error("checkWritable(missing dir) should fail")
	}

	broken := func() (string, error) { return "", errors.New("no /proc") }
	if reason := checkWritable(broken); reason == "" {
		t.Error("checkWritable(error) should fail")
	}
}
