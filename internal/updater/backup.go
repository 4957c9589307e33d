package updater

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	backupFilename     = "lednode.backup"
	backupInfoFilename = "backup.json"
)

type backupInfo struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	ExecPath  string    `json:"exec_path"`
}

// backupManager keeps one copy of the binary that was replaced last.
type backupManager struct {
	mu     sync.RWMutex
	dir    string
	info   *backupInfo
	logger *slog.Logger
}

func defaultBackupDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home directory: %w", err)
	}
	return filepath.Join(home, ".cache", "lednode", "backup"), nil
}

func newBackupManager(dir string, logger *slog.Logger) (*backupManager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}
	m := &backupManager{dir: dir, logger: logger}
	m.load()
	return m, nil
}

func (m *backupManager) load() {
	data, err := os.ReadFile(filepath.Join(m.dir, backupInfoFilename))
	if err != nil {
		return
	}
	var info backupInfo
	if err := json.Unmarshal(data, &info); err != nil {
		m.logger.Warn("Ignoring unreadable backup info", "error", err)
		return
	}
	if _, err := os.Stat(filepath.Join(m.dir, backupFilename)); err != nil {
		m.logger.Warn("Backup binary missing", "dir", m.dir)
		return
	}
	m.mu.Lock()
	m.info = &info
	m.mu.Unlock()
}

func (m *backupManager) create(execPath, version string) error {
	if err := copyFile(execPath, filepath.Join(m.dir, backupFilename)); err != nil {
		return err
	}

	info := backupInfo{Version: version, CreatedAt: time.Now(), ExecPath: execPath}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal backup info: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.dir, backupInfoFilename), data, 0o644); err != nil {
		return fmt.Errorf("write backup info: %w", err)
	}

	m.mu.Lock()
	m.info = &info
	m.mu.Unlock()
	m.logger.Info("Backup created", "version", version)
	return nil
}

func (m *backupManager) restore() (string, error) {
	m.mu.RLock()
	info := m.info
	m.mu.RUnlock()
	if info == nil {
		return "", newError(CodeNoBackup, "no backup available", nil)
	}
	if err := copyFile(filepath.Join(m.dir, backupFilename), info.ExecPath); err != nil {
		return "", err
	}
	m.logger.Info("Backup restored", "version", info.Version)
	return info.Version, nil
}

func (m *backupManager) version() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.info == nil {
		return ""
	}
	return m.info.Version
}

func copyFile(from, to string) error {
	src, err := os.Open(from)
	if err != nil {
		return fmt.Errorf("open %s: %w", from, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(to, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("create %s: %w", to, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("copy to %s: %w", to, err)
	}
	return dst.Close()
}
