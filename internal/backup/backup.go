// Package backup snapshots the local key-value store to JSON files so the
// offline cache, reminders, goals and activity feed can be restored.
package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/julianstephens/habitpilot/internal/logger"
	"github.com/julianstephens/habitpilot/internal/storage"
)

const (
	// MaxBackups is the maximum number of backups to keep
	MaxBackups = 14
	// BackupDirName is the name of the backup directory
	BackupDirName = "backups"
	// BackupFilePrefix is the prefix for backup files
	BackupFilePrefix = "habitpilot-"
	// BackupFileSuffix is the suffix for backup files
	BackupFileSuffix = ".json"

	snapshotVersion = 1
	timestampFormat = "20060102-150405"
)

// BackupInfo contains information about a backup file
type BackupInfo struct {
	Path      string
	Timestamp time.Time
	Size      int64
}

type snapshot struct {
	Version   int               `json:"version"`
	CreatedAt time.Time         `json:"created_at"`
	Entries   map[string][]byte `json:"entries"`
}

// Manager writes and restores snapshots of one storage provider.
type Manager struct {
	store     storage.Provider
	backupDir string
	now       func() time.Time
}

// NewManager keeps backups in configDir/backups.
func NewManager(store storage.Provider, configDir string) *Manager {
	return &Manager{
		store:     store,
		backupDir: filepath.Join(configDir, BackupDirName),
		now:       time.Now,
	}
}

// GetBackupDir returns the backup directory path
func (m *Manager) GetBackupDir() string {
	return m.backupDir
}

// CreateBackup writes every key of the store to a new snapshot file and
// rotates old ones.
func (m *Manager) CreateBackup() (string, error) {
	return m.createBackup(false)
}

// skipRotation keeps the pre-restore safety copy from evicting the backup
// being restored.
func (m *Manager) createBackup(skipRotation bool) (string, error) {
	if err := os.MkdirAll(m.backupDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	snap, err := m.export()
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize backup: %w", err)
	}

	path, err := m.nextPath(snap.CreatedAt)
	if err != nil {
		return "", err
	}
	if err := writeFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	if !skipRotation {
		if err := m.rotateBackups(); err != nil {
			logger.Warn("Failed to rotate old backups", "error", err)
		}
	}
	logger.Info("Backup created", "path", path, "keys", len(snap.Entries))
	return path, nil
}

func (m *Manager) export() (snapshot, error) {
	keys, err := m.store.Keys()
	if err != nil {
		return snapshot{}, fmt.Errorf("failed to list keys: %w", err)
	}

	snap := snapshot{
		Version:   snapshotVersion,
		CreatedAt: m.now().UTC(),
		Entries:   make(map[string][]byte, len(keys)),
	}
	for _, k := range keys {
		v, ok, err := m.store.Get(k)
		if err != nil {
			return snapshot{}, fmt.Errorf("failed to read key %q: %w", k, err)
		}
		if ok {
			snap.Entries[k] = v
		}
	}
	return snap, nil
}

// nextPath picks a file name from the timestamp, adding a counter when a
// backup with the same second already exists.
func (m *Manager) nextPath(at time.Time) (string, error) {
	stamp := at.Format(timestampFormat)
	path := filepath.Join(m.backupDir, BackupFilePrefix+stamp+BackupFileSuffix)
	for counter := 1; ; counter++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		}
		if counter > 100 {
			return "", fmt.Errorf("failed to generate unique backup filename")
		}
		path = filepath.Join(m.backupDir, fmt.Sprintf("%s%s-%d%s", BackupFilePrefix, stamp, counter, BackupFileSuffix))
	}
}

// ListBackups returns a list of all available backups, sorted by timestamp (newest first)
func (m *Manager) ListBackups() ([]BackupInfo, error) {
	entries, err := os.ReadDir(m.backupDir)
	if os.IsNotExist(err) {
		return []BackupInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	backups := []BackupInfo{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ts, counter, ok := parseName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, BackupInfo{
			Path: filepath.Join(m.backupDir, entry.Name()),
			// Counters order backups written within the same second.
			Timestamp: ts.Add(time.Duration(counter) * time.Millisecond),
			Size:      info.Size(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// parseName extracts the timestamp and optional counter from
// habitpilot-YYYYMMDD-HHMMSS[-N].json.
func parseName(name string) (time.Time, int, bool) {
	if !strings.HasPrefix(name, BackupFilePrefix) || !strings.HasSuffix(name, BackupFileSuffix) {
		return time.Time{}, 0, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, BackupFilePrefix), BackupFileSuffix)

	counter := 0
	if parts := strings.Split(stamp, "-"); len(parts) == 3 {
		n, err := strconv.Atoi(parts[2])
		if err != nil || n <= 0 {
			return time.Time{}, 0, false
		}
		counter = n
		stamp = parts[0] + "-" + parts[1]
	}

	ts, err := time.Parse(timestampFormat, stamp)
	if err != nil {
		return time.Time{}, 0, false
	}
	return ts, counter, true
}

// rotateBackups removes old backups beyond the retention limit
func (m *Manager) rotateBackups() error {
	backups, err := m.ListBackups()
	if err != nil {
		return err
	}

	for i := MaxBackups; i < len(backups); i++ {
		if err := os.Remove(backups[i].Path); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", backups[i].Path, err)
		}
	}
	return nil
}

// RestoreBackup replaces the store's contents with the snapshot at
// backupPath. The current contents are backed up first; keys missing from
// the snapshot are removed.
func (m *Manager) RestoreBackup(backupPath string) (string, error) {
	snap, err := readSnapshot(backupPath)
	if err != nil {
		return "", fmt.Errorf("backup file is corrupted or invalid: %w", err)
	}

	safety, err := m.createBackup(true)
	if err != nil {
		return "", fmt.Errorf("failed to backup current state before restore: %w", err)
	}

	keys, err := m.store.Keys()
	if err != nil {
		return safety, fmt.Errorf("failed to list keys: %w", err)
	}
	for _, k := range keys {
		if _, keep := snap.Entries[k]; keep {
			continue
		}
		if err := m.store.Remove(k); err != nil {
			return safety, fmt.Errorf("failed to remove key %q: %w", k, err)
		}
	}
	for k, v := range snap.Entries {
		if err := m.store.Put(k, v); err != nil {
			return safety, fmt.Errorf("failed to restore key %q: %w", k, err)
		}
	}

	logger.Info("Backup restored", "path", backupPath, "keys", len(snap.Entries))
	return safety, nil
}

func readSnapshot(path string) (snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return snapshot{}, err
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return snapshot{}, err
	}
	if snap.Version == 0 || snap.Version > snapshotVersion {
		return snapshot{}, fmt.Errorf("unsupported backup version %d", snap.Version)
	}
	if snap.Entries == nil {
		snap.Entries = map[string][]byte{}
	}
	return snap, nil
}

// writeFileAtomic writes to a temp file and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
