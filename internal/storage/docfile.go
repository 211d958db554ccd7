package storage

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// docFile is one persisted JSON document plus its rotation-backup family.
// Every overwrite first copies the current file to a timestamped backup and
// then prunes the family down to the newest retain entries.
type docFile struct {
	path         string
	backupPrefix string
	retain       int
}

func (d docFile) dir() string {
	return filepath.Dir(d.path)
}

func (d docFile) exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

func (d docFile) read() ([]byte, error) {
	return os.ReadFile(d.path)
}

// write rotates a backup of the current document, overwrites it, then prunes
// the backup family.
func (d docFile) write(data []byte, nowMillis int64) error {
	if d.exists() {
		if err := d.rotate(nowMillis); err != nil {
			return fmt.Errorf("rotate backup: %w", err)
		}
	}
	if err := os.WriteFile(d.path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(d.path), err)
	}
	d.prune()
	return nil
}

func (d docFile) rotate(nowMillis int64) error {
	// Bump the timestamp until the name is free so rapid successive saves
	// never overwrite an earlier backup.
	ts := nowMillis
	name := d.backupName(ts)
	for {
		if _, err := os.Stat(name); os.IsNotExist(err) {
			break
		}
		ts++
		name = d.backupName(ts)
	}
	return copyFile(d.path, name)
}

func (d docFile) backupName(millis int64) string {
	return filepath.Join(d.dir(), fmt.Sprintf("%s%d.json", d.backupPrefix, millis))
}

// prune keeps the newest retain backups of this family, newest first by
// modification time. Errors are logged and swallowed: a failed cleanup must
// never fail the save that triggered it.
func (d docFile) prune() {
	backups, err := d.listBackups()
	if err != nil {
		slog.Warn("Backup cleanup failed", "error", err, "component", "storage")
		return
	}
	if len(backups) <= d.retain {
		return
	}
	for _, b := range backups[d.retain:] {
		if err := os.Remove(filepath.Join(d.dir(), b.name)); err != nil {
			slog.Warn("Failed to delete old backup", "error", err, "backup_file", b.name, "component", "storage")
		}
	}
}

type backupFile struct {
	name    string
	modTime int64 // unix millis
	size    int64
	stamp   int64 // embedded epoch millis
}

// listBackups returns this family's backup files sorted newest-first by
// modification time, with the filename timestamp as tiebreaker.
func (d docFile) listBackups() ([]backupFile, error) {
	entries, err := os.ReadDir(d.dir())
	if err != nil {
		return nil, fmt.Errorf("read data directory: %w", err)
	}

	var backups []backupFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, d.backupPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		stamp, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, d.backupPrefix), ".json"), 10, 64)
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backupFile{
			name:    name,
			modTime: info.ModTime().UnixMilli(),
			size:    info.Size(),
			stamp:   stamp,
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		if backups[i].modTime != backups[j].modTime {
			return backups[i].modTime > backups[j].modTime
		}
		return backups[i].stamp > backups[j].stamp
	})
	return backups, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(src), err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(dst), err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy to %s: %w", filepath.Base(dst), err)
	}
	return out.Sync()
}
