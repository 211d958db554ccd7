// Package storage persists the accounts and account-types documents. The
// primary implementation keeps both as JSON files with rotating timestamped
// backups; a SQLite-backed mirror of the same operations exists for
// deployments that prefer a database file.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"glaz/internal/core"
)

const (
	accountsFileName = "accounts.json"
	typesFileName    = "account-types.json"

	accountsBackupPrefix = "accounts_backup_"
	typesBackupPrefix    = "account-types_backup_"
	fullBackupPrefix     = "full_backup_"
)

var (
	// ErrNoDocument reports that the primary accounts document does not
	// exist yet, so there is nothing to back up.
	ErrNoDocument = errors.New("no accounts document exists yet")

	// ErrUnsupported reports an operation the active backend cannot perform,
	// such as file-level backups on the sqlite backend.
	ErrUnsupported = errors.New("operation not supported by this backend")
)

// LoadStatus tags how a load completed, so callers can tell a clean read from
// a seeded first run or a recovery from a corrupt document.
type LoadStatus string

const (
	LoadStatusLoaded    LoadStatus = "loaded"
	LoadStatusSeeded    LoadStatus = "seeded"
	LoadStatusRecovered LoadStatus = "recovered"
)

// AccountsLoadResult is the outcome of loading the accounts document. Load
// never fails: corrupt or unreadable documents degrade to an empty, freshly
// persisted collection tagged LoadStatusRecovered.
type AccountsLoadResult struct {
	Accounts []core.Account
	NextID   int64
	Status   LoadStatus
}

// FileStore keeps the accounts and account-types documents as JSON files in
// a single data directory, alongside their backup families.
type FileStore struct {
	dataDir  string
	accounts docFile
	types    docFile
}

// NewFileStore creates the data directory if needed and returns a store with
// the given rotation-backup retention (applied to both document families).
func NewFileStore(dataDir string, retention int) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &FileStore{
		dataDir: dataDir,
		accounts: docFile{
			path:         filepath.Join(dataDir, accountsFileName),
			backupPrefix: accountsBackupPrefix,
			retain:       retention,
		},
		types: docFile{
			path:         filepath.Join(dataDir, typesFileName),
			backupPrefix: typesBackupPrefix,
			retain:       retention,
		},
	}, nil
}

// LoadAccounts reads the accounts document. A missing document is seeded with
// the two example accounts; a malformed one degrades to an empty collection
// that is persisted immediately. Missing timestamps on legacy records are
// back-filled in memory only; the next save persists them.
func (s *FileStore) LoadAccounts() AccountsLoadResult {
	raw, err := s.accounts.read()
	if errors.Is(err, fs.ErrNotExist) {
		seeds := defaultAccounts()
		if err := s.SaveAccounts(seeds); err != nil {
			slog.Error("Failed to persist seeded accounts", "error", err, "component", "storage")
		}
		slog.Info("Accounts document missing, seeded default accounts",
			"accounts_count", len(seeds), "component", "storage")
		return AccountsLoadResult{Accounts: seeds, NextID: core.NextID(seeds), Status: LoadStatusSeeded}
	}
	if err != nil {
		return s.recoverAccounts(fmt.Errorf("read accounts document: %w", err))
	}

	var doc core.AccountsDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return s.recoverAccounts(fmt.Errorf("parse accounts document: %w", err))
	}
	if doc.Accounts == nil {
		return s.recoverAccounts(core.ErrInvalidDocument)
	}

	now := time.Now().UTC()
	for i := range doc.Accounts {
		if doc.Accounts[i].CreatedAt.IsZero() {
			doc.Accounts[i].CreatedAt = now
		}
		if doc.Accounts[i].UpdatedAt.IsZero() {
			doc.Accounts[i].UpdatedAt = now
		}
	}

	nextID := core.NextID(doc.Accounts)
	if doc.NextID > nextID {
		nextID = doc.NextID
	}

	slog.Info("Loaded accounts from storage",
		"accounts_count", len(doc.Accounts), "component", "storage")
	return AccountsLoadResult{Accounts: doc.Accounts, NextID: nextID, Status: LoadStatusLoaded}
}

// recoverAccounts implements the silent-recovery policy: fall back to an
// empty collection, persist the fallback, and tag the result so callers can
// log the degradation without failing.
func (s *FileStore) recoverAccounts(cause error) AccountsLoadResult {
	slog.Warn("Recovering accounts storage with empty collection",
		"error", cause, "component", "storage")
	empty := []core.Account{}
	if err := s.SaveAccounts(empty); err != nil {
		slog.Error("Failed to persist recovery fallback", "error", err, "component", "storage")
	}
	return AccountsLoadResult{Accounts: empty, NextID: 1, Status: LoadStatusRecovered}
}

// SaveAccounts writes the accounts document, rotating a timestamped backup of
// the previous version first. The persisted nextId never decreases, so ids of
// deleted accounts are not reused after a reload.
func (s *FileStore) SaveAccounts(accounts []core.Account) error {
	if accounts == nil {
		accounts = []core.Account{}
	}

	nextID := core.NextID(accounts)
	if prior, err := s.readAccountsDoc(); err == nil && prior.NextID > nextID {
		nextID = prior.NextID
	}

	doc := core.AccountsDocument{
		Accounts:  accounts,
		NextID:    nextID,
		LastSaved: time.Now().UTC(),
		Version:   core.AccountsDocumentVersion,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal accounts document: %w", err)
	}
	if err := s.accounts.write(data, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("save accounts: %w", err)
	}

	slog.Info("Saved accounts to storage",
		"accounts_count", len(accounts), "component", "storage")
	return nil
}

func (s *FileStore) readAccountsDoc() (core.AccountsDocument, error) {
	var doc core.AccountsDocument
	raw, err := s.accounts.read()
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, err
	}
	if doc.Accounts == nil {
		return doc, core.ErrInvalidDocument
	}
	return doc, nil
}

// ListBackups enumerates the rotation family and the manual full backups,
// newest first.
func (s *FileStore) ListBackups() ([]core.BackupInfo, error) {
	rotation, err := s.accounts.listBackups()
	if err != nil {
		return nil, err
	}

	infos := make([]core.BackupInfo, 0, len(rotation))
	for _, b := range rotation {
		infos = append(infos, core.BackupInfo{
			Name:      b.name,
			Timestamp: b.stamp,
			CreatedAt: time.UnixMilli(b.stamp).UTC(),
			SizeBytes: b.size,
		})
	}

	full, err := s.listFullBackups()
	if err != nil {
		return nil, err
	}
	infos = append(infos, full...)

	sortBackupInfos(infos)
	return infos, nil
}

func (s *FileStore) listFullBackups() ([]core.BackupInfo, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("read data directory: %w", err)
	}

	var infos []core.BackupInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, fullBackupPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		stamp, err := parseFullBackupTime(strings.TrimSuffix(strings.TrimPrefix(name, fullBackupPrefix), ".json"))
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, core.BackupInfo{
			Name:      name,
			Timestamp: stamp.UnixMilli(),
			CreatedAt: stamp,
			SizeBytes: info.Size(),
		})
	}
	return infos, nil
}

func sortBackupInfos(infos []core.BackupInfo) {
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Timestamp > infos[j].Timestamp
	})
}

// CreateFullBackup copies the primary document to a manual snapshot outside
// the rotation family, named by an ISO timestamp with filesystem-safe
// separators. Returns ErrNoDocument when nothing has been persisted yet.
func (s *FileStore) CreateFullBackup() (string, error) {
	if !s.accounts.exists() {
		return "", ErrNoDocument
	}

	name := fullBackupName(time.Now().UTC())
	if err := copyFile(s.accounts.path, filepath.Join(s.dataDir, name)); err != nil {
		return "", fmt.Errorf("create full backup: %w", err)
	}

	slog.Info("Created full backup", "backup_file", name, "component", "storage")
	return name, nil
}

// RestoreFromBackup validates the named backup, takes a safety snapshot of
// the current state, and copies the backup over the primary document. On any
// failure the primary document is left untouched.
func (s *FileStore) RestoreFromBackup(name string) (core.RestoreResult, error) {
	var result core.RestoreResult

	if name == "" || name != filepath.Base(name) {
		return result, fmt.Errorf("%w: %q", core.ErrBackupNotFound, name)
	}
	if !strings.HasPrefix(name, accountsBackupPrefix) && !strings.HasPrefix(name, fullBackupPrefix) {
		return result, fmt.Errorf("%w: %q", core.ErrBackupNotFound, name)
	}

	backupPath := filepath.Join(s.dataDir, name)
	raw, err := os.ReadFile(backupPath)
	if errors.Is(err, fs.ErrNotExist) {
		return result, fmt.Errorf("%w: %q", core.ErrBackupNotFound, name)
	}
	if err != nil {
		return result, fmt.Errorf("read backup: %w", err)
	}

	var doc core.AccountsDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return result, fmt.Errorf("%w: %v", core.ErrInvalidDocument, err)
	}
	if doc.Accounts == nil {
		return result, fmt.Errorf("%w: missing accounts field", core.ErrInvalidDocument)
	}

	safety, err := s.CreateFullBackup()
	if err != nil && !errors.Is(err, ErrNoDocument) {
		return result, fmt.Errorf("safety backup: %w", err)
	}

	if err := copyFile(backupPath, s.accounts.path); err != nil {
		return result, fmt.Errorf("restore backup: %w", err)
	}

	slog.Info("Restored accounts from backup",
		"backup_file", name, "safety_backup", safety,
		"accounts_count", len(doc.Accounts), "component", "storage")
	return core.RestoreResult{
		RestoredAccounts: len(doc.Accounts),
		SafetyBackup:     safety,
		RestoredAt:       time.Now().UTC(),
	}, nil
}

// Stats summarizes the primary accounts document. A missing document yields
// zero stats, not an error.
func (s *FileStore) Stats() (core.StorageStats, error) {
	info, err := os.Stat(s.accounts.path)
	if errors.Is(err, fs.ErrNotExist) {
		return core.StorageStats{}, nil
	}
	if err != nil {
		return core.StorageStats{}, fmt.Errorf("stat accounts document: %w", err)
	}

	doc, err := s.readAccountsDoc()
	if err != nil {
		return core.StorageStats{}, fmt.Errorf("read accounts document: %w", err)
	}

	return core.StorageStats{
		AccountsCount: len(doc.Accounts),
		FileSizeBytes: info.Size(),
		LastSaved:     doc.LastSaved,
		Version:       doc.Version,
		NextID:        doc.NextID,
	}, nil
}

// LoadTypes reads the account-types document. A missing file surfaces as
// fs.ErrNotExist so the registry can seed defaults; a malformed one as
// ErrInvalidTypesDocument so it can recover.
func (s *FileStore) LoadTypes() (core.TypesDocument, error) {
	var doc core.TypesDocument
	raw, err := s.types.read()
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("%w: %v", core.ErrInvalidTypesDocument, err)
	}
	if doc.Types == nil {
		return doc, core.ErrInvalidTypesDocument
	}
	return doc, nil
}

// SaveTypes writes the account-types document with the same rotation-backup
// discipline as the accounts family.
func (s *FileStore) SaveTypes(types []core.AccountType) error {
	if types == nil {
		types = []core.AccountType{}
	}
	doc := core.TypesDocument{
		Types:     types,
		LastSaved: time.Now().UTC(),
		Version:   core.TypesDocumentVersion,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal types document: %w", err)
	}
	if err := s.types.write(data, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("save account types: %w", err)
	}

	slog.Info("Saved account types to storage",
		"types_count", len(types), "component", "storage")
	return nil
}

// Close implements the backend contract; a file store has nothing to release.
func (s *FileStore) Close() error {
	return nil
}

// fullBackupName formats a manual snapshot name: the ISO-8601 UTC timestamp
// with ":" and "." replaced so it is safe on any filesystem.
func fullBackupName(t time.Time) string {
	iso := t.Format("2006-01-02T15:04:05.000Z")
	iso = strings.NewReplacer(":", "-", ".", "-").Replace(iso)
	return fullBackupPrefix + iso + ".json"
}

// parseFullBackupTime reverses fullBackupName's separator normalization.
func parseFullBackupTime(stamp string) (time.Time, error) {
	// 2026-08-31T12-34-56-789Z -> 2026-08-31T12:34:56.789Z
	if len(stamp) != 24 || stamp[10] != 'T' || stamp[23] != 'Z' {
		return time.Time{}, fmt.Errorf("unrecognized backup timestamp %q", stamp)
	}
	iso := stamp[:13] + ":" + stamp[14:16] + ":" + stamp[17:19] + "." + stamp[20:23] + "Z"
	return time.Parse("2006-01-02T15:04:05.000Z", iso)
}

// defaultAccounts is the seed set for a fresh installation.
func defaultAccounts() []core.Account {
	now := time.Now().UTC()
	return []core.Account{
		{
			ID:          1,
			Name:        "Основной счет",
			Balance:     100000,
			Currency:    "RUB",
			Type:        core.CheckingTypeID,
			Description: "Основной расчетный счет",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			ID:          2,
			Name:        "Инвестиционный счет",
			Balance:     50000,
			Currency:    "RUB",
			Type:        "investment",
			Description: "Счет для инвестиций",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
}
