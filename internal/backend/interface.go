package backend

import (
	"context"

	"glaz/internal/core"
	"glaz/internal/storage"
)

// Backend is the persistence contract shared by the file and sqlite
// implementations.
type Backend interface {
	LoadAccounts() storage.AccountsLoadResult
	SaveAccounts(accounts []core.Account) error
	LoadTypes() (core.TypesDocument, error)
	SaveTypes(types []core.AccountType) error
	Close() error
}

// BackupManager is the file-level backup surface. Only the file backend
// implements it; callers probe for it with a type assertion.
type BackupManager interface {
	ListBackups() ([]core.BackupInfo, error)
	CreateFullBackup() (string, error)
	RestoreFromBackup(name string) (core.RestoreResult, error)
	Stats() (core.StorageStats, error)
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend Backend
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// File specific
	DataDirectory   string
	BackupRetention int

	// SQLite specific
	SQLiteDBPath string
}

// BackendType represents the type of backend
type BackendType string

const (
	FileBackend   BackendType = "file"
	SQLiteBackend BackendType = "sqlite"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case FileBackend, SQLiteBackend:
		return true
	default:
		return false
	}
}
