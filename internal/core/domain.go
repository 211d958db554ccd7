package core

import (
	"errors"
	"strings"
	"time"
)

// CheckingTypeID is the protected system account type. Exactly one type with
// this id and IsSystem=true must exist after any sequence of registry
// operations; accounts losing their type are reassigned to it.
const CheckingTypeID = "checking"

// Document format versions persisted in the lastSaved envelopes.
const (
	AccountsDocumentVersion = "2.1.0"
	TypesDocumentVersion    = "2.2.0"
)

type (
	// Account is a tracked balance with currency, type and descriptive
	// metadata, persisted inside the accounts document.
	Account struct {
		ID          int64     `json:"id"`
		Name        string    `json:"name"`
		Balance     float64   `json:"balance"`
		Currency    string    `json:"currency"`
		Type        string    `json:"type"`
		Description string    `json:"description"`
		CreatedAt   time.Time `json:"createdAt"`
		UpdatedAt   time.Time `json:"updatedAt"`
	}

	// AccountType is a user- or system-defined category an account belongs to.
	AccountType struct {
		ID          string    `json:"id"`
		Name        string    `json:"name"`
		Description string    `json:"description"`
		IsSystem    bool      `json:"isSystem"`
		CreatedAt   time.Time `json:"createdAt"`
		UpdatedAt   time.Time `json:"updatedAt,omitempty"`
	}

	// AccountsDocument is the persisted accounts file.
	AccountsDocument struct {
		Accounts  []Account `json:"accounts"`
		NextID    int64     `json:"nextId"`
		LastSaved time.Time `json:"lastSaved"`
		Version   string    `json:"version"`
	}

	// TypesDocument is the persisted account-types file.
	TypesDocument struct {
		Types     []AccountType `json:"types"`
		LastSaved time.Time     `json:"lastSaved"`
		Version   string        `json:"version"`
	}

	// BackupInfo describes one rotation or full backup file.
	BackupInfo struct {
		Name      string    `json:"filename"`
		Timestamp int64     `json:"timestamp"`
		CreatedAt time.Time `json:"createdAt"`
		SizeBytes int64     `json:"size"`
	}

	// RestoreResult reports a completed restore.
	RestoreResult struct {
		RestoredAccounts int       `json:"restoredAccounts"`
		SafetyBackup     string    `json:"safetyBackup"`
		RestoredAt       time.Time `json:"restoredAt"`
	}

	// StorageStats summarizes the primary accounts document.
	StorageStats struct {
		AccountsCount int       `json:"accountsCount"`
		FileSizeBytes int64     `json:"fileSize"`
		LastSaved     time.Time `json:"lastSaved"`
		Version       string    `json:"version"`
		NextID        int64     `json:"nextId"`
	}
)

// Error taxonomy. Not-found and validation errors surface to the HTTP layer
// as 404/400 with the message forwarded verbatim; everything else is a
// storage or upstream failure.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrTypeNotFound    = errors.New("account type not found")

	ErrNameRequired       = errors.New("type name is required")
	ErrDuplicateName      = errors.New("account type with this name already exists")
	ErrSystemType         = errors.New("system account types cannot be deleted")
	ErrCheckingDelete     = errors.New("checking account type cannot be deleted")
	ErrCheckingRenameOnly = errors.New(`system type "checking" can only be renamed, not deleted`)

	ErrAccountNameRequired  = errors.New("name, balance and currency are required")
	ErrBackupNotFound       = errors.New("backup file not found")
	ErrInvalidDocument      = errors.New("invalid accounts data format")
	ErrInvalidTypesDocument = errors.New("invalid account types data format")
)

// IsValidation reports whether err belongs to the validation class.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrNameRequired, ErrDuplicateName, ErrSystemType, ErrCheckingDelete,
		ErrCheckingRenameOnly, ErrAccountNameRequired, ErrInvalidDocument,
		ErrInvalidTypesDocument,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err belongs to the not-found class.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrTypeNotFound) ||
		errors.Is(err, ErrBackupNotFound)
}

// Validate checks the fields required to create an account.
func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" || strings.TrimSpace(a.Currency) == "" {
		return ErrAccountNameRequired
	}
	return nil
}

// Validate checks the fields required to create an account type.
func (t AccountType) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return ErrNameRequired
	}
	return nil
}

// NextID returns the next account id for a collection: max(id)+1, 1 when
// empty. Recomputed from persisted state before each save so ids stay
// monotonic across restores.
func NextID(accounts []Account) int64 {
	var max int64
	for _, a := range accounts {
		if a.ID > max {
			max = a.ID
		}
	}
	return max + 1
}

// CloneAccounts returns a shallow copy of the slice so callers can hand out
// state without sharing the backing array.
func CloneAccounts(accounts []Account) []Account {
	if accounts == nil {
		return nil
	}
	out := make([]Account, len(accounts))
	copy(out, accounts)
	return out
}
