package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"glaz/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository mirrors the document semantics of FileStore over a sqlite
// database: loads return the whole collection, saves replace it. File-level
// backup operations are not available on this backend.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrateSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// LoadAccounts returns all accounts. The migration seeds the default
// accounts, so an empty table means every account was deleted, not a fresh
// install. Read failures degrade to an empty collection, matching the file
// store's recovery policy.
func (r *SQLiteRepository) LoadAccounts() AccountsLoadResult {
	rows, err := r.db.Query(`SELECT id, name, balance, currency, type, description, created_at, updated_at
		FROM accounts ORDER BY id`)
	if err != nil {
		slog.Warn("Recovering accounts from sqlite read failure",
			"error", err, "component", "storage")
		return AccountsLoadResult{Accounts: []core.Account{}, NextID: 1, Status: LoadStatusRecovered}
	}
	defer rows.Close()

	accounts := []core.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			slog.Warn("Recovering accounts from sqlite scan failure",
				"error", err, "component", "storage")
			return AccountsLoadResult{Accounts: []core.Account{}, NextID: 1, Status: LoadStatusRecovered}
		}
		accounts = append(accounts, a)
	}

	nextID := core.NextID(accounts)
	if stored, err := r.storedNextID(); err == nil && stored > nextID {
		nextID = stored
	}

	slog.Info("Loaded accounts from sqlite",
		"accounts_count", len(accounts), "component", "storage")
	return AccountsLoadResult{Accounts: accounts, NextID: nextID, Status: LoadStatusLoaded}
}

// SaveAccounts replaces the accounts table with the given collection in one
// transaction and advances the stored next id.
func (r *SQLiteRepository) SaveAccounts(accounts []core.Account) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save accounts: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM accounts`); err != nil {
		return fmt.Errorf("clear accounts: %w", err)
	}
	for _, a := range accounts {
		_, err := tx.Exec(`INSERT INTO accounts (id, name, balance, currency, type, description, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.Name, a.Balance, a.Currency, a.Type, a.Description,
			formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
		if err != nil {
			return fmt.Errorf("insert account %d: %w", a.ID, err)
		}
	}

	nextID := core.NextID(accounts)
	if stored, err := r.storedNextID(); err == nil && stored > nextID {
		nextID = stored
	}
	if _, err := tx.Exec(`UPDATE meta SET value = ? WHERE key = 'next_id'`, nextID); err != nil {
		return fmt.Errorf("update next id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save accounts: %w", err)
	}

	slog.Info("Saved accounts to sqlite",
		"accounts_count", len(accounts), "component", "storage")
	return nil
}

// LoadTypes returns all account types. An empty table surfaces as
// fs.ErrNotExist so the registry reseeds its defaults.
func (r *SQLiteRepository) LoadTypes() (core.TypesDocument, error) {
	var doc core.TypesDocument

	rows, err := r.db.Query(`SELECT id, name, description, is_system, created_at, updated_at
		FROM account_types ORDER BY rowid`)
	if err != nil {
		return doc, fmt.Errorf("query account types: %w", err)
	}
	defer rows.Close()

	types := []core.AccountType{}
	for rows.Next() {
		var (
			t                  core.AccountType
			isSystem           int64
			createdAt, updated string
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &isSystem, &createdAt, &updated); err != nil {
			return doc, fmt.Errorf("scan account type: %w", err)
		}
		t.IsSystem = isSystem != 0
		t.CreatedAt = parseTime(createdAt)
		t.UpdatedAt = parseTime(updated)
		types = append(types, t)
	}

	if len(types) == 0 {
		return doc, fs.ErrNotExist
	}

	doc.Types = types
	doc.Version = core.TypesDocumentVersion
	return doc, nil
}

// SaveTypes replaces the account-types table in one transaction.
func (r *SQLiteRepository) SaveTypes(types []core.AccountType) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save types: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM account_types`); err != nil {
		return fmt.Errorf("clear account types: %w", err)
	}
	for _, t := range types {
		isSystem := 0
		if t.IsSystem {
			isSystem = 1
		}
		_, err := tx.Exec(`INSERT INTO account_types (id, name, description, is_system, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			t.ID, t.Name, t.Description, isSystem,
			formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
		if err != nil {
			return fmt.Errorf("insert account type %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save types: %w", err)
	}

	slog.Info("Saved account types to sqlite",
		"types_count", len(types), "component", "storage")
	return nil
}

func (r *SQLiteRepository) storedNextID() (int64, error) {
	var next int64
	err := r.db.QueryRow(`SELECT value FROM meta WHERE key = 'next_id'`).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read next id: %w", err)
	}
	return next, nil
}

func scanAccount(rows *sql.Rows) (core.Account, error) {
	var (
		a                  core.Account
		createdAt, updated string
	)
	if err := rows.Scan(&a.ID, &a.Name, &a.Balance, &a.Currency, &a.Type, &a.Description, &createdAt, &updated); err != nil {
		return a, err
	}
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updated)
	return a, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
