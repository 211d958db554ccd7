// Package accounttypes manages the account-type catalog: four seeded
// defaults, a protected system type, slug-derived ids for user types, and
// reassignment of accounts when a type is deleted.
package accounttypes

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"time"

	"glaz/internal/core"
)

// TypeStore persists the account-types document.
type TypeStore interface {
	LoadTypes() (core.TypesDocument, error)
	SaveTypes(types []core.AccountType) error
}

// AccountRewriter persists accounts after a type deletion reassigns them.
type AccountRewriter interface {
	SaveAccounts(accounts []core.Account) error
}

// Registry is the in-memory account-type catalog backed by a TypeStore.
// All methods are safe for concurrent use; the caller serializes access to
// the accounts slice it passes in.
type Registry struct {
	mu       sync.Mutex
	store    TypeStore
	accounts AccountRewriter
	types    []core.AccountType
}

// DeleteResult describes a completed type deletion.
type DeleteResult struct {
	DeletedType        core.AccountType
	ReassignedAccounts int
	Accounts           []core.Account
}

// UsageStat counts the accounts referencing one type.
type UsageStat struct {
	Type     core.AccountType `json:"type"`
	Count    int              `json:"count"`
	Accounts []core.Account   `json:"accounts"`
}

// NewRegistry loads the catalog from the store. A missing document is seeded
// with the defaults; a malformed one is replaced by them. The system type is
// re-inserted at the front if a hand-edited document dropped it.
func NewRegistry(store TypeStore, accounts AccountRewriter) *Registry {
	r := &Registry{store: store, accounts: accounts}
	r.types = r.load()
	return r
}

func (r *Registry) load() []core.AccountType {
	doc, err := r.store.LoadTypes()
	if errors.Is(err, fs.ErrNotExist) {
		slog.Info("Account types document missing, seeding defaults", "component", "account_types")
		seeds := defaultTypes()
		r.persist(seeds)
		return seeds
	}
	if err != nil {
		slog.Warn("Recovering account types with defaults",
			"error", err, "component", "account_types")
		seeds := defaultTypes()
		r.persist(seeds)
		return seeds
	}

	types := doc.Types
	if !hasSystemChecking(types) {
		slog.Warn("System type missing from document, re-inserting",
			"type_id", core.CheckingTypeID, "component", "account_types")
		types = append([]core.AccountType{defaultTypes()[0]}, types...)
		r.persist(types)
	}

	slog.Info("Loaded account types from storage",
		"types_count", len(types), "component", "account_types")
	return types
}

func (r *Registry) persist(types []core.AccountType) {
	if err := r.store.SaveTypes(types); err != nil {
		slog.Error("Failed to persist account types", "error", err, "component", "account_types")
	}
}

func hasSystemChecking(types []core.AccountType) bool {
	for _, t := range types {
		if t.ID == core.CheckingTypeID && t.IsSystem {
			return true
		}
	}
	return false
}

// All returns a copy of the catalog in storage order.
func (r *Registry) All() []core.AccountType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cloneTypes()
}

// Get looks a type up by id.
func (r *Registry) Get(id string) (core.AccountType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(id)
}

// Exists reports whether a type id is present in the catalog.
func (r *Registry) Exists(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.existsLocked(id)
}

func (r *Registry) cloneTypes() []core.AccountType {
	out := make([]core.AccountType, len(r.types))
	copy(out, r.types)
	return out
}

func (r *Registry) getLocked(id string) (core.AccountType, error) {
	for _, t := range r.types {
		if t.ID == id {
			return t, nil
		}
	}
	return core.AccountType{}, fmt.Errorf("%w: %q", core.ErrTypeNotFound, id)
}

func (r *Registry) existsLocked(id string) bool {
	_, err := r.getLocked(id)
	return err == nil
}

// Add creates a user type with a slug id derived from the name. Names are
// unique case-insensitively.
func (r *Registry) Add(name, description string) (core.AccountType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	t := core.AccountType{
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		IsSystem:    false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := t.Validate(); err != nil {
		return core.AccountType{}, err
	}
	if r.nameTaken(t.Name, "") {
		return core.AccountType{}, core.ErrDuplicateName
	}
	t.ID = r.generateID(t.Name)

	next := append(r.cloneTypes(), t)
	if err := r.store.SaveTypes(next); err != nil {
		return core.AccountType{}, fmt.Errorf("save account types: %w", err)
	}
	r.types = next

	slog.Info("Added account type",
		"type_id", t.ID, "type_name", t.Name, "component", "account_types")
	return t, nil
}

// Update renames a type and optionally replaces its description. The system
// type accepts renames only; a blank name on it is rejected explicitly so the
// caller can distinguish the case from an ordinary missing name.
func (r *Registry) Update(id, name, description string) (core.AccountType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, t := range r.types {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return core.AccountType{}, fmt.Errorf("%w: %q", core.ErrTypeNotFound, id)
	}

	name = strings.TrimSpace(name)
	current := r.types[idx]

	if current.IsSystem && id == core.CheckingTypeID {
		if name == "" {
			return core.AccountType{}, core.ErrCheckingRenameOnly
		}
	} else {
		if name == "" {
			return core.AccountType{}, core.ErrNameRequired
		}
		if r.nameTaken(name, id) {
			return core.AccountType{}, core.ErrDuplicateName
		}
	}

	updated := current
	updated.Name = name
	if desc := strings.TrimSpace(description); desc != "" {
		updated.Description = desc
	}
	updated.UpdatedAt = time.Now().UTC()

	next := r.cloneTypes()
	next[idx] = updated
	if err := r.store.SaveTypes(next); err != nil {
		return core.AccountType{}, fmt.Errorf("save account types: %w", err)
	}
	r.types = next

	slog.Info("Updated account type",
		"type_id", id, "type_name", updated.Name, "component", "account_types")
	return updated, nil
}

// Delete removes a user type. Accounts referencing it are reassigned to the
// system type and persisted before the catalog shrinks, so a crash between
// the two writes can only leave a dangling type, never a dangling account.
func (r *Registry) Delete(id string, accounts []core.Account) (DeleteResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result DeleteResult

	idx := -1
	for i, t := range r.types {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return result, fmt.Errorf("%w: %q", core.ErrTypeNotFound, id)
	}
	deleted := r.types[idx]
	if deleted.IsSystem {
		return result, core.ErrSystemType
	}

	updated := core.CloneAccounts(accounts)
	reassigned := 0
	now := time.Now().UTC()
	for i := range updated {
		if updated[i].Type == id {
			updated[i].Type = core.CheckingTypeID
			updated[i].UpdatedAt = now
			reassigned++
		}
	}
	if reassigned > 0 {
		slog.Info("Reassigning accounts from deleted type",
			"type_id", id, "type_name", deleted.Name,
			"accounts_count", reassigned, "component", "account_types")
		if err := r.accounts.SaveAccounts(updated); err != nil {
			return result, fmt.Errorf("update accounts after type deletion: %w", err)
		}
	}

	next := r.cloneTypes()
	next = append(next[:idx], next[idx+1:]...)
	if err := r.store.SaveTypes(next); err != nil {
		return result, fmt.Errorf("save account types: %w", err)
	}
	r.types = next

	slog.Info("Deleted account type",
		"type_id", id, "type_name", deleted.Name, "component", "account_types")
	return DeleteResult{
		DeletedType:        deleted,
		ReassignedAccounts: reassigned,
		Accounts:           updated,
	}, nil
}

// Reconcile demotes accounts referencing a type that is no longer in the
// catalog back to the system type. It returns the adjusted slice and how many
// accounts changed; the caller persists when the count is non-zero.
func (r *Registry) Reconcile(accounts []core.Account) ([]core.Account, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	updated := core.CloneAccounts(accounts)
	changed := 0
	now := time.Now().UTC()
	for i := range updated {
		if updated[i].Type == "" || !r.existsLocked(updated[i].Type) {
			updated[i].Type = core.CheckingTypeID
			updated[i].UpdatedAt = now
			changed++
		}
	}
	if changed > 0 {
		slog.Warn("Demoted accounts with unknown types",
			"accounts_count", changed, "component", "account_types")
	}
	return updated, changed
}

// UsageStats counts account references per type.
func (r *Registry) UsageStats(accounts []core.Account) map[string]UsageStat {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make(map[string]UsageStat, len(r.types))
	for _, t := range r.types {
		stat := UsageStat{Type: t, Accounts: []core.Account{}}
		for _, a := range accounts {
			if a.Type == t.ID {
				stat.Accounts = append(stat.Accounts, a)
			}
		}
		stat.Count = len(stat.Accounts)
		stats[t.ID] = stat
	}
	return stats
}

// ValidateOperation pre-flights a mutation without performing it.
func (r *Registry) ValidateOperation(operation, typeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.getLocked(typeID)
	if err != nil {
		return err
	}
	if operation == "delete" && t.IsSystem {
		return core.ErrSystemType
	}
	if operation == "delete" && typeID == core.CheckingTypeID {
		return core.ErrCheckingDelete
	}
	return nil
}

// generateID derives a slug from the name: lowercase, ASCII letters and
// digits only, at most 20 characters. Names without ASCII characters (for
// example fully Cyrillic ones) fall back to a generic base. Collisions get a
// numeric suffix.
func (r *Registry) generateID(name string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(name) {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
		if b.Len() == 20 {
			break
		}
	}
	base := b.String()
	if base == "" {
		base = "type"
	}

	id := base
	for counter := 1; r.existsLocked(id); counter++ {
		id = fmt.Sprintf("%s%d", base, counter)
	}
	return id
}

func (r *Registry) nameTaken(name, excludeID string) bool {
	for _, t := range r.types {
		if t.ID != excludeID && strings.EqualFold(t.Name, name) {
			return true
		}
	}
	return false
}

// defaultTypes is the seed catalog; the first entry is the protected system
// type every reassignment falls back to.
func defaultTypes() []core.AccountType {
	now := time.Now().UTC()
	return []core.AccountType{
		{ID: core.CheckingTypeID, Name: "Расчётный", Description: "Основной расчётный счёт", IsSystem: true, CreatedAt: now},
		{ID: "savings", Name: "Накопительный", Description: "Счёт для накоплений", CreatedAt: now},
		{ID: "investment", Name: "Инвестиционный", Description: "Счёт для инвестиций", CreatedAt: now},
		{ID: "credit", Name: "Кредитный", Description: "Кредитный счёт", CreatedAt: now},
	}
}
