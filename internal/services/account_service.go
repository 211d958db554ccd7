// Package services orchestrates account operations across the persistence
// backend, the type catalog, the rates service, and AMQP.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"glaz/internal/accounttypes"
	"glaz/internal/amqp"
	"glaz/internal/backend"
	"glaz/internal/core"
	"glaz/internal/currency"
	"glaz/internal/storage"
)

// AccountService keeps the account collection in memory and writes every
// mutation through to the backend before it becomes visible. A failed write
// rolls the in-memory state back.
type AccountService struct {
	mu         sync.Mutex
	backend    backend.Backend
	registry   *accounttypes.Registry
	rates      *currency.Service
	amqpClient *amqp.Client

	accounts []core.Account
	nextID   int64
}

// CreateAccountInput is the payload for a new account. Balance is a pointer
// so an absent field can be told apart from an explicit zero; absent is
// rejected.
type CreateAccountInput struct {
	Name        string
	Balance     *float64
	Currency    string
	Type        string
	Description string
}

// UpdateAccountInput carries partial updates; nil fields keep their current
// value.
type UpdateAccountInput struct {
	Name        *string
	Balance     *float64
	Currency    *string
	Type        *string
	Description *string
}

// NewAccountService loads the collection, demotes accounts whose type is no
// longer in the catalog, and persists that repair before serving requests.
func NewAccountService(b backend.Backend, registry *accounttypes.Registry, rates *currency.Service, amqpClient *amqp.Client) (*AccountService, error) {
	s := &AccountService{
		backend:    b,
		registry:   registry,
		rates:      rates,
		amqpClient: amqpClient,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *AccountService) load() error {
	result := s.backend.LoadAccounts()
	if result.Status == storage.LoadStatusRecovered {
		slog.Warn("Accounts collection was recovered after a corrupt document",
			"component", "accounts")
	}

	accounts, changed := s.registry.Reconcile(result.Accounts)
	if changed > 0 {
		if err := s.backend.SaveAccounts(accounts); err != nil {
			return fmt.Errorf("persist reconciled accounts: %w", err)
		}
	}

	s.accounts = accounts
	s.nextID = result.NextID
	return nil
}

// List returns a copy of all accounts.
func (s *AccountService) List() []core.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.CloneAccounts(s.accounts)
}

// Get returns one account by id.
func (s *AccountService) Get(id int64) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return core.Account{}, fmt.Errorf("%w: %d", core.ErrAccountNotFound, id)
}

// Create validates the input, assigns the next id, and persists the grown
// collection. Name, balance, and currency are all required; unknown or empty
// types fall back to the system type.
func (s *AccountService) Create(ctx context.Context, input CreateAccountInput) (core.Account, error) {
	if input.Balance == nil {
		return core.Account{}, core.ErrAccountNameRequired
	}

	accountType := input.Type
	if accountType == "" || !s.registry.Exists(accountType) {
		accountType = core.CheckingTypeID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowUTC()
	account := core.Account{
		ID:          s.nextID,
		Name:        input.Name,
		Balance:     *input.Balance,
		Currency:    input.Currency,
		Type:        accountType,
		Description: input.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := account.Validate(); err != nil {
		return core.Account{}, err
	}

	next := append(core.CloneAccounts(s.accounts), account)
	if err := s.backend.SaveAccounts(next); err != nil {
		return core.Account{}, fmt.Errorf("save accounts: %w", err)
	}
	s.accounts = next
	s.nextID++

	slog.InfoContext(ctx, "Created account",
		"account_id", account.ID, "account_name", account.Name, "component", "accounts")
	s.publishEvent(ctx, account.ID, amqp.ActionCreated)
	return account, nil
}

// Update applies the non-nil fields and persists the collection. CreatedAt
// is preserved; UpdatedAt is bumped.
func (s *AccountService) Update(ctx context.Context, id int64, input UpdateAccountInput) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx == -1 {
		return core.Account{}, fmt.Errorf("%w: %d", core.ErrAccountNotFound, id)
	}

	next := core.CloneAccounts(s.accounts)
	account := &next[idx]
	if input.Name != nil {
		account.Name = *input.Name
	}
	if input.Balance != nil {
		account.Balance = *input.Balance
	}
	if input.Currency != nil {
		account.Currency = *input.Currency
	}
	if input.Type != nil {
		accountType := *input.Type
		if accountType == "" || !s.registry.Exists(accountType) {
			accountType = core.CheckingTypeID
		}
		account.Type = accountType
	}
	if input.Description != nil {
		account.Description = *input.Description
	}
	account.UpdatedAt = nowUTC()

	if err := s.backend.SaveAccounts(next); err != nil {
		return core.Account{}, fmt.Errorf("save accounts: %w", err)
	}
	s.accounts = next

	slog.InfoContext(ctx, "Updated account",
		"account_id", id, "component", "accounts")
	s.publishEvent(ctx, id, amqp.ActionUpdated)
	return next[idx], nil
}

// Delete removes an account and persists the shrunk collection. The freed id
// is never handed out again.
func (s *AccountService) Delete(ctx context.Context, id int64) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx == -1 {
		return core.Account{}, fmt.Errorf("%w: %d", core.ErrAccountNotFound, id)
	}

	deleted := s.accounts[idx]
	next := core.CloneAccounts(s.accounts)
	next = append(next[:idx], next[idx+1:]...)
	if err := s.backend.SaveAccounts(next); err != nil {
		return core.Account{}, fmt.Errorf("save accounts: %w", err)
	}
	s.accounts = next

	slog.InfoContext(ctx, "Deleted account",
		"account_id", id, "account_name", deleted.Name, "component", "accounts")
	s.publishEvent(ctx, id, amqp.ActionDeleted)
	return deleted, nil
}

// TotalBalance converts every account balance to the target currency at the
// current rates and sums them, rounded to two decimal places.
func (s *AccountService) TotalBalance(ctx context.Context, target string) (float64, currency.Snapshot) {
	snap := s.rates.Rates(ctx)

	s.mu.Lock()
	accounts := core.CloneAccounts(s.accounts)
	s.mu.Unlock()

	total := decimal.Zero
	for _, a := range accounts {
		converted := currency.Convert(a.Balance, a.Currency, target, snap)
		total = total.Add(decimal.NewFromFloat(converted))
	}
	f, _ := total.Round(2).Float64()
	return f, snap
}

// DeleteAccountType removes a type from the catalog, reassigning any
// accounts that used it to the system type. The updated accounts are already
// persisted when the in-memory collection is swapped.
func (s *AccountService) DeleteAccountType(ctx context.Context, typeID string) (accounttypes.DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.registry.Delete(typeID, s.accounts)
	if err != nil {
		return accounttypes.DeleteResult{}, err
	}
	s.accounts = result.Accounts

	if result.ReassignedAccounts > 0 {
		s.publishEvent(ctx, 0, amqp.ActionUpdated)
	}
	return result, nil
}

// UsageStats counts account references per type.
func (s *AccountService) UsageStats() map[string]accounttypes.UsageStat {
	s.mu.Lock()
	accounts := core.CloneAccounts(s.accounts)
	s.mu.Unlock()
	return s.registry.UsageStats(accounts)
}

// Reload re-reads the collection from the backend, used after a restore
// replaced the document on disk. Event id 0 means the whole collection.
func (s *AccountService) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Reloaded accounts from storage",
		"accounts_count", len(s.accounts), "component", "accounts")
	s.publishEvent(ctx, 0, amqp.ActionRestored)
	return nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func (s *AccountService) indexOf(id int64) int {
	for i, a := range s.accounts {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func (s *AccountService) publishEvent(ctx context.Context, id int64, action string) {
	if s.amqpClient == nil {
		return
	}
	if err := s.amqpClient.PublishAccountEvent(ctx, id, action); err != nil {
		slog.ErrorContext(ctx, "Failed to publish account event",
			"account_id", id, "action", action, "error", err, "component", "accounts")
		// The mutation is already persisted; event delivery is best effort.
	}
}

// Close releases the backend and the AMQP connection.
func (s *AccountService) Close() error {
	var errs []error

	if s.backend != nil {
		if err := s.backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("backend: %w", err))
		}
	}
	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close account service: %v", errs)
	}
	return nil
}
