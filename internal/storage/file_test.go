package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"glaz/internal/core"
)

func newTestStore(t *testing.T, retention int) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir(), retention)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return store
}

func countFiles(t *testing.T, dir, prefix string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	n := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			n++
		}
	}
	return n
}

func TestLoadAccounts_SeedsFreshStore(t *testing.T) {
	store := newTestStore(t, 5)

	result := store.LoadAccounts()

	if result.Status != LoadStatusSeeded {
		t.Errorf("Status = %q, want %q", result.Status, LoadStatusSeeded)
	}
	if len(result.Accounts) != 2 {
		t.Fatalf("seeded %d accounts, want 2", len(result.Accounts))
	}
	if result.Accounts[0].ID != 1 || result.Accounts[1].ID != 2 {
		t.Errorf("seed ids = %d, %d; want 1, 2", result.Accounts[0].ID, result.Accounts[1].ID)
	}
	if result.NextID != 3 {
		t.Errorf("NextID = %d, want 3", result.NextID)
	}
	if _, err := os.Stat(filepath.Join(store.dataDir, accountsFileName)); err != nil {
		t.Errorf("primary document should exist after seeding: %v", err)
	}

	// A second load reads the persisted seeds.
	again := store.LoadAccounts()
	if again.Status != LoadStatusLoaded {
		t.Errorf("second load Status = %q, want %q", again.Status, LoadStatusLoaded)
	}
	if len(again.Accounts) != 2 {
		t.Errorf("second load returned %d accounts, want 2", len(again.Accounts))
	}
}

func TestLoadAccounts_RecoversFromCorruptDocument(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "{{{"},
		{"missing accounts field", `{"nextId": 7}`},
		{"accounts not an array", `{"accounts": {"id": 1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t, 5)
			path := filepath.Join(store.dataDir, accountsFileName)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("write fixture: %v", err)
			}

			result := store.LoadAccounts()

			if result.Status != LoadStatusRecovered {
				t.Errorf("Status = %q, want %q", result.Status, LoadStatusRecovered)
			}
			if len(result.Accounts) != 0 {
				t.Errorf("recovered with %d accounts, want 0", len(result.Accounts))
			}
			if result.NextID != 1 {
				t.Errorf("NextID = %d, want 1", result.NextID)
			}

			// The fallback must be persisted and load cleanly next time.
			again := store.LoadAccounts()
			if again.Status != LoadStatusLoaded {
				t.Errorf("reload Status = %q, want %q", again.Status, LoadStatusLoaded)
			}
		})
	}
}

func TestLoadAccounts_BackfillsTimestamps(t *testing.T) {
	store := newTestStore(t, 5)
	legacy := `{"accounts": [{"id": 1, "name": "Старый", "balance": 10, "currency": "RUB", "type": "checking"}], "nextId": 2}`
	if err := os.WriteFile(filepath.Join(store.dataDir, accountsFileName), []byte(legacy), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	result := store.LoadAccounts()

	if result.Status != LoadStatusLoaded {
		t.Fatalf("Status = %q, want %q", result.Status, LoadStatusLoaded)
	}
	if result.Accounts[0].CreatedAt.IsZero() || result.Accounts[0].UpdatedAt.IsZero() {
		t.Error("timestamps should be back-filled on load")
	}
}

func TestSaveAccounts_RoundTrip(t *testing.T) {
	store := newTestStore(t, 5)
	seeded := store.LoadAccounts()

	if err := store.SaveAccounts(seeded.Accounts); err != nil {
		t.Fatalf("SaveAccounts: %v", err)
	}

	reloaded := store.LoadAccounts()
	if len(reloaded.Accounts) != len(seeded.Accounts) {
		t.Fatalf("round-trip changed count: %d != %d", len(reloaded.Accounts), len(seeded.Accounts))
	}
	for i := range seeded.Accounts {
		if reloaded.Accounts[i].ID != seeded.Accounts[i].ID ||
			reloaded.Accounts[i].Name != seeded.Accounts[i].Name ||
			reloaded.Accounts[i].Balance != seeded.Accounts[i].Balance {
			t.Errorf("account %d changed across round-trip", seeded.Accounts[i].ID)
		}
	}
}

func TestSaveAccounts_NeverReusesIDs(t *testing.T) {
	store := newTestStore(t, 5)
	result := store.LoadAccounts()

	// Add an account with the highest id, then delete it again.
	k := result.NextID
	withNew := append(core.CloneAccounts(result.Accounts), core.Account{
		ID: k, Name: "Временный", Currency: "RUB", Type: "checking",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})
	if err := store.SaveAccounts(withNew); err != nil {
		t.Fatalf("save with new account: %v", err)
	}
	if err := store.SaveAccounts(result.Accounts); err != nil {
		t.Fatalf("save after delete: %v", err)
	}

	fresh := store.LoadAccounts()
	if fresh.NextID <= k {
		t.Errorf("NextID = %d after deleting account %d; id would be reused", fresh.NextID, k)
	}
}

func TestNextID(t *testing.T) {
	tests := []struct {
		name     string
		accounts []core.Account
		want     int64
	}{
		{"empty", nil, 1},
		{"single", []core.Account{{ID: 1}}, 2},
		{"gap", []core.Account{{ID: 2}, {ID: 9}}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := core.NextID(tt.accounts); got != tt.want {
				t.Errorf("NextID() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSaveAccounts_RotatesAndPrunesBackups(t *testing.T) {
	const retention = 4
	store := newTestStore(t, retention)
	result := store.LoadAccounts()

	// Seeding already wrote the document once; each further save rotates a
	// backup of the previous version.
	const saves = 12
	for i := 0; i < saves; i++ {
		if err := store.SaveAccounts(result.Accounts); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	got := countFiles(t, store.dataDir, accountsBackupPrefix)
	if got != retention {
		t.Errorf("rotation family has %d backups after %d saves, want %d", got, saves, retention)
	}

	// The survivors are the newest ones.
	backups, err := store.accounts.listBackups()
	if err != nil {
		t.Fatalf("listBackups: %v", err)
	}
	for i := 1; i < len(backups); i++ {
		if backups[i-1].stamp < backups[i].stamp {
			t.Errorf("backups out of order: %d before %d", backups[i-1].stamp, backups[i].stamp)
		}
	}
}

func TestDefaultRetentionIs150(t *testing.T) {
	// The production cap comes from config; pin the documented default here.
	store := newTestStore(t, 150)
	if store.accounts.retain != 150 || store.types.retain != 150 {
		t.Errorf("retention = %d/%d, want 150 for both families", store.accounts.retain, store.types.retain)
	}
}

func TestListBackups_NewestFirst(t *testing.T) {
	store := newTestStore(t, 10)
	result := store.LoadAccounts()
	for i := 0; i < 3; i++ {
		if err := store.SaveAccounts(result.Accounts); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	backups, err := store.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(backups) != 3 {
		t.Fatalf("got %d backups, want 3", len(backups))
	}
	for i := 1; i < len(backups); i++ {
		if backups[i-1].Timestamp < backups[i].Timestamp {
			t.Errorf("backups not sorted newest-first at %d", i)
		}
	}
	for _, b := range backups {
		if b.SizeBytes == 0 {
			t.Errorf("backup %s has zero size", b.Name)
		}
		if b.CreatedAt.IsZero() {
			t.Errorf("backup %s has zero creation time", b.Name)
		}
	}
}

func TestCreateFullBackup(t *testing.T) {
	store := newTestStore(t, 5)

	if _, err := store.CreateFullBackup(); !errors.Is(err, ErrNoDocument) {
		t.Errorf("CreateFullBackup on empty store: err = %v, want ErrNoDocument", err)
	}

	store.LoadAccounts()
	name, err := store.CreateFullBackup()
	if err != nil {
		t.Fatalf("CreateFullBackup: %v", err)
	}
	if !strings.HasPrefix(name, fullBackupPrefix) || !strings.HasSuffix(name, ".json") {
		t.Errorf("unexpected full backup name %q", name)
	}
	base := strings.TrimSuffix(name, ".json")
	if strings.ContainsAny(base, ":") || strings.Contains(base[len(fullBackupPrefix):], ".") {
		t.Errorf("full backup name %q contains unsafe separators", name)
	}
	if _, err := os.Stat(filepath.Join(store.dataDir, name)); err != nil {
		t.Errorf("full backup file missing: %v", err)
	}
}

func TestRestoreFromBackup(t *testing.T) {
	store := newTestStore(t, 5)
	seeded := store.LoadAccounts()

	// Snapshot the two-account state, then shrink to one account.
	snapshot, err := store.CreateFullBackup()
	if err != nil {
		t.Fatalf("CreateFullBackup: %v", err)
	}
	if err := store.SaveAccounts(seeded.Accounts[:1]); err != nil {
		t.Fatalf("SaveAccounts: %v", err)
	}

	result, err := store.RestoreFromBackup(snapshot)
	if err != nil {
		t.Fatalf("RestoreFromBackup: %v", err)
	}
	if result.RestoredAccounts != 2 {
		t.Errorf("RestoredAccounts = %d, want 2", result.RestoredAccounts)
	}
	if result.SafetyBackup == "" {
		t.Error("expected a safety backup of the pre-restore state")
	}
	if _, err := os.Stat(filepath.Join(store.dataDir, result.SafetyBackup)); err != nil {
		t.Errorf("safety backup missing: %v", err)
	}

	reloaded := store.LoadAccounts()
	if len(reloaded.Accounts) != 2 {
		t.Errorf("load after restore returned %d accounts, want 2", len(reloaded.Accounts))
	}
}

func TestRestoreFromBackup_Failures(t *testing.T) {
	store := newTestStore(t, 5)
	seeded := store.LoadAccounts()

	badDoc := filepath.Join(store.dataDir, accountsBackupPrefix+"1.json")
	if err := os.WriteFile(badDoc, []byte(`{"nextId": 1}`), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	tests := []struct {
		name   string
		backup string
		want   error
	}{
		{"missing file", accountsBackupPrefix + "999.json", core.ErrBackupNotFound},
		{"path escape", "../accounts.json", core.ErrBackupNotFound},
		{"wrong family", "random.json", core.ErrBackupNotFound},
		{"malformed document", accountsBackupPrefix + "1.json", core.ErrInvalidDocument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.RestoreFromBackup(tt.backup)
			if !errors.Is(err, tt.want) {
				t.Errorf("RestoreFromBackup(%q) err = %v, want %v", tt.backup, err, tt.want)
			}
		})
	}

	// Failures must leave the primary document untouched.
	after := store.LoadAccounts()
	if len(after.Accounts) != len(seeded.Accounts) {
		t.Errorf("primary document changed after failed restores")
	}
}

func TestStats(t *testing.T) {
	store := newTestStore(t, 5)

	empty, err := store.Stats()
	if err != nil {
		t.Fatalf("Stats on empty store: %v", err)
	}
	if empty.AccountsCount != 0 || empty.FileSizeBytes != 0 {
		t.Errorf("empty stats = %+v, want zeros", empty)
	}

	store.LoadAccounts()
	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.AccountsCount != 2 {
		t.Errorf("AccountsCount = %d, want 2", stats.AccountsCount)
	}
	if stats.FileSizeBytes == 0 {
		t.Error("FileSizeBytes should be non-zero")
	}
	if stats.Version != core.AccountsDocumentVersion {
		t.Errorf("Version = %q, want %q", stats.Version, core.AccountsDocumentVersion)
	}
	if stats.NextID != 3 {
		t.Errorf("NextID = %d, want 3", stats.NextID)
	}
}

func TestTypesDocument_RoundTripAndRotation(t *testing.T) {
	const retention = 2
	store := newTestStore(t, retention)

	if _, err := store.LoadTypes(); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("LoadTypes on fresh store should report a missing document")
	}

	types := []core.AccountType{
		{ID: "checking", Name: "Расчётный", IsSystem: true, CreatedAt: time.Now()},
		{ID: "savings", Name: "Накопительный", CreatedAt: time.Now()},
	}
	for i := 0; i < 5; i++ {
		if err := store.SaveTypes(types); err != nil {
			t.Fatalf("SaveTypes: %v", err)
		}
	}

	doc, err := store.LoadTypes()
	if err != nil {
		t.Fatalf("LoadTypes: %v", err)
	}
	if len(doc.Types) != 2 {
		t.Errorf("loaded %d types, want 2", len(doc.Types))
	}
	if doc.Version != core.TypesDocumentVersion {
		t.Errorf("Version = %q, want %q", doc.Version, core.TypesDocumentVersion)
	}

	// The types family honors the same retention cap as the accounts family.
	if got := countFiles(t, store.dataDir, typesBackupPrefix); got != retention {
		t.Errorf("types rotation family has %d backups, want %d", got, retention)
	}
}

func TestLoadTypes_MalformedDocument(t *testing.T) {
	store := newTestStore(t, 5)
	if err := os.WriteFile(filepath.Join(store.dataDir, typesFileName), []byte(`{"types": 42}`), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if _, err := store.LoadTypes(); !errors.Is(err, core.ErrInvalidTypesDocument) {
		t.Errorf("LoadTypes err = %v, want ErrInvalidTypesDocument", err)
	}
}

func TestFullBackupNameRoundTrip(t *testing.T) {
	stamp := time.Date(2026, 8, 31, 12, 34, 56, 789_000_000, time.UTC)
	name := fullBackupName(stamp)

	if name != "full_backup_2026-08-31T12-34-56-789Z.json" {
		t.Errorf("fullBackupName = %q", name)
	}

	parsed, err := parseFullBackupTime(strings.TrimSuffix(strings.TrimPrefix(name, fullBackupPrefix), ".json"))
	if err != nil {
		t.Fatalf("parseFullBackupTime: %v", err)
	}
	if !parsed.Equal(stamp) {
		t.Errorf("parsed %v, want %v", parsed, stamp)
	}
}

func TestAccountsDocumentShape(t *testing.T) {
	store := newTestStore(t, 5)
	store.LoadAccounts()

	raw, err := os.ReadFile(filepath.Join(store.dataDir, accountsFileName))
	if err != nil {
		t.Fatalf("read document: %v", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal document: %v", err)
	}
	for _, key := range []string{"accounts", "nextId", "lastSaved", "version"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("document missing %q field", key)
		}
	}
}
