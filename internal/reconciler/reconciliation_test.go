package reconciler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"location-sync-service/internal/audit"
	"location-sync-service/internal/models"
	"location-sync-service/internal/store"
	"location-sync-service/pkg/errors"
)

const (
	accountHeader  = "Customer_Number,Account_name,Inactive,On_HOLD"
	locationHeader = "Customer_Number,location_name,Locations_id,account_manager1,street,city,state,postcode,branch,Contract_Number,HOLD,Cancel_Box"
	systemHeader   = "Location_id,Equipment_ID,SystemID,Equipment_Description2,system_name,Inactive_Retired_Flag,system"
	contactHeader  = "contactID,Locations_id,WS_Contact_Name,email"
)

var fixedNow = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// syncFixture is a sync directory layout in a temp dir with a memory store
type syncFixture struct {
	t      *testing.T
	config *Config
	store  *store.MemoryStore
}

func newFixture(t *testing.T) *syncFixture {
	t.Helper()
	config := DefaultConfig(t.TempDir())
	for _, dir := range []string{config.CurrentDir, config.ArchiveDir, config.ErrorDir} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	return &syncFixture{
		t:      t,
		config: config,
		store:  store.NewMemoryStore(store.WithMemoryClock(fixedClock)),
	}
}

// drop writes an inbound file for kind with the given header and rows
func (f *syncFixture) drop(kind models.Kind, header string, rows ...string) {
	f.t.Helper()
	spec, ok := f.config.FileSpec(kind)
	require.True(f.t, ok)
	content := header + "\n" + strings.Join(rows, "\n") + "\n"
	require.NoError(f.t, os.WriteFile(filepath.Join(f.config.CurrentDir, spec.FileName), []byte(content), 0o644))
}

func (f *syncFixture) sync(opts ...Option) *RunResult {
	f.t.Helper()
	opts = append([]Option{WithClock(fixedClock)}, opts...)
	result, err := Run(context.Background(), f.config, f.store, opts...)
	require.NoError(f.t, err)
	return result
}

func (f *syncFixture) exists(dir string, kind models.Kind) bool {
	spec, _ := f.config.FileSpec(kind)
	_, err := os.Stat(filepath.Join(dir, spec.FileName))
	return err == nil
}

func (f *syncFixture) records(kind models.Kind) []*models.Record {
	f.t.Helper()
	records, err := f.store.List(context.Background(), kind, "")
	require.NoError(f.t, err)
	return records
}

func (f *syncFixture) seed(doc string) {
	f.t.Helper()
	require.NoError(f.t, store.LoadSeed(context.Background(), f.store, strings.NewReader(doc)))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"missing base dir", func(c *Config) { c.BaseDir = "" }, true},
		{"current equals archive", func(c *Config) { c.ArchiveDir = c.CurrentDir }, true},
		{"missing kind", func(c *Config) { c.Files = c.Files[:3] }, true},
		{"duplicate kind", func(c *Config) { c.Files[1] = c.Files[0] }, true},
		{"empty file name", func(c *Config) { c.Files[0].FileName = " " }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig("/srv/sync")
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewSyncService_RequiresStore(t *testing.T) {
	_, err := NewSyncService(nil, DefaultConfig("/srv/sync"))
	assert.Error(t, err)
}

func TestSync_MissingDirectoriesAbort(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.RemoveAll(f.config.ArchiveDir))
	require.NoError(t, os.RemoveAll(f.config.ErrorDir))
	f.drop(models.KindAccount, accountHeader, "1001,Acme,0,0")

	log := audit.New(audit.WithClock(fixedClock), audit.WithLogger(nil))
	result, err := Run(context.Background(), f.config, f.store, WithAuditLog(log))

	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.HasCode(err, errors.CodeDirectoryMissing))

	text := log.String()
	assert.Contains(t, text, "ERROR, Sync Archive Folder "+f.config.ArchiveDir+" does not exist")
	assert.Contains(t, text, "ERROR, Sync Error Folder "+f.config.ErrorDir+" does not exist")
	assert.NotContains(t, text, "Sync process starting")

	assert.True(t, f.exists(f.config.CurrentDir, models.KindAccount), "inbound file must not be touched")
	assert.Empty(t, f.records(models.KindAccount))
}

func TestSync_CreatesAccountAndArchives(t *testing.T) {
	f := newFixture(t)
	f.drop(models.KindAccount, accountHeader, "1001,Acme,0,0")

	result := f.sync()

	accounts := f.records(models.KindAccount)
	require.Len(t, accounts, 1)
	assert.Equal(t, "1001", accounts[0].Key)
	assert.Equal(t, "Acme", accounts[0].Title)
	assert.Equal(t, models.StateActive, accounts[0].State)

	assert.True(t, f.exists(f.config.ArchiveDir, models.KindAccount))
	assert.False(t, f.exists(f.config.CurrentDir, models.KindAccount))
	assert.False(t, f.exists(f.config.ErrorDir, models.KindAccount))

	assert.Contains(t, result.Text(), "2024-01-15 09:30:00, INFO, Action: Created Client Acme")

	outcome, ok := result.Outcome(models.KindAccount)
	require.True(t, ok)
	assert.Equal(t, StatusArchived, outcome.Status)
	assert.Equal(t, 1, outcome.Rows)
	assert.Equal(t, 1, outcome.Actions)
	assert.Equal(t, 1, result.FilesProcessed)
	assert.True(t, result.Success)
}

func TestSync_AccountIdempotent(t *testing.T) {
	f := newFixture(t)
	f.drop(models.KindAccount, accountHeader, "1001,Acme,0,0")
	f.sync()

	f.drop(models.KindAccount, accountHeader, "1001,Acme,0,0")
	result := f.sync()

	assert.Len(t, f.records(models.KindAccount), 1)
	assert.Contains(t, result.Text(), "INFO, Found Client Acme")
	assert.Equal(t, 0, result.Log.Actions())
}

func TestSync_AccountRules(t *testing.T) {
	f := newFixture(t)
	f.seed(`accounts:
  - key: "1001"
    title: Acme
  - key: "1002"
    title: Beta
    state: inactive
  - key: "1003"
    title: Gamma Old
  - key: "1004"
    title: Delta
    state: inactive
  - key: "1005"
    title: Epsilon Old
    state: inactive
`)
	f.drop(models.KindAccount, accountHeader,
		"1001,Acme,1,0",
		"1002,Beta,0,1",
		"1003,Gamma,0,0",
		"1004,Delta,0,0",
		"1005,Epsilon,0,0",
		"2001,Ghost,1,0",
		"2002,Phantom,0,1",
	)

	result := f.sync()
	text := result.Text()

	byKey := map[string]*models.Record{}
	for _, r := range f.records(models.KindAccount) {
		byKey[r.Key] = r
	}
	require.Len(t, byKey, 5, "inactive-only rows must not create accounts")

	assert.Equal(t, models.StateInactive, byKey["1001"].State)
	assert.Contains(t, text, "Action: Deactivate Client Acme")

	assert.Equal(t, models.StateInactive, byKey["1002"].State)
	assert.Contains(t, text, "INFO, Client Beta already inactive")

	assert.Equal(t, "Gamma", byKey["1003"].Title)
	assert.Contains(t, text, "Action: Rename Client 'Gamma Old' title to Gamma")

	assert.Equal(t, models.StateActive, byKey["1004"].State)
	assert.Contains(t, text, "Action: Activate Client Delta")

	// Reactivation takes priority; the rename waits for the next run.
	assert.Equal(t, models.StateActive, byKey["1005"].State)
	assert.Equal(t, "Epsilon Old", byKey["1005"].Title)
	assert.NotContains(t, text, "Rename Client 'Epsilon Old'")

	assert.Contains(t, text, "Client Ghost doesn't exists but is marked as inactive/on_hold")
	assert.Contains(t, text, "Client Phantom doesn't exists but is marked as inactive/on_hold")

	f.drop(models.KindAccount, accountHeader, "1005,Epsilon,0,0")
	result = f.sync()
	assert.Contains(t, result.Text(), "Action: Rename Client 'Epsilon Old' title to Epsilon")
}

func TestSync_DuplicateAccountRowsCreateOnce(t *testing.T) {
	f := newFixture(t)
	f.drop(models.KindAccount, accountHeader, "1001,Acme,0,0", "1001,Acme,0,0")

	f.sync()

	assert.Len(t, f.records(models.KindAccount), 1)
}

func TestSync_LocationRules(t *testing.T) {
	f := newFixture(t)
	f.seed(`accounts:
  - key: "1001"
    title: Acme
    locations:
      - key: L1
        title: Existing Lab
`)
	f.drop(models.KindLocation, locationHeader,
		"1001,Existing Lab,L1,,,,,,,,0,0",
		"1001,North Lab,L2,AM1,1 Main St,Springfield,IL,62701,North,C-77,0,0",
		"1001,Held Lab,L3,,,,,,,,1,0",
		"9999,Orphan Lab,L4,,,,,,,,0,0",
		"9999,Orphan Held Lab,L5,,,,,,,,1,0",
	)

	result := f.sync()
	text := result.Text()

	locations := f.records(models.KindLocation)
	require.Len(t, locations, 2)
	created := locations[1]
	assert.Equal(t, "L2", created.Key)
	assert.Equal(t, "North Lab", created.Title)
	assert.Equal(t, map[string]string{
		models.ColStreet:         "1 Main St",
		models.ColCity:           "Springfield",
		models.ColState:          "IL",
		models.ColPostcode:       "62701",
		models.ColBranch:         "North",
		models.ColContractNumber: "C-77",
	}, created.Attributes)

	assert.Contains(t, text, "INFO, Found Client 1001")
	assert.Contains(t, text, "INFO, Found location L1")
	assert.Contains(t, text, "Action: Created location North Lab")
	assert.Contains(t, text, "Location Held Lab in Client Acme doesn't exists but is marked as Hold")
	assert.Contains(t, text, "ERROR, Client 9999 on row 3 in locations file not found in DB")
	assert.Contains(t, text, "ERROR, Client 9999 on row 4 in locations file not found in DB")

	outcome, _ := result.Outcome(models.KindLocation)
	assert.Equal(t, StatusArchived, outcome.Status, "row errors do not change routing")
	assert.Equal(t, 2, outcome.RowErrors)
	assert.True(t, f.exists(f.config.ArchiveDir, models.KindLocation))
}

func TestSync_SystemRules(t *testing.T) {
	f := newFixture(t)
	f.seed(`accounts:
  - key: "1001"
    title: Acme
    locations:
      - key: L1
        title: Main Lab
`)
	rows := []string{
		"L1,EQ1,S1,Gas chromatograph,GC-1,0,GC",
		"L1,EQ2,S2,Retired unit,Old-1,1,GC",
		"L1,EQ3,,No id,Nameless,0,GC",
		"L9,EQ4,S4,Unknown location,Lost-1,0,GC",
	}
	f.drop(models.KindSystem, systemHeader, rows...)

	result := f.sync()
	text := result.Text()

	systems := f.records(models.KindSystem)
	require.Len(t, systems, 1)
	assert.Equal(t, "S1", systems[0].Key)
	assert.Equal(t, "GC-1", systems[0].Title)
	assert.Equal(t, "EQ1", systems[0].Attributes[models.ColEquipmentID])

	assert.Contains(t, text, "Action: Created system GC-1 in location Main Lab in client Acme")
	assert.Contains(t, text, "System Old-1 in location Main Lab doesn't exists but is marked as Inactive_Retired_Flag")
	assert.Contains(t, text, "ERROR, System on row 2 with name Nameless in location L1 has no SystemID field")
	assert.Contains(t, text, "ERROR, Location L9 on row 3 in systems file not found in DB")

	// Existing systems are not matched, so a second run creates a duplicate.
	f.drop(models.KindSystem, systemHeader, rows[0])
	f.sync()
	assert.Len(t, f.records(models.KindSystem), 2)
}

func TestSync_SystemMatchingOptIn(t *testing.T) {
	f := newFixture(t)
	f.config.MatchExistingSystems = true
	f.seed(`accounts:
  - key: "1001"
    title: Acme
    locations:
      - key: L1
        title: Main Lab
        systems:
          - key: S1
            title: GC-1
`)
	f.drop(models.KindSystem, systemHeader, "L1,EQ1,S1,Gas chromatograph,GC-1,0,GC")

	result := f.sync()

	assert.Len(t, f.records(models.KindSystem), 1)
	assert.Contains(t, result.Text(), "INFO, Found System S1")
}

const contactSeed = `accounts:
  - key: "1001"
    title: Acme
    locations:
      - key: L1
        title: Main Lab
        managers: [C1]
      - key: L2
        title: Second Lab
contacts:
  - key: C1
    title: Jane Doe
    email: jane@old.example
  - key: C2
    title: John Roe
`

func TestSync_ContactRules(t *testing.T) {
	f := newFixture(t)
	f.seed(contactSeed)
	f.drop(models.KindContact, contactHeader,
		"C1,L1,Jane Doe,jane@new.example",
		"C2,L1,John Roe,john@example.com",
		"C3,L2,Max Moe,max@example.com",
		"C3,L1,Max Moe,max@example.com",
		",L1,Nobody,none@example.com",
		"C4,,Nowhere,none@example.com",
		"C5,L9,Lost,none@example.com",
	)

	result := f.sync()
	text := result.Text()
	ctx := context.Background()

	assert.Contains(t, text, "INFO, Found contact C1 in location Main Lab")
	assert.Contains(t, text, "INFO, Found lab contact C2")
	assert.Contains(t, text, "Action: Added contact John Roe to location Main Lab in client Acme")
	assert.Contains(t, text, "Action: Created contact C3 for location Second Lab in client Acme")
	assert.Contains(t, text, "Action: Added contact Max Moe to location Second Lab in client Acme")
	assert.Contains(t, text, "ERROR, Contact on row 4 in location L1 has no contactID field")
	assert.Contains(t, text, "ERROR, Contact on row 5 with contactID C4 has no Locations_id field")
	assert.Contains(t, text, "ERROR, Location L9 on row 6 in contacts file not found in DB")

	contacts := f.records(models.KindContact)
	require.Len(t, contacts, 3, "C3 is created once and reused from the pool")

	l1, err := f.store.Find(ctx, models.KindLocation, "L1", "")
	require.NoError(t, err)
	managers, err := f.store.Managers(ctx, l1.UID)
	require.NoError(t, err)
	assert.Equal(t, []string{"C1", "C2", "C3"}, keysOf(managers))

	// An attached contact keeps its email.
	c1, err := f.store.Find(ctx, models.KindContact, "C1", "")
	require.NoError(t, err)
	assert.Equal(t, "jane@old.example", c1.Email)

	c2, err := f.store.Find(ctx, models.KindContact, "C2", "")
	require.NoError(t, err)
	assert.Equal(t, "john@example.com", c2.Email)

	outcome, _ := result.Outcome(models.KindContact)
	assert.Equal(t, StatusArchived, outcome.Status)
	assert.Equal(t, 3, outcome.RowErrors)
}

func TestSync_ContactEmailRefreshOptIn(t *testing.T) {
	f := newFixture(t)
	f.config.RefreshContactEmail = true
	f.seed(contactSeed)
	f.drop(models.KindContact, contactHeader, "C1,L1,Jane Doe,jane@new.example")

	result := f.sync()

	c1, err := f.store.Find(context.Background(), models.KindContact, "C1", "")
	require.NoError(t, err)
	assert.Equal(t, "jane@new.example", c1.Email)
	assert.Contains(t, result.Text(), "Action: Updated email of contact C1 in location Main Lab")
}

func TestSync_ContactWithEmptyNameKeepsEmptyTitle(t *testing.T) {
	f := newFixture(t)
	f.seed(contactSeed)
	f.drop(models.KindContact, contactHeader, "C9,L1,,c9@example.com")

	result := f.sync()

	c9, err := f.store.Find(context.Background(), models.KindContact, "C9", "")
	require.NoError(t, err)
	assert.Equal(t, "", c9.Title)
	assert.Equal(t, "c9@example.com", c9.Email)
	assert.Contains(t, result.Text(), "Action: Created contact C9 for location Main Lab in client Acme")
}

func TestSync_FullRunInDependencyOrder(t *testing.T) {
	f := newFixture(t)
	f.drop(models.KindAccount, accountHeader, "1001,Acme,0,0")
	f.drop(models.KindLocation, locationHeader, "1001,Main Lab,L1,,,,,,,,0,0")
	f.drop(models.KindSystem, systemHeader, "L1,EQ1,S1,Gas chromatograph,GC-1,0,GC")
	f.drop(models.KindContact, contactHeader, "C1,L1,Jane Doe,jane@example.com")

	var steps []string
	result := f.sync(WithProgressCallback(func(p SyncProgress) {
		steps = append(steps, p.CurrentStep)
	}))

	assert.Len(t, f.records(models.KindAccount), 1)
	assert.Len(t, f.records(models.KindLocation), 1)
	assert.Len(t, f.records(models.KindSystem), 1)
	assert.Len(t, f.records(models.KindContact), 1)

	assert.Equal(t, 4, result.FilesProcessed)
	assert.True(t, result.Success)
	for _, kind := range models.Kinds {
		assert.True(t, f.exists(f.config.ArchiveDir, kind), "%s archived", kind)
	}

	require.Len(t, result.Files, 4)
	for i, kind := range models.Kinds {
		assert.Equal(t, kind, result.Files[i].Kind)
	}
	assert.Equal(t, []string{
		"Folder check",
		"Processed " + models.DefaultAccountFile,
		"Processed " + models.DefaultLocationFile,
		"Processed " + models.DefaultSystemFile,
		"Processed " + models.DefaultContactFile,
	}, steps)

	entries := result.Log.Entries()
	require.NotEmpty(t, entries)
	assert.Equal(t, "Folder check was successful", entries[0].Message)
	assert.Equal(t, "Sync process complete", entries[len(entries)-1].Message)
}

func TestSync_InvalidFileRoutedToErrors(t *testing.T) {
	f := newFixture(t)
	f.drop(models.KindAccount, "Customer_Number,Account_name,Inactive,OnHold", "1001,Acme,0,0")
	f.drop(models.KindLocation, locationHeader, "1001,Main Lab,L1,,,,,,,,0,0", "1001,Broken")

	result := f.sync()

	assert.Empty(t, f.records(models.KindAccount), "invalid files are never reconciled")
	assert.Empty(t, f.records(models.KindLocation), "a single bad row fails the whole file")
	assert.True(t, f.exists(f.config.ErrorDir, models.KindAccount))
	assert.True(t, f.exists(f.config.ErrorDir, models.KindLocation))
	assert.False(t, f.exists(f.config.ArchiveDir, models.KindAccount))

	account, _ := result.Outcome(models.KindAccount)
	assert.Equal(t, StatusErrored, account.Status)
	assert.Len(t, account.ValidationErrors, 1)
	assert.Contains(t, result.Text(), "Found 0 rows in Account lims.csv with 1 errors")
	assert.False(t, result.Success)
	assert.Equal(t, 2, result.FilesProcessed)
}

func TestSync_MissingFilesSkipped(t *testing.T) {
	f := newFixture(t)

	result := f.sync()

	for _, outcome := range result.Files {
		assert.Equal(t, StatusSkipped, outcome.Status)
	}
	assert.Equal(t, 0, result.FilesProcessed)
	assert.True(t, result.Success)
	assert.Contains(t, result.Text(), "ERROR, Accounts file not found")
	assert.Contains(t, result.Text(), "Found 0 rows in Account lims.csv with 1 errors")

	archived, err := os.ReadDir(f.config.ArchiveDir)
	require.NoError(t, err)
	assert.Empty(t, archived)
}

func TestSync_MoveFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.drop(models.KindAccount, accountHeader, "1001,Acme,0,0")

	_, err := Run(context.Background(), f.config, f.store,
		WithClock(fixedClock),
		WithProgressCallback(func(p SyncProgress) {
			if p.CompletedSteps == 1 {
				os.RemoveAll(f.config.ArchiveDir)
			}
		}),
	)

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeMoveFailed))
}

// failingStore rejects every write
type failingStore struct {
	*store.MemoryStore
}

func (failingStore) Create(ctx context.Context, kind models.Kind, parentUID string, fields store.Fields) (*models.Record, error) {
	return nil, errors.NewPlain("disk full")
}

func TestSync_StoreFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.drop(models.KindAccount, accountHeader, "1001,Acme,0,0")

	_, err := Run(context.Background(), f.config, failingStore{f.store}, WithClock(fixedClock))

	require.Error(t, err)
	se, ok := errors.AsSyncError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CategoryStore, se.Category)
	assert.True(t, f.exists(f.config.CurrentDir, models.KindAccount), "file stays inbound after a fatal error")
}

func TestRecordIndex(t *testing.T) {
	a := &models.Record{UID: "a", Key: "K1"}
	b := &models.Record{UID: "b", Key: "K1"}
	c := &models.Record{UID: "c", Key: "K2"}

	index := NewRecordIndex([]*models.Record{a, b})
	index.Add(c)

	first, ok := index.First("K1")
	require.True(t, ok)
	assert.Equal(t, "a", first.UID)
	assert.True(t, index.Contains("K2"))
	assert.False(t, index.Contains("K3"))
	assert.Equal(t, 3, index.Len())
}

func keysOf(records []*models.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Key
	}
	return out
}
