package migration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/roundtable/config"
)

func TestParseDatabaseType(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected DatabaseType
		wantErr  bool
	}{
		{"postgres", "postgres", DatabaseTypePostgres, false},
		{"postgresql", "postgresql", DatabaseTypePostgres, false},
		{"pg", "pg", DatabaseTypePostgres, false},
		{"mysql", "mysql", DatabaseTypeMySQL, false},
		{"mariadb", "mariadb", DatabaseTypeMySQL, false},
		{"uppercase", "POSTGRES", DatabaseTypePostgres, false},
		{"sqlite uses auto-migrate", "sqlite", "", true},
		{"invalid", "invalid", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseDatabaseType(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedDatabase)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestGetMigrationsPath(t *testing.T) {
	assert.Equal(t, "migrations/postgres", GetMigrationsPath(DatabaseTypePostgres))
	assert.Equal(t, "migrations/mysql", GetMigrationsPath(DatabaseTypeMySQL))
}

func TestAvailableMigrations(t *testing.T) {
	for _, dbType := range []DatabaseType{DatabaseTypePostgres, DatabaseTypeMySQL} {
		t.Run(string(dbType), func(t *testing.T) {
			files, err := availableMigrations(dbType)
			require.NoError(t, err)
			require.Len(t, files, 2)
			assert.Equal(t, migrationFile{version: 1, name: "init_schema"}, files[0])
			assert.Equal(t, migrationFile{version: 2, name: "context_entries"}, files[1])
		})
	}

	_, err := availableMigrations("sqlite")
	assert.ErrorIs(t, err, ErrUnsupportedDatabase)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	for _, dbType := range []DatabaseType{DatabaseTypePostgres, DatabaseTypeMySQL} {
		fsys, dir, err := migrationsFS(dbType)
		require.NoError(t, err)
		files, err := availableMigrations(dbType)
		require.NoError(t, err)
		for _, f := range files {
			for _, suffix := range []string{".up.sql", ".down.sql"} {
				name := fmt.Sprintf("%s/%06d_%s%s", dir, f.version, f.name, suffix)
				data, err := fs.ReadFile(fsys, name)
				require.NoError(t, err, name)
				assert.NotEmpty(t, data, name)
			}
		}
	}
}

func TestBuildStatusAndInfo(t *testing.T) {
	files := []migrationFile{{1, "init_schema"}, {2, "context_entries"}, {3, "future"}}

	statuses := buildStatus(files, 2, true)
	require.Len(t, statuses, 3)
	assert.True(t, statuses[0].Applied)
	assert.False(t, statuses[0].Dirty)
	assert.True(t, statuses[1].Applied)
	assert.True(t, statuses[1].Dirty)
	assert.False(t, statuses[2].Applied)

	info := buildInfo(files, 2, false)
	assert.Equal(t, &MigrationInfo{
		CurrentVersion:    2,
		TotalMigrations:   3,
		AppliedMigrations: 2,
		PendingMigrations: 1,
	}, info)
}

func TestNewMigrator_InvalidConfig(t *testing.T) {
	_, err := NewMigrator(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config is required")

	_, err = NewMigrator(&Config{DatabaseType: DatabaseTypePostgres})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database URL is required")

	_, err = NewMigrator(&Config{DatabaseType: "sqlite", DatabaseURL: "file:x.db"})
	assert.ErrorIs(t, err, ErrUnsupportedDatabase)
}

func TestNewMigratorFromDatabaseConfig_SQLiteRejected(t *testing.T) {
	_, err := NewMigratorFromDatabaseConfig(config.DatabaseConfig{Driver: "sqlite", Name: "rt.db"})
	assert.ErrorIs(t, err, ErrUnsupportedDatabase)

	_, err = NewMigratorFromConfig(nil)
	assert.Error(t, err)
}

// =============================================================================
// CLI
// =============================================================================

type fakeMigrator struct {
	version uint
	dirty   bool
	calls   []string
	err     error
}

func (f *fakeMigrator) record(name string) error {
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeMigrator) Up(context.Context) error      { f.version = 2; return f.record("up") }
func (f *fakeMigrator) Down(context.Context) error    { f.version--; return f.record("down") }
func (f *fakeMigrator) DownAll(context.Context) error { f.version = 0; return f.record("down-all") }
func (f *fakeMigrator) Steps(_ context.Context, n int) error {
	f.version = uint(int(f.version) + n)
	return f.record("steps")
}
func (f *fakeMigrator) Goto(_ context.Context, v uint) error { f.version = v; return f.record("goto") }
func (f *fakeMigrator) Force(_ context.Context, v int) error {
	f.version = uint(v)
	return f.record("force")
}
func (f *fakeMigrator) Version(context.Context) (uint, bool, error) {
	return f.version, f.dirty, f.err
}
func (f *fakeMigrator) Status(context.Context) ([]MigrationStatus, error) {
	files := []migrationFile{{1, "init_schema"}, {2, "context_entries"}}
	return buildStatus(files, f.version, f.dirty), f.err
}
func (f *fakeMigrator) Info(context.Context) (*MigrationInfo, error) {
	files := []migrationFile{{1, "init_schema"}, {2, "context_entries"}}
	return buildInfo(files, f.version, f.dirty), nil
}
func (f *fakeMigrator) Close() error { return nil }

func newTestCLI(m Migrator) (*CLI, *bytes.Buffer) {
	var buf bytes.Buffer
	cli := NewCLI(m)
	cli.SetOutput(&buf)
	return cli, &buf
}

func TestCLI_VersionNoneApplied(t *testing.T) {
	cli, out := newTestCLI(&fakeMigrator{})
	require.NoError(t, cli.Run(context.Background(), []string{"version"}))
	assert.Contains(t, out.String(), "No migrations applied yet")
}

func TestCLI_UpThenStatus(t *testing.T) {
	m := &fakeMigrator{}
	cli, out := newTestCLI(m)
	ctx := context.Background()

	require.NoError(t, cli.Run(ctx, []string{"up"}))
	assert.Contains(t, out.String(), "Current version: 2")

	out.Reset()
	require.NoError(t, cli.Run(ctx, []string{"status"}))
	assert.Regexp(t, `000001\s+init_schema\s+Applied`, out.String())
	assert.Contains(t, out.String(), "Total: 2, Applied: 2, Pending: 0")
}

func TestCLI_DirtyVersion(t *testing.T) {
	cli, out := newTestCLI(&fakeMigrator{version: 1, dirty: true})
	require.NoError(t, cli.Run(context.Background(), []string{"version"}))
	assert.Equal(t, "Current version: 1 (dirty)\n", out.String())
}

func TestCLI_RunArguments(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
		calls   []string
	}{
		{name: "missing", args: nil, wantErr: "missing migrate action"},
		{name: "unknown", args: []string{"sideways"}, wantErr: "unknown migrate action"},
		{name: "steps without n", args: []string{"steps"}, wantErr: "exactly one numeric argument"},
		{name: "steps zero", args: []string{"steps", "0"}, wantErr: "non-zero"},
		{name: "goto bad", args: []string{"goto", "x"}, wantErr: "invalid number"},
		{name: "goto negative", args: []string{"goto", "-1"}, wantErr: "positive"},
		{name: "steps", args: []string{"steps", "1"}, calls: []string{"steps"}},
		{name: "goto", args: []string{"goto", "1"}, calls: []string{"goto"}},
		{name: "force", args: []string{"force", "2"}, calls: []string{"force"}},
		{name: "down-all", args: []string{"down-all"}, calls: []string{"down-all"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMigrator{version: 1}
			cli, _ := newTestCLI(m)
			err := cli.Run(context.Background(), tt.args)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Empty(t, m.calls)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.calls, m.calls)
		})
	}
}

func TestCLI_PropagatesFailure(t *testing.T) {
	cli, _ := newTestCLI(&fakeMigrator{err: errors.New("lock timeout")})
	err := cli.Run(context.Background(), []string{"up"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration failed: lock timeout")
}
