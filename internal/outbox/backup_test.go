package outbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailureLogBackup(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenFailureLog(filepath.Join(dir, "failures.db"))
	require.NoError(t, err)
	defer log.Close()

	ctx := context.Background()
	require.NoError(t, log.Record(ctx, Failure{TaskID: "t1", Kind: "create", Error: "boom"}))

	now := time.Date(2024, 5, 2, 3, 0, 0, 0, time.UTC)
	path, err := log.Backup(ctx, filepath.Join(dir, "backups"), now)
	require.NoError(t, err)
	assert.Equal(t, "calendar_failures_20240502_030000.db", filepath.Base(path))

	copied, err := OpenFailureLog(path)
	require.NoError(t, err)
	defer copied.Close()
	got, err := copied.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "boom", got[0].Error)

	again, err := log.Backup(ctx, filepath.Join(dir, "backups"), now)
	require.NoError(t, err)
	assert.Equal(t, path, again)
}

func TestPruneBackups(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	write := func(name string, age time.Duration) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		mt := now.Add(-age)
		require.NoError(t, os.Chtimes(p, mt, mt))
		return p
	}
	old := write(backupPrefix+"old.db", 10*24*time.Hour)
	fresh := write(backupPrefix+"fresh.db", time.Hour)
	other := write("unrelated.db", 30*24*time.Hour)

	n, err := PruneBackups(dir, 7, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other)

	n, err = PruneBackups(dir, 0, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}
