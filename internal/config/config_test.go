package config

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("RESERVAS_KEY", "k-123")
	p := writeFile(t, t.TempDir(), "config.yaml", `
reservations:
  base_url: https://api.example.com
  api_key: ${RESERVAS_KEY}
booking:
  timezone: America/Sao_Paulo
  org_domain: corp.com
`)

	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "k-123", cfg.Reservations.APIKey)
	assert.Equal(t, 10*time.Second, cfg.ReservationsTimeout())
	assert.Equal(t, "graph", cfg.CalendarProvider())
	assert.False(t, cfg.PrecheckConflicts())
	assert.Equal(t, 30*time.Minute, cfg.DraftIdle())
	assert.Equal(t, 300*time.Millisecond, cfg.DirectoryDebounce())
	assert.Equal(t, 2, cfg.OutboxWorkers())
	assert.Equal(t, ":8080", cfg.ServerAddr())
	assert.Equal(t, "America/Sao_Paulo", cfg.Location().String())
	assert.Equal(t, "08:00", cfg.Schedule().StartTime)

	times, err := cfg.RefreshTimes()
	require.NoError(t, err)
	require.Len(t, times, 2)
	assert.Equal(t, "09:00", times[0].String())
	assert.Equal(t, "14:00", times[1].String())
}

func TestLoadUsesEnvPath(t *testing.T) {
	p := writeFile(t, t.TempDir(), "alt.yaml", "reservations:\n  base_url: http://x\nbooking:\n  precheck_conflicts: true\n")
	t.Setenv(EnvConfigPath, p)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.PrecheckConflicts())
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"missing base url": "calendar:\n  provider: graph\n",
		"bad provider":     "reservations:\n  base_url: http://x\ncalendar:\n  provider: outlook\n",
		"bad timezone":     "reservations:\n  base_url: http://x\nbooking:\n  timezone: Mars/Base\n",
		"bad refresh":      "reservations:\n  base_url: http://x\ndashboard:\n  refresh_times: [\"9h\"]\n",
		"bad schedule":     "reservations:\n  base_url: http://x\nbooking:\n  schedule:\n    start_time: \"18:00\"\n    end_time: \"08:00\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, dir, "c.yaml", body))
			assert.Error(t, err)
		})
	}
}

func TestLoadRoomsConfig(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "rooms.yaml", `
rooms:
  - id: 1
    name: Sala A
    capacity: 6
    floor: 1
  - id: 2
    name: Sala B
    capacity: 10
    priority_note: diretoria
`)
	cfg, err := LoadRoomsConfig(p)
	require.NoError(t, err)
	require.Len(t, cfg.Rooms, 2)
	assert.Equal(t, "diretoria", cfg.Rooms[1].PriorityNote)

	bad := map[string]string{
		"empty":          "rooms: []\n",
		"zero id":        "rooms:\n  - id: 0\n    name: A\n",
		"duplicate id":   "rooms:\n  - id: 1\n    name: A\n  - id: 1\n    name: B\n",
		"duplicate name": "rooms:\n  - id: 1\n    name: A\n  - id: 2\n    name: a\n",
		"no name":        "rooms:\n  - id: 1\n",
		"neg capacity":   "rooms:\n  - id: 1\n    name: A\n    capacity: -1\n",
	}
	for name, body := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := LoadRoomsConfig(writeFile(t, dir, "bad.yaml", body))
			assert.Error(t, err)
		})
	}
}

func TestWatchRoomsReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "rooms.yaml", "rooms:\n  - id: 1\n    name: A\n")

	var (
		mu   sync.Mutex
		seen []int
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := WatchRooms(ctx, p, 10*time.Millisecond, zerolog.New(io.Discard), func(c *RoomsConfig) {
		mu.Lock()
		seen = append(seen, len(c.Rooms))
		mu.Unlock()
	})
	require.NoError(t, err)

	writeFile(t, dir, "rooms.yaml", "rooms:\n  - id: 1\n    name: A\n  - id: 2\n    name: B\n")
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(p, future, future))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2 && seen[1] == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRoomsWatcherKeepsListOnRejectedReload(t *testing.T) {
	dir := t.TempDir()
	good := "rooms:\n  - id: 1\n    name: A\n"
	p := writeFile(t, dir, "rooms.yaml", good)
	info, err := os.Stat(p)
	require.NoError(t, err)

	var logs bytes.Buffer
	var updates []int
	w := &roomsWatcher{
		path:     p,
		logger:   zerolog.New(&logs),
		onUpdate: func(c *RoomsConfig) { updates = append(updates, len(c.Rooms)) },
		applied:  info.ModTime(),
	}

	touch := func(body string, mod time.Time) {
		writeFile(t, dir, "rooms.yaml", body)
		require.NoError(t, os.Chtimes(p, mod, mod))
	}

	w.poll()
	assert.Empty(t, updates, "unchanged file")

	broken := info.ModTime().Add(time.Minute)
	touch("rooms:\n  - id: 1\n    name: A\n  - id: 1\n    name: B\n", broken)
	w.poll()
	w.poll()
	assert.Empty(t, updates)
	assert.True(t, w.rejected.Equal(broken))
	assert.Equal(t, 1, strings.Count(logs.String(), "rooms reload rejected"))

	touch("rooms:\n  - id: 1\n    name: A\n  - id: 2\n    name: B\n", broken.Add(time.Minute))
	w.poll()
	assert.Equal(t, []int{2}, updates)
	assert.True(t, w.rejected.IsZero())
}

func TestWatchRoomsFailsOnMissingFile(t *testing.T) {
	err := WatchRooms(context.Background(), filepath.Join(t.TempDir(), "none.yaml"), time.Second, zerolog.New(io.Discard), nil)
	assert.Error(t, err)
}
