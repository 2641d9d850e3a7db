package config

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"roombook/internal/metrics"
)

// roomsWatcher tracks which version of rooms.yaml is live and which one was
// last turned down, so a broken file is reported once rather than every poll.
type roomsWatcher struct {
	path     string
	logger   zerolog.Logger
	onUpdate func(*RoomsConfig)

	applied  time.Time
	rejected time.Time
}

// poll reloads the file when its mtime moved past both the applied and the
// rejected version.
func (w *roomsWatcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.logger.Debug().Err(err).Str("path", w.path).Msg("rooms config stat failed")
		return
	}
	mod := info.ModTime()
	if !mod.After(w.applied) || mod.Equal(w.rejected) {
		return
	}

	cfg, err := LoadRoomsConfig(w.path)
	if err != nil {
		w.rejected = mod
		metrics.IncConfigReload("rooms", "rejected")
		w.logger.Warn().Err(err).Str("path", w.path).Time("modified", mod).Msg("rooms reload rejected, keeping previous list")
		return
	}
	w.applied = mod
	w.rejected = time.Time{}
	metrics.IncConfigReload("rooms", "ok")
	w.logger.Info().Int("rooms", len(cfg.Rooms)).Msg("rooms reloaded")
	if w.onUpdate != nil {
		w.onUpdate(cfg)
	}
}

// WatchRooms loads rooms.yaml, hands it to onUpdate, then polls the file's
// modification time until ctx is done. A reload that fails validation is
// logged once per file version and the previous list stays in effect.
func WatchRooms(ctx context.Context, path string, interval time.Duration, logger zerolog.Logger, onUpdate func(*RoomsConfig)) error {
	if path == "" {
		path = "configs/rooms.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	cfg, err := LoadRoomsConfig(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(cfg)
	}

	w := &roomsWatcher{
		path:     path,
		logger:   logger.With().Str("component", "rooms_watch").Logger(),
		onUpdate: onUpdate,
		applied:  info.ModTime(),
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.poll()
			}
		}
	}()
	return nil
}
