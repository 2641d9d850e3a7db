package outbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const backupPrefix = "calendar_failures_"

// BackupConfig controls periodic snapshots of the failure log.
type BackupConfig struct {
	Dir           string
	Interval      time.Duration
	RetentionDays int
}

// Backup writes a consistent snapshot of the log into dir and returns its path.
func (l *FailureLog) Backup(ctx context.Context, dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	path := filepath.Join(dir, backupPrefix+now.Format("20060102_150405")+".db")
	// VACUUM INTO refuses to overwrite.
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if _, err := l.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return "", fmt.Errorf("backup failure log: %w", err)
	}
	return path, nil
}

// PruneBackups removes snapshots in dir older than retentionDays and returns
// how many were deleted.
func PruneBackups(dir string, retentionDays int, now time.Time) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	cutoff := now.AddDate(0, 0, -retentionDays)
	removed := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), backupPrefix) {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, file.Name())); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// RunBackups snapshots the log every cfg.Interval until ctx is done. The
// first snapshot is taken immediately.
func (l *FailureLog) RunBackups(ctx context.Context, cfg BackupConfig, logger zerolog.Logger) {
	if cfg.Dir == "" || cfg.Interval <= 0 {
		logger.Info().Msg("failure log backups disabled")
		return
	}
	logger = logger.With().Str("component", "failure_log_backup").Logger()
	logger.Info().Str("dir", cfg.Dir).Dur("interval", cfg.Interval).Msg("failure log backups started")

	backup := func() {
		now := time.Now()
		path, err := l.Backup(ctx, cfg.Dir, now)
		if err != nil {
			logger.Error().Err(err).Msg("backup failed")
			return
		}
		logger.Info().Str("path", path).Msg("backup completed")
		if n, err := PruneBackups(cfg.Dir, cfg.RetentionDays, now); err != nil {
			logger.Warn().Err(err).Msg("backup cleanup failed")
		} else if n > 0 {
			logger.Info().Int("removed", n).Msg("old backups deleted")
		}
	}

	backup()
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			backup()
		}
	}
}
