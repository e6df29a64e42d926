// Package badger opens the shared BadgerDB instance backing the event
// store, the saga store and the repair store.
package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/payrail/payrail/config"
	"github.com/payrail/payrail/pkg/logger"
)

// Open opens the database at the configured path. An empty path opens an
// in-memory database, used by tests and the demo binary.
func Open(cfg *config.BadgerConfig, log logger.Logger) (*badger.DB, error) {
	var opts badger.Options
	if cfg == nil || cfg.Path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
		opts.SyncWrites = cfg.SyncWrites
		if cfg.ValueLogFileSize > 0 {
			opts.ValueLogFileSize = cfg.ValueLogFileSize
		}
		if cfg.NumVersionsToKeep > 0 {
			opts.NumVersionsToKeep = cfg.NumVersionsToKeep
		}
	}
	opts.Logger = &logAdapter{log: log}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return db, nil
}

// RunGC runs Badger's value-log garbage collection until the context is
// cancelled. Badger does not reclaim space on its own.
func RunGC(ctx context.Context, db *badger.DB, interval time.Duration, log logger.Logger) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// badger.ErrNoRewrite means there was nothing to collect.
			if err := db.RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
				if log != nil {
					log.Warn("badger value log gc failed", "error", err)
				}
			}
		}
	}
}

// logAdapter routes Badger's internal logging through the structured
// logger. Badger logs at high volume on INFO, so that level is demoted.
type logAdapter struct {
	log logger.Logger
}

func (a *logAdapter) Errorf(format string, args ...any) {
	if a.log != nil {
		a.log.Error(fmt.Sprintf(format, args...))
	}
}

func (a *logAdapter) Warningf(format string, args ...any) {
	if a.log != nil {
		a.log.Warn(fmt.Sprintf(format, args...))
	}
}

func (a *logAdapter) Infof(format string, args ...any) {
	if a.log != nil {
		a.log.Debug(fmt.Sprintf(format, args...))
	}
}

func (a *logAdapter) Debugf(format string, args ...any) {
	if a.log != nil {
		a.log.Debug(fmt.Sprintf(format, args...))
	}
}
