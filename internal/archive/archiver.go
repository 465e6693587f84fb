// Package archive runs the background job that copies terminally settled
// markets into object storage.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SettledArchiver performs one archive pass over settled markets.
type SettledArchiver interface {
	ArchiveSettled(ctx context.Context, before time.Time) (int64, error)
}

// Archiver periodically exports settled markets older than MinAge to cold
// storage. The blob layer makes runs idempotent, so overlapping history
// between runs is harmless.
type Archiver struct {
	impl     SettledArchiver
	interval time.Duration
	minAge   time.Duration
	logger   *slog.Logger
}

// NewArchiver creates an Archiver running every interval, archiving markets
// whose resolution time is at least minAge in the past.
func NewArchiver(impl SettledArchiver, interval, minAge time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		impl:     impl,
		interval: interval,
		minAge:   minAge,
		logger:   logger.With(slog.String("component", "archiver")),
	}
}

// Run executes a single archive pass.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-a.minAge)

	archived, err := a.impl.ArchiveSettled(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: run before %v: %w", cutoff, err)
	}
	if archived > 0 {
		a.logger.InfoContext(ctx, "archived settled markets",
			slog.Int64("count", archived),
			slog.Time("cutoff", cutoff),
		)
	}
	return nil
}

// RunLoop runs archive passes on the configured interval until the context is
// cancelled. Failed passes are logged and retried on the next tick.
func (a *Archiver) RunLoop(ctx context.Context) error {
	a.logger.Info("archiver started", slog.Duration("interval", a.interval))

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("archiver stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
