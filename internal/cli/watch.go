package cli

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/sovereign/internal/config"
	"github.com/roach88/sovereign/internal/ledger"
	"github.com/roach88/sovereign/internal/metrics"
	"github.com/roach88/sovereign/internal/reactive"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print statistics whenever they change",
		Long: `Print the statistics report now and again every time a write changes it,
until interrupted. Writes made by other sovereign processes against the same
database are picked up within poll_ms.

If the config names a logic_file, it is applied at start and re-applied
whenever the file changes on disk. Bursts of saves are coalesced using
debounce_ms. An invalid edit is logged and the previous config stays
active.

Examples:
  sovereign watch
  sovereign watch --config ./sovereign.yaml --format json`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(rootOpts, func(l *ledger.Ledger) error {
				return runWatch(cmd.Context(), rootOpts, l, cmd)
			})
		},
	}
}

// refreshGap bounds how often database file events trigger a refresh.
const refreshGap = 100 * time.Millisecond

func runWatch(ctx context.Context, opts *RootOptions, l *ledger.Ledger, cmd *cobra.Command) error {
	logger := opts.Logger.With("command", "watch")

	if path := opts.Config.LogicFile; path != "" {
		if err := applyLogicFile(ctx, l, path); err != nil {
			return err
		}
		logger.Info("logic file applied", "path", path)

		w := config.NewWatcher(logger, path)
		if err := w.Start(ctx); err != nil {
			return WrapExitError(ExitCommandError, "failed to watch logic file", err)
		}
		reload := reactive.Debounce(opts.Config.Debounce(), func() {
			if ctx.Err() != nil {
				return
			}
			if err := applyLogicFile(ctx, l, path); err != nil {
				logger.Warn("logic file rejected", "path", path, "error", err)
				return
			}
			logger.Info("logic file applied", "path", path)
		})
		// Stop waits for a reload in flight, so none reaches a closed ledger.
		defer reload.Stop()
		go func() {
			for range w.Events() {
				reload.Call()
			}
		}()
	}

	f := opts.formatter(cmd)
	var mu sync.Mutex
	sub, err := l.WatchStats(func(r metrics.Report, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			logger.Error("stats query failed", "error", err)
			return
		}
		if err := f.Emit(r, formatReport(r)+"\n"); err != nil {
			logger.Error("write report", "error", err)
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	refresh := func() {
		if _, err := l.Refresh(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("check for external commits", "error", err)
		}
	}

	// Commits from other processes show up as writes to the database or its
	// WAL. The ticker catches anything the throttle dropped.
	var (
		dbEvents <-chan config.ReloadEvent
		tick     <-chan time.Time
	)
	throttled := reactive.Throttle(refreshGap, refresh)
	if db := opts.Config.DBPath; db != ":memory:" {
		dbw := config.NewWatcher(logger, db, db+"-wal")
		if err := dbw.Start(ctx); err != nil {
			logger.Warn("database file events unavailable, polling only", "error", err)
		} else {
			dbEvents = dbw.Events()
		}
		ticker := time.NewTicker(opts.Config.Poll())
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sub.Done():
			return nil
		case _, ok := <-dbEvents:
			if !ok {
				dbEvents = nil
				continue
			}
			throttled.Call()
		case <-tick:
			refresh()
		}
	}
}

func applyLogicFile(ctx context.Context, l *ledger.Ledger, path string) error {
	payload, err := readLogicFile(path)
	if err != nil {
		return err
	}
	_, err = l.SetLogic(ctx, payload)
	return err
}
