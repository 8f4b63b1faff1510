package neighbor

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// MonitorOptions configures the reload monitor.
type MonitorOptions struct {
	// PollInterval is how often the pending-reload flag is checked.
	PollInterval time.Duration
	// SettleWindow is the delay between detecting a reload signal and
	// rebuilding, so a storm of rapid signals lands in a single rebuild.
	SettleWindow time.Duration
	// SignalPath, when set, names a file whose creation or modification
	// requests a reload. External population pipelines touch it after
	// writing a new corpus.
	SignalPath string
}

// Monitor watches for reload requests and rebuilds the index off-path.
// A request arrives either through Index.RequestReload or by touching the
// configured signal file. Rebuild failures are logged and recorded on the
// index status; the previous snapshot keeps serving and the monitor retries
// on the next poll.
type Monitor struct {
	index  *Index
	opts   MonitorOptions
	logger *zap.Logger
}

// NewMonitor creates a reload monitor for ix.
func NewMonitor(ix *Index, opts MonitorOptions, logger *zap.Logger) *Monitor {
	return &Monitor{index: ix, opts: opts, logger: logger}
}

// Run blocks until ctx is cancelled, polling for reload requests at the
// configured interval.
func (m *Monitor) Run(ctx context.Context) {
	var watcher *fsnotify.Watcher
	if m.opts.SignalPath != "" {
		var err error
		watcher, err = fsnotify.NewWatcher()
		if err != nil {
			m.logger.Warn("reload monitor: signal file watch unavailable", zap.Error(err))
		} else {
			// watch the parent so creation of the signal file is seen
			if err := watcher.Add(filepath.Dir(m.opts.SignalPath)); err != nil {
				m.logger.Warn("reload monitor: cannot watch signal dir",
					zap.String("path", m.opts.SignalPath), zap.Error(err))
				_ = watcher.Close()
				watcher = nil
			}
		}
	}
	if watcher != nil {
		defer watcher.Close()
	}

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		var events chan fsnotify.Event
		var errs chan error
		if watcher != nil {
			events = watcher.Events
			errs = watcher.Errors
		}
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				watcher = nil
				continue
			}
			if filepath.Clean(ev.Name) == filepath.Clean(m.opts.SignalPath) &&
				ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				m.index.RequestReload()
			}
		case err, ok := <-errs:
			if !ok {
				watcher = nil
				continue
			}
			if err != nil {
				m.logger.Debug("reload monitor: watch error", zap.Error(err))
			}
		case <-ticker.C:
			if !m.index.consumeReload() {
				continue
			}
			m.settle(ctx)
			// coalesce signals that arrived during the settle window
			m.index.consumeReload()
			if err := ctx.Err(); err != nil {
				return
			}
			m.logger.Info("reload monitor: rebuilding index")
			if err := m.index.Build(ctx); err != nil {
				m.logger.Warn("reload monitor: rebuild failed, previous snapshot retained", zap.Error(err))
				// retry on the next cycle
				m.index.RequestReload()
				continue
			}
			m.logger.Info("reload monitor: rebuild complete",
				zap.Uint64("version", m.index.Version()))
		}
	}
}

func (m *Monitor) settle(ctx context.Context) {
	if m.opts.SettleWindow <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(m.opts.SettleWindow):
	}
}
