// Package tailwatch follows the pipeline's shared progress log and converts
// newly appended phase lines into events. It is a fallback source: agents
// that never fire lifecycle hooks still become visible through the phase
// lines they write. The watcher tolerates the file or directory being
// missing, truncated, or rotated without ever crashing the loop.
package tailwatch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"chronoscope/internal/core/domain"
	"chronoscope/internal/core/ports"
	"chronoscope/internal/metrics"
)

// ProgressFilename is the well-known progress log name inside the watch
// directory.
const ProgressFilename = "PROGRESS.md"

// DefaultRescanInterval bounds how stale the tail can get if a change
// notification is missed, and paces retries while the watch source is
// unavailable.
const DefaultRescanInterval = 2 * time.Second

const source = "tailwatch"

// Watcher tails the progress log in one directory.
type Watcher struct {
	dir      string
	sink     ports.EventSink
	logger   *slog.Logger
	interval time.Duration

	offset int64
}

// Option customizes watcher construction.
type Option func(*Watcher)

// WithRescanInterval overrides the fallback rescan cadence.
func WithRescanInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New creates a watcher for dir, writing parsed events into sink.
func New(dir string, sink ports.EventSink, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		sink:     sink,
		logger:   slog.Default(),
		interval: DefaultRescanInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run tails the progress log until ctx is canceled. Lines that existed
// before the watcher started are skipped: the dashboard hydrates current
// state from the snapshot query, so there is no history replay here.
func (w *Watcher) Run(ctx context.Context) error {
	w.prime()

	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer notifier.Close()

	watching := w.addWatch(notifier)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-notifier.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != ProgressFilename {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.drain()
			}

		case err, ok := <-notifier.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("progress watch error", slog.String("error", err.Error()))

		case <-ticker.C:
			// The rescan covers notifications lost while the directory was
			// missing or the watch was dropped.
			if !watching {
				watching = w.addWatch(notifier)
			}
			w.drain()
		}
	}
}

// prime records the current end of the file so pre-existing lines are not
// replayed.
func (w *Watcher) prime() {
	info, err := os.Stat(filepath.Join(w.dir, ProgressFilename))
	if err != nil {
		return
	}
	w.offset = info.Size()
}

func (w *Watcher) addWatch(notifier *fsnotify.Watcher) bool {
	if err := notifier.Add(w.dir); err != nil {
		w.logger.Warn("watch directory unavailable, will retry",
			slog.String("dir", w.dir),
			slog.String("error", fmt.Errorf("%w: %v", domain.ErrWatchSourceUnavailable, err).Error()))
		return false
	}
	w.logger.Info("tailing progress log",
		slog.String("path", filepath.Join(w.dir, ProgressFilename)))
	return true
}

// drain reads every complete line appended since the last read position,
// parses the ones matching the phase format, and appends the resulting
// events. Truncation or rotation (the file shrinking) resets the tail to
// the start of the new file.
func (w *Watcher) drain() {
	path := filepath.Join(w.dir, ProgressFilename)

	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("progress log unreadable",
				slog.String("path", path),
				slog.String("error", fmt.Errorf("%w: %v", domain.ErrWatchSourceUnavailable, err).Error()))
		}
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return
	}
	if info.Size() < w.offset {
		w.logger.Info("progress log truncated or rotated, rewinding",
			slog.String("path", path))
		w.offset = 0
	}

	if _, err := f.Seek(w.offset, io.SeekStart); err != nil {
		return
	}

	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			// An unterminated trailing line is still being written; leave it
			// for the next pass.
			break
		}
		w.offset += int64(len(line))

		ev, ok := ParseLine(line)
		if !ok {
			continue
		}
		if _, err := w.sink.Append(ev); err != nil {
			metrics.EventsRejected.WithLabelValues(source).Inc()
			w.logger.Warn("phase line rejected", slog.String("error", err.Error()))
			continue
		}
		metrics.EventsIngested.WithLabelValues(source).Inc()
	}
}
