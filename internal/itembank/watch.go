package itembank

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/abhisek/adaptiq/internal/metrics"
)

// Watch reloads bank whenever the file at path is written or replaced,
// until ctx ends. A document that fails to load leaves the previous
// contents in place.
func Watch(ctx context.Context, path string, bank *Bank, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory so that editors that write a temp file and rename
	// it over the original are still seen.
	target := filepath.Clean(path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			if err := bank.LoadFile(target); err != nil {
				metrics.ItemBankReloads.WithLabelValues("rejected").Inc()
				logger.Warn("item bank reload rejected, keeping previous contents",
					zap.String("path", target), zap.Error(err))
				continue
			}
			metrics.ItemBankReloads.WithLabelValues("ok").Inc()
			logger.Info("item bank reloaded",
				zap.String("path", target),
				zap.String("format", bank.Version()),
				zap.Int("items", bank.Len()))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("item bank watcher error", zap.Error(err))
		}
	}
}
