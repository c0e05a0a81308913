package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/chrysalis/pkg/ingest/promotion"
	"github.com/platinummonkey/chrysalis/pkg/observability"
)

// ThresholdsWatcher watches a JSON file of promotion.Thresholds overrides
// and invokes onChange whenever the file is written, letting an operator
// retune drift/coverage thresholds without restarting the worker process.
type ThresholdsWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	logger  *observability.Logger
	done    chan struct{}
}

// WatchThresholdsFile loads path once synchronously (calling onChange with
// the initial contents if the file exists), then starts a background watch
// for subsequent writes. A missing file is not an error: onChange simply
// never fires until the file is created.
func WatchThresholdsFile(path string, logger *observability.Logger, onChange func(promotion.Thresholds)) (*ThresholdsWatcher, error) {
	if t, err := loadThresholdsFile(path); err == nil {
		onChange(t)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: initial thresholds load: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		if !os.IsNotExist(err) {
			fsw.Close()
			return nil, fmt.Errorf("config: watch %s: %w", path, err)
		}
		// The file does not exist yet: watch its directory so that its
		// creation (and later writes) are seen.
		if err := fsw.Add(filepath.Dir(path)); err != nil && !os.IsNotExist(err) {
			fsw.Close()
			return nil, fmt.Errorf("config: watch %s: %w", filepath.Dir(path), err)
		}
	}

	tw := &ThresholdsWatcher{watcher: fsw, path: path, logger: logger, done: make(chan struct{})}
	go tw.loop(onChange)
	return tw, nil
}

func (tw *ThresholdsWatcher) loop(onChange func(promotion.Thresholds)) {
	defer close(tw.done)
	for {
		select {
		case event, ok := <-tw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			t, err := loadThresholdsFile(tw.path)
			if err != nil {
				if tw.logger != nil {
					tw.logger.WithError(err).Error("config: failed to reload thresholds file")
				}
				continue
			}
			if tw.logger != nil {
				tw.logger.Info("config: reloaded promotion thresholds")
			}
			onChange(t)
		case err, ok := <-tw.watcher.Errors:
			if !ok {
				return
			}
			if tw.logger != nil {
				tw.logger.WithError(err).Error("config: thresholds watcher error")
			}
		}
	}
}

// Close stops the watch and releases the underlying inotify/kqueue handle.
func (tw *ThresholdsWatcher) Close() error {
	err := tw.watcher.Close()
	<-tw.done
	return err
}

func loadThresholdsFile(path string) (promotion.Thresholds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return promotion.Thresholds{}, err
	}
	var t promotion.Thresholds
	if err := json.Unmarshal(data, &t); err != nil {
		return promotion.Thresholds{}, fmt.Errorf("config: parse thresholds file: %w", err)
	}
	return t, nil
}
