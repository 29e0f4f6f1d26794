package worklog

import (
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StartTailingNotify is an alternative to StartTailing that wakes on
// filesystem write events instead of a fixed poll interval (spec.md §4.1:
// "implementation may use filesystem notifications instead"). Truncation
// cannot be distinguished from "no event yet" by fsnotify alone, so a slow
// fallback poll still runs underneath to catch rotation and writes made
// through tools fsnotify misses (e.g. certain network filesystems).
func (r *Reader) StartTailingNotify(logger *slog.Logger, fallback time.Duration, cb TailCallback) error {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(r.path); err != nil {
		_ = watcher.Close()
		return err
	}

	if fallback <= 0 {
		fallback = time.Second
	}

	r.mu.Lock()
	r.stopCh = make(chan struct{})
	stopCh := r.stopCh
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer watcher.Close()
		ticker := time.NewTicker(fallback)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					r.poll(cb)
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("worklog: fsnotify watch error", "error", werr)
			case <-ticker.C:
				r.poll(cb)
			}
		}
	}()
	return nil
}
