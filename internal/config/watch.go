package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// WatchBlocklistFile watches a JSON5 file of blocklisted source identifiers
// and invokes onChange with its raw contents every time it is written or
// created. Used by the ingress pipeline to pick up operator-managed
// blocklist edits without a restart; parsing is left to onChange.
func WatchBlocklistFile(path string, onChange func(data []byte)) (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(path); err != nil {
		_ = w.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					data, readErr := readFileQuiet(path)
					if readErr != nil {
						slog.Warn("config.watch_read_failed", "path", path, "error", readErr)
						continue
					}
					onChange(data)
				}
			case werr, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("config.watch_error", "path", path, "error", werr)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		_ = w.Close()
	}, nil
}
