package mem

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
)

// MonitorConfig is the on-disk tuning file for the fragmentation monitor.
type MonitorConfig struct {
	WarnRatio     float64 `json:"warn_ratio"`
	CriticalRatio float64 `json:"critical_ratio"`
}

// LoadMonitorConfig reads the config file and applies its thresholds.
func LoadMonitorConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("mem: monitor config: %w", err)
	}

	var cfg MonitorConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("mem: monitor config %s: %w", path, err)
	}

	SetFragmentationThresholds(cfg.WarnRatio, cfg.CriticalRatio)

	return nil
}

// WatchMonitorConfig applies the config file now and reloads it whenever
// it is rewritten, using OS-native notifications. Hosted/dev tooling only.
// The returned function stops the watcher.
func WatchMonitorConfig(path string) (func() error, error) {
	if err := LoadMonitorConfig(path); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("mem: monitor config watcher: %w", err)
	}

	if err := w.Add(path); err != nil {
		_ = w.Close()

		return nil, fmt.Errorf("mem: watching %s: %w", path, err)
	}

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}

				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}

				if err := LoadMonitorConfig(ev.Name); err != nil {
					logf("warn: monitor config reload: %v", err)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}

				logf("warn: monitor config watcher: %v", err)
			}
		}
	}()

	return w.Close, nil
}
