package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DynamicConfig holds the runtime-tunable subset of configuration, reloaded
// from file without a restart.
type DynamicConfig struct {
	Limits   Limits   `yaml:"limits"`
	Features Features `yaml:"features"`
}

// Limits holds tunable query bounds.
type Limits struct {
	DefaultQueryLimit   int `yaml:"default_query_limit"`
	RecentActivityLimit int `yaml:"recent_activity_limit"`
}

// Features holds tunable feature switches.
type Features struct {
	EnablePublisher bool `yaml:"enable_publisher"`
	EnableMetrics   bool `yaml:"enable_metrics"`
}

// DefaultDynamicConfig returns the values used until a file is loaded.
func DefaultDynamicConfig() *DynamicConfig {
	return &DynamicConfig{
		Limits: Limits{
			DefaultQueryLimit:   50,
			RecentActivityLimit: 20,
		},
	}
}

// Watcher watches a YAML file of dynamic configuration and notifies
// registered callbacks on every successful reload.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	current  *DynamicConfig
	onChange []func(*DynamicConfig)
}

// NewWatcher creates a watcher for the given file. The file is loaded once
// immediately; a missing file leaves the defaults in place.
func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		path:    path,
		watcher: fsWatcher,
		logger:  logger,
		stopCh:  make(chan struct{}),
		current: DefaultDynamicConfig(),
	}

	if err := w.reload(); err != nil {
		logger.Warn("dynamic config not loaded, using defaults",
			zap.String("path", path),
			zap.Error(err),
		)
	}

	// Watch the directory, not the file: editors and config maps replace
	// the file atomically, which drops a watch held on the old inode.
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	go w.run()
	return w, nil
}

// Current returns the latest loaded configuration.
func (w *Watcher) Current() *DynamicConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers a callback invoked after every successful reload.
func (w *Watcher) OnChange(fn func(*DynamicConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Stop shuts the watcher down.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
	})
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := w.reload(); err != nil {
				w.logger.Error("failed to reload dynamic config",
					zap.String("path", w.path),
					zap.Error(err),
				)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}

	cfg := DefaultDynamicConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", w.path, err)
	}

	w.mu.Lock()
	w.current = cfg
	callbacks := make([]func(*DynamicConfig), len(w.onChange))
	copy(callbacks, w.onChange)
	w.mu.Unlock()

	w.logger.Info("dynamic config reloaded",
		zap.Int("defaultQueryLimit", cfg.Limits.DefaultQueryLimit),
		zap.Bool("enablePublisher", cfg.Features.EnablePublisher),
	)

	for _, fn := range callbacks {
		fn(cfg)
	}
	return nil
}
