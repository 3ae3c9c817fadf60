package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchConfig configures the hot-reload watcher for serve mode (§4.20).
type WatchConfig struct {
	ConfigPath string
	PromptDir  string
	Debounce   time.Duration
	Logger     *slog.Logger

	// OnConfigChange receives the freshly loaded and validated config after
	// a debounced change to ConfigPath. The caller is responsible for
	// swapping it into the live Deps/Services only between turns (§4.20);
	// the watcher has no notion of turn boundaries.
	OnConfigChange func(*Config)

	// OnPromptChange receives the changed file's path after a debounced
	// change under PromptDir. The Prompt Renderer (§4.1) is stateless per
	// call, so no cache invalidation is needed beyond this notification.
	OnPromptChange func(path string)
}

// Watcher watches a config file and a prompt directory for changes,
// grounded on the teacher's skills.Manager file-watching loop: one
// fsnotify.Watcher, a debounce timer per watched concern, Events/Errors
// consumed in a single goroutine until Close cancels it.
type Watcher struct {
	cfg     WatchConfig
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher builds and starts a Watcher. Call Close to stop it.
func NewWatcher(cfg WatchConfig) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 250 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "config-watch")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if cfg.ConfigPath != "" {
		if err := fw.Add(filepath.Dir(cfg.ConfigPath)); err != nil {
			_ = fw.Close()
			return nil, err
		}
	}
	if cfg.PromptDir != "" {
		if err := fw.Add(cfg.PromptDir); err != nil {
			_ = fw.Close()
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{cfg: cfg, watcher: fw, logger: logger, cancel: cancel}

	w.wg.Add(1)
	go w.loop(ctx)
	return w, nil
}

// Close stops the watcher and releases its fsnotify handle.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	configAbs := ""
	if w.cfg.ConfigPath != "" {
		if abs, err := filepath.Abs(w.cfg.ConfigPath); err == nil {
			configAbs = abs
		}
	}

	var mu sync.Mutex
	var configTimer, promptTimer *time.Timer

	scheduleConfigReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if configTimer != nil {
			configTimer.Stop()
		}
		configTimer = time.AfterFunc(w.cfg.Debounce, w.reloadConfig)
	}
	schedulePromptChange := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if promptTimer != nil {
			promptTimer.Stop()
		}
		promptTimer = time.AfterFunc(w.cfg.Debounce, func() { w.notifyPromptChange(path) })
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			if configAbs != "" && abs == configAbs {
				scheduleConfigReload()
				continue
			}
			if w.cfg.PromptDir != "" {
				schedulePromptChange(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", "error", err)
		}
	}
}

func (w *Watcher) reloadConfig() {
	cfg, err := Load(w.cfg.ConfigPath)
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous config", "error", err)
		return
	}
	if w.cfg.OnConfigChange != nil {
		w.cfg.OnConfigChange(cfg)
	}
}

func (w *Watcher) notifyPromptChange(path string) {
	if w.cfg.OnPromptChange != nil {
		w.cfg.OnPromptChange(path)
	}
}
