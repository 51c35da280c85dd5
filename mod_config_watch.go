package grok

import (
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// ConfigWatcher reloads a config file whenever it is written. The last
// successfully parsed config, or the last error, waits until Poll.
type ConfigWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	pending *Config
	err     error
	closed  bool
}

// NewConfigWatcher watches the directory holding path, so editors that
// replace the file instead of writing it in place are still seen.
func NewConfigWatcher(path string) (*ConfigWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "config watch")
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, errors.Wrapf(err, "config watch %s", path)
	}
	w := &ConfigWatcher{
		path:    filepath.Clean(path),
		watcher: fsw,
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.start()
	return w, nil
}

func (w *ConfigWatcher) start() {
	defer w.wg.Done()
	for {
		select {
		case e, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != w.path {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.reload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.store(nil, errors.Wrap(err, "config watch"))

		case <-w.done:
			return
		}
	}
}

func (w *ConfigWatcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.store(nil, err)
		return
	}
	w.store(&cfg, nil)
}

func (w *ConfigWatcher) store(cfg *Config, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cfg != nil {
		w.pending = cfg
		w.err = nil
	} else {
		w.err = err
	}
}

// Poll returns the config loaded since the last call, if any, and the last
// reload error. Both are cleared.
func (w *ConfigWatcher) Poll() (Config, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.err
	w.err = nil
	if w.pending == nil {
		return Config{}, false, err
	}
	cfg := *w.pending
	w.pending = nil
	return cfg, true, err
}

func (w *ConfigWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

// ConfigWatchModule applies edits of the config file while the App runs. The
// clear color and log level take effect on the next frame; anything else is
// reported as needing a restart.
type ConfigWatchModule struct {
	Path    string
	Initial Config
}

type configState struct {
	watcher *ConfigWatcher
	current Config
}

func (m ConfigWatchModule) Install(app *App, cmd *Commands) {
	w, err := NewConfigWatcher(m.Path)
	if err != nil {
		app.Logger().Warnf("config: %v, edits will not be applied", err)
		return
	}
	app.addResources(&configState{watcher: w, current: m.Initial})
	app.AtExit(func() {
		if err := w.Close(); err != nil {
			app.Logger().Warnf("config: close watcher: %v", err)
		}
	})
	app.UseSystem(System(configReloadSystem).InStage(Prelude))
}

func configReloadSystem(cmd *Commands, state *configState) {
	logger := cmd.Logger()
	cfg, ok, err := state.watcher.Poll()
	if err != nil {
		logger.Warnf("config: reload: %v", err)
	}
	if !ok {
		return
	}

	if rd := GetResource[RenderDevice](cmd); rd != nil {
		rd.Clear = cfg.Renderer.ClearColor
	}
	if dl, ok := logger.(*DefaultLogger); ok && cfg.Log.Level != state.current.Log.Level {
		if lvl, err := log.ParseLevel(cfg.Log.Level); err == nil {
			dl.SetLevel(lvl)
		} else {
			logger.Warnf("config: unknown log level %q", cfg.Log.Level)
		}
	}
	if cfg.Window != state.current.Window ||
		cfg.Renderer.Backend != state.current.Renderer.Backend ||
		cfg.Debug != state.current.Debug ||
		cfg.Log.Prefix != state.current.Log.Prefix {
		logger.Warnf("config: %s changed settings that apply on restart", state.watcher.path)
	}
	logger.Infof("config: reloaded %s", state.watcher.path)
	state.current = cfg
}
