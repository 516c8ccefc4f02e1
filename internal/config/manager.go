package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"castbot/pkg/logx"
)

const (
	reloadDebounce  = 250 * time.Millisecond
	watchBackoffMin = 250 * time.Millisecond
	watchBackoffMax = 5 * time.Second
)

var errWatcherClosed = errors.New("config watcher closed")

// Change is published after an edited file passed validation.
type Change struct {
	Old, New *Config
	// Sections lists the changed top-level sections.
	Sections []string
	// Fields are log-safe values of the changed sections.
	Fields []logx.Field
	// Restart is set when a changed section only applies after a restart.
	Restart bool
}

// Manager owns the live configuration. Every config it hands out has the
// environment overrides applied and has passed Validate.
type Manager struct {
	path         string
	requireToken bool
	getenv       func(string) string
	log          logx.Logger

	mu  sync.RWMutex
	cur *Config

	subsMu sync.Mutex
	subs   map[chan Change]struct{}
}

// NewManager reads path on Load. requireToken is false for commands that
// never talk to Telegram.
func NewManager(path string, requireToken bool) *Manager {
	return &Manager{
		path:         path,
		requireToken: requireToken,
		getenv:       os.Getenv,
		log:          logx.Nop(),
		subs:         map[chan Change]struct{}{},
	}
}

// SetEnv replaces the environment lookup used for overrides.
func (m *Manager) SetEnv(getenv func(string) string) { m.getenv = getenv }

func (m *Manager) SetLogger(log logx.Logger) {
	if !log.IsZero() {
		m.log = log
	}
}

func (m *Manager) Path() string { return m.path }

// read parses the file, applies the environment and validates the result.
// The environment always wins over the file.
func (m *Manager) read() (*Config, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeFile(m.path, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(m.path), err)
	}
	if err := ApplyEnv(cfg, m.getenv); err != nil {
		return nil, err
	}
	if err := Validate(cfg, m.requireToken); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads the file and makes it current.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.read()
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.cur = cfg
	m.mu.Unlock()
	return cfg, nil
}

func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur
}

// Reload re-reads the file. An invalid file keeps the current config and an
// unchanged one publishes nothing; changed reports whether subscribers saw it.
func (m *Manager) Reload() (c Change, changed bool, err error) {
	cfg, err := m.read()
	if err != nil {
		m.log.Warn("config rejected; keeping the current one", logx.String("path", m.path), logx.Err(err))
		return Change{}, false, err
	}

	m.mu.Lock()
	old := m.cur
	sections, fields, restart := SummarizeConfigChange(old, cfg)
	if len(sections) == 0 {
		m.mu.Unlock()
		m.log.Debug("config unchanged", logx.String("path", m.path))
		return Change{}, false, nil
	}
	m.cur = cfg
	m.mu.Unlock()

	c = Change{Old: old, New: cfg, Sections: sections, Fields: fields, Restart: restart}
	m.publish(c)
	return c, true, nil
}

// Subscribe returns a channel of accepted changes. A slow subscriber only
// keeps the newest ones.
func (m *Manager) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Change, buffer)
	m.subsMu.Lock()
	m.subs[ch] = struct{}{}
	m.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subsMu.Lock()
			delete(m.subs, ch)
			close(ch)
			m.subsMu.Unlock()
		})
	}
}

func (m *Manager) publish(c Change) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- c:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- c:
		default:
			m.log.Debug("config change dropped (subscriber slow)", logx.Int("queue_cap", cap(ch)))
		}
	}
}

// Watch reloads the file whenever it changes on disk until ctx is done. The
// directory is watched so editors that replace the file are seen too. A
// broken watcher is recreated with backoff.
func (m *Manager) Watch(ctx context.Context) error {
	dir, name := filepath.Dir(m.path), filepath.Base(m.path)
	backoff := watchBackoffMin
	for {
		started, err := m.watchOnce(ctx, dir, name)
		if ctx.Err() != nil {
			return nil
		}
		if started {
			backoff = watchBackoffMin
		}
		m.log.Warn("config watcher stopped; restarting",
			logx.String("dir", dir),
			logx.Err(err),
			logx.Duration("backoff", backoff),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, watchBackoffMax)
	}
}

func (m *Manager) watchOnce(ctx context.Context, dir, name string) (started bool, err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return false, err
	}
	defer func() { _ = w.Close() }()
	if err := w.Add(dir); err != nil {
		return false, err
	}
	m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", name))

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return true, nil
		case ev, ok := <-w.Events:
			if !ok {
				return true, errWatcherClosed
			}
			if filepath.Base(ev.Name) == name {
				debounce = time.After(reloadDebounce)
			}
		case werr, ok := <-w.Errors:
			if !ok {
				return true, errWatcherClosed
			}
			if errors.Is(werr, fsnotify.ErrEventOverflow) {
				// Events were lost; reread once to be safe.
				debounce = time.After(reloadDebounce)
				continue
			}
			return true, werr
		case <-debounce:
			debounce = nil
			_, _, _ = m.Reload()
		}
	}
}
