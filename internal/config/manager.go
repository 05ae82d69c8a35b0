package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"

	logx "raidbot/pkg/logx"
)

// TokenEnv overrides telegram.token when set.
const TokenEnv = "RAIDBOT_TOKEN"

// Manager loads the settings file once and holds it for the process lifetime.
// Splay and channel records are derived from the first load, so later edits
// only produce a "restart required" warning (see Watch).
type Manager struct {
	path string

	mu       sync.RWMutex
	cfg      *Config
	lastHash uint64

	log logx.Logger
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

func (m *Manager) SetLogger(log logx.Logger) { m.log = log }

// Parse reads, decodes and validates the settings file without caching it.
func (m *Manager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, &Error{Path: m.path, Kind: KindSchema, Err: err}
	}
	return parseBytes(m.path, b)
}

func parseBytes(path string, b []byte) (*Config, error) {
	format := formatOf(path)
	jb, err := coerceToJSONBytes(format, b)
	if err != nil {
		return nil, &Error{Path: path, Kind: KindSyntax, Err: err}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(jb, &raw); err != nil {
		return nil, &Error{Path: path, Kind: KindSyntax, Err: err}
	}
	if err := validateAccount(raw); err != nil {
		return nil, &Error{Path: path, Kind: KindSchema, Err: err}
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, &Error{Path: path, Kind: KindSchema, Err: err}
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			err = errors.New("trailing data")
		}
		return nil, &Error{Path: path, Kind: KindSyntax, Err: err}
	}

	order, err := raidOrder(format, b)
	if err != nil {
		return nil, &Error{Path: path, Kind: KindSyntax, Err: err}
	}
	cfg.RaidOrder = order

	if err := validate(&cfg); err != nil {
		return nil, &Error{Path: path, Kind: KindSchema, Err: err}
	}
	return &cfg, nil
}

// Load returns the memoized settings, parsing the file on first use.
// A .env file next to the settings file (if any) is loaded first so
// RAIDBOT_TOKEN can be kept out of the settings file.
func (m *Manager) Load() (*Config, error) {
	m.mu.RLock()
	cfg := m.cfg
	m.mu.RUnlock()
	if cfg != nil {
		return cfg, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg != nil {
		return m.cfg, nil
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(m.path), ".env")); err != nil {
		return nil, err
	}
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	if tok := strings.TrimSpace(os.Getenv(TokenEnv)); tok != "" {
		cfg.Telegram.Token = tok
	}
	m.cfg = cfg
	m.lastHash = hashFile(m.path)
	return cfg, nil
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

func hashFile(path string) uint64 {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// Watch logs a warning whenever the settings file changes on disk.
// Settings are never reloaded in-process; the operator must restart.
func (m *Manager) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	const (
		restartBackoffBase = 250 * time.Millisecond
		restartBackoffMax  = 5 * time.Second
	)
	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	nextWait := func() time.Duration {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		backoff = min(backoff*2, restartBackoffMax)
		return wait
	}

	// debounce to avoid reacting to partial writes
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, func() { m.checkChanged() })
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		w, err := fsnotify.NewWatcher()
		if err == nil {
			if err = w.Add(dir); err != nil {
				_ = w.Close()
			}
		}
		if err != nil {
			m.log.Warn("settings watch init failed", logx.Err(err), logx.String("dir", dir))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(nextWait()):
				continue
			}
		}

		backoff = restartBackoffBase
		m.log.Debug("settings watcher started", logx.String("dir", dir), logx.String("file", file))

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				if strings.EqualFold(filepath.Base(ev.Name), file) &&
					ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					debounce()
				}
			case err, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if err != nil {
					m.log.Warn("settings watch error", logx.Err(err), logx.String("dir", dir))
				}
			}
		}

		_ = w.Close()
		wait := nextWait()
		m.log.Warn("settings watcher stopped; restarting", logx.Duration("backoff", wait))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (m *Manager) checkChanged() {
	h := hashFile(m.path)
	m.mu.Lock()
	unchanged := h != 0 && h == m.lastHash
	if !unchanged && h != 0 {
		m.lastHash = h
	}
	m.mu.Unlock()
	if unchanged {
		return
	}
	if _, err := m.Parse(); err != nil {
		m.log.Warn("settings changed on disk and no longer parse", logx.String("path", m.path), logx.Err(err))
		return
	}
	m.log.Warn("settings changed on disk; restart required for changes to take effect", logx.String("path", m.path))
}
