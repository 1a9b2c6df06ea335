package policy

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Store holds the loaded presets and the denylist. Individual presets are
// immutable; Reload swaps the whole preset set, which only affects sessions
// started afterwards.
type Store struct {
	mu       sync.RWMutex
	presets  map[string]*Preset
	denylist *Denylist
	path     string
	extra    []string
}

// presetsFile is the YAML document shape for a presets file.
type presetsFile struct {
	Presets map[string]presetDoc `yaml:"presets"`
	Deny    []string             `yaml:"denylist"`
}

type presetDoc struct {
	Risk          string                    `yaml:"risk"`
	CheckInterval string                    `yaml:"check_interval"`
	ResponseDelay string                    `yaml:"response_delay"`
	Categories    map[Category]PresetAction `yaml:"categories"`
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// NewStore builds a store holding only the built-in presets and denylist.
func NewStore() *Store {
	s := &Store{denylist: DefaultDenylist()}
	s.presets = builtinMap()
	return s
}

// Load builds a store from a presets file layered over the built-ins.
// An unreadable or invalid document is rejected before use; extraDeny
// patterns from the main config are appended to the denylist.
func Load(path string, extraDeny []string) (*Store, error) {
	s := &Store{path: path, extra: extraDeny, denylist: DefaultDenylist()}
	if err := s.denylist.Extend(extraDeny); err != nil {
		return nil, err
	}
	presets, deny, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	if err := s.denylist.Extend(deny); err != nil {
		return nil, err
	}
	s.presets = presets
	return s, nil
}

// Reload re-reads the backing presets file and atomically swaps the preset
// set. The denylist only ever grows: configured patterns from the previous
// load stay in force.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	presets, deny, err := loadFile(s.path)
	if err != nil {
		return err
	}
	denylist := DefaultDenylist()
	if err := denylist.Extend(s.extra); err != nil {
		return err
	}
	if err := denylist.Extend(deny); err != nil {
		return err
	}

	s.mu.Lock()
	s.presets = presets
	s.denylist = denylist
	s.mu.Unlock()
	return nil
}

func loadFile(path string) (map[string]*Preset, []string, error) {
	presets := builtinMap()
	if path == "" {
		return presets, nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return presets, nil, nil
		}
		return nil, nil, fmt.Errorf("read presets file: %w", err)
	}

	var doc presetsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse presets file %s: %w", path, err)
	}

	for name, pd := range doc.Presets {
		tier, err := ParseRiskTier(pd.Risk)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: preset %q: %v", ErrInvalidPreset, name, err)
		}
		interval, err := parseOptionalDuration(pd.CheckInterval)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: preset %q: check_interval: %v", ErrInvalidPreset, name, err)
		}
		delay, err := parseOptionalDuration(pd.ResponseDelay)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: preset %q: response_delay: %v", ErrInvalidPreset, name, err)
		}
		p, err := NewPreset(name, tier, pd.Categories, interval, delay)
		if err != nil {
			return nil, nil, fmt.Errorf("presets file %s: %w", path, err)
		}
		presets[name] = p
	}

	return presets, doc.Deny, nil
}

func builtinMap() map[string]*Preset {
	m := make(map[string]*Preset)
	for _, p := range builtinPresets() {
		m[p.Name()] = p
	}
	return m
}

// Resolve returns the preset with the given name.
func (s *Store) Resolve(name string) (*Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return p, nil
}

// Presets returns all loaded presets sorted by risk tier, then name.
func (s *Store) Presets() []*Preset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Preset, 0, len(s.presets))
	for _, p := range s.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tier() != out[j].Tier() {
			return out[i].Tier() < out[j].Tier()
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// Denylist returns the current denylist.
func (s *Store) Denylist() *Denylist {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.denylist
}

// Watch reloads the store whenever the backing presets file changes.
// It blocks until ctx is cancelled. A failed reload keeps the previous
// preset set and logs the validation error.
func (s *Store) Watch(ctx context.Context, log zerolog.Logger) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("presets watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.path); err != nil {
		return fmt.Errorf("watch %s: %w", s.path, err)
	}

	// Editors replace files instead of writing in place, so debounce and
	// re-add after rename/remove events.
	var debounce *time.Timer
	reload := func() {
		if err := s.Reload(); err != nil {
			log.Warn().Err(err).Str("path", s.path).Msg("presets reload rejected, keeping previous set")
			return
		}
		log.Info().Str("path", s.path).Msg("presets reloaded; applies to newly started sessions")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if event.Op&(fsnotify.Rename|fsnotify.Remove) != 0 {
				_ = watcher.Add(s.path)
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(250*time.Millisecond, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("presets watcher error")
		}
	}
}
