package audit

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/agent-pilot/responderd/internal/monitor"
)

// Manager hands out one logger per session, all rooted under dir. Session
// names come from tmux and may contain path separators; they are mangled
// into safe filenames.
type Manager struct {
	mu      sync.Mutex
	dir     string
	loggers map[string]*Logger
}

func NewManager(dir string) *Manager {
	return &Manager{dir: dir, loggers: make(map[string]*Logger)}
}

// Logger returns the session's logger, opening it on first use.
func (m *Manager) Logger(session string) (*Logger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.loggers[session]; ok {
		return l, nil
	}
	l, err := Open(filepath.Join(m.dir, safeName(session)+".jsonl"))
	if err != nil {
		return nil, err
	}
	m.loggers[session] = l
	return l, nil
}

// Sink returns a monitor.Sink bound to the session's logger.
func (m *Manager) Sink(session string) (monitor.Sink, error) {
	l, err := m.Logger(session)
	if err != nil {
		return nil, err
	}
	return monitor.SinkFunc(l.Record), nil
}

func safeName(session string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")
	name := r.Replace(session)
	if name == "" {
		name = "default"
	}
	return name
}
