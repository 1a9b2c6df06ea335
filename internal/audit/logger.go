package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agent-pilot/responderd/internal/monitor"
)

// ErrAuditWrite marks a failed append; callers treat it as a degraded
// trail rather than a fatal condition.
var ErrAuditWrite = errors.New("audit write failed")

// genesisHash seeds the hash chain of an empty log.
const genesisHash = "responderd-audit-genesis"

// Entry is one line of the append-only decision log. Hash covers the
// serialized entry with Hash itself empty, chained through PrevHash.
type Entry struct {
	ID          string    `json:"id"`
	Seq         uint64    `json:"seq"`
	Timestamp   time.Time `json:"ts"`
	Session     string    `json:"session"`
	Target      string    `json:"target"`
	Fingerprint string    `json:"fingerprint"`
	Category    string    `json:"category"`
	Preset      string    `json:"preset"`
	Action      string    `json:"action"`
	Reason      string    `json:"reason"`
	PrevHash    string    `json:"prev_hash"`
	Hash        string    `json:"hash"`
}

// Logger appends decisions for one session to a JSONL file. Appends are
// serialized; the chain state survives process restarts by replaying the
// existing file on open.
type Logger struct {
	mu       sync.Mutex
	path     string
	seq      uint64
	prevHash string
	entropy  *rand.Rand
	// needNewline is set when the file ends mid-line (torn write); the
	// next append terminates it first so records stay one per line.
	needNewline bool
}

// Open creates or resumes the log at path, scanning any existing entries
// to recover the chain tail. A trailing partial line (torn write) is
// skipped rather than treated as corruption.
func Open(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audit dir: %w", err)
	}
	l := &Logger{
		path:     path,
		prevHash: genesisHash,
		entropy:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := l.resume(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Logger) resume() error {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("audit open: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			// Torn or garbage line; keep the chain state from the last
			// good entry.
			continue
		}
		l.seq = e.Seq
		l.prevHash = e.Hash
	}
	if err := sc.Err(); err != nil {
		return err
	}

	if info, err := f.Stat(); err == nil && info.Size() > 0 {
		buf := make([]byte, 1)
		if _, err := f.ReadAt(buf, info.Size()-1); err == nil && buf[0] != '\n' {
			l.needNewline = true
		}
	}
	return nil
}

// Record appends one decision and returns ErrAuditWrite on any failure.
func (l *Logger) Record(dec monitor.Decision) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{
		ID:          ulid.MustNew(ulid.Timestamp(dec.DecidedAt), l.entropy).String(),
		Seq:         l.seq + 1,
		Timestamp:   dec.DecidedAt,
		Session:     dec.Event.SessionName,
		Target:      dec.Event.Target,
		Fingerprint: dec.Event.Fingerprint,
		Category:    string(dec.Category),
		Preset:      dec.Preset,
		Action:      string(dec.Action),
		Reason:      dec.Reason,
		PrevHash:    l.prevHash,
	}
	e.Hash = hashEntry(e)

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuditWrite, err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuditWrite, err)
	}
	defer f.Close()

	if l.needNewline {
		line = append([]byte{'\n'}, line...)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("%w: %v", ErrAuditWrite, err)
	}
	l.needNewline = false

	l.seq = e.Seq
	l.prevHash = e.Hash
	return nil
}

// Tail returns up to n entries from the end of the log, oldest first.
func (l *Logger) Tail(n int) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit open: %w", err)
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// Verify replays the file and checks the hash chain, returning the number
// of valid entries and the first break if any.
func (l *Logger) Verify() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	prev := genesisHash
	count := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		if e.PrevHash != prev {
			return count, fmt.Errorf("chain break at seq %d", e.Seq)
		}
		want := e.Hash
		e.Hash = ""
		if hashEntry(e) != want {
			return count, fmt.Errorf("hash mismatch at seq %d", e.Seq)
		}
		prev = want
		count++
	}
	return count, sc.Err()
}

func hashEntry(e Entry) string {
	e.Hash = ""
	b, _ := json.Marshal(e)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
