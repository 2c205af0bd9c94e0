// Package ledger remembers which event ids were already archived so repeated
// polls over overlapping windows emit each record once.
package ledger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

const day = 24 * time.Hour

type Ledger struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

func New() *Ledger {
	return &Ledger{entries: make(map[string]time.Time)}
}

// Load rebuilds a ledger from the archive files of one stream: the current
// file "<prefix>.log" and its rotations "<prefix>-<timestamp>.log". Only files
// modified within the last days are read. Every line contributes its uuid,
// stamped with start_time, else join_time, else the file's modification time.
func Load(dir, prefix string, days int, now time.Time) (*Ledger, error) {
	l := New()

	files, err := archiveFiles(dir, prefix)
	if err != nil {
		return nil, err
	}

	cutoff := now.Add(-time.Duration(days) * day)
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if info.ModTime().Before(cutoff) {
			continue
		}
		if err := l.loadFile(path, info.ModTime()); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func archiveFiles(dir, prefix string) ([]string, error) {
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) +
		`(-\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}\.\d{3})?\.log$`)

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list archive dir: %w", err)
	}

	var files []string
	for _, e := range dirEntries {
		if e.IsDir() || !pattern.MatchString(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

type line struct {
	UUID      string `json:"uuid"`
	StartTime string `json:"start_time"`
	JoinTime  string `json:"join_time"`
}

func (l *Ledger) loadFile(path string, modTime time.Time) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var rec line
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("%s:%d: malformed archive line: %w", path, lineNo, err)
		}
		if rec.UUID == "" || l.Contains(rec.UUID) {
			continue
		}
		l.Add(rec.UUID, stamp(rec, modTime))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

func stamp(rec line, fallback time.Time) time.Time {
	for _, v := range []string{rec.StartTime, rec.JoinTime} {
		if v == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			return ts
		}
	}
	return fallback
}

func (l *Ledger) Contains(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[id]
	return ok
}

// Add records id. An existing entry keeps its first-seen timestamp.
func (l *Ledger) Add(id string, ts time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[id]; !ok {
		l.entries[id] = ts
	}
}

// Prune drops entries older than days and returns how many were removed.
func (l *Ledger) Prune(days int, now time.Time) int {
	cutoff := now.Add(-time.Duration(days) * day)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for id, ts := range l.entries {
		if ts.Before(cutoff) {
			delete(l.entries, id)
			removed++
		}
	}
	return removed
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
