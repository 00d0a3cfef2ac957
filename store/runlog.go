package store

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// RunLog records which generations of which runs have been flushed to disk,
// so a restarted executor can continue a run's generation numbering.
//
// Format: <run_id> <generation>\n
// A torn final line from a crash is ignored on the next open.
type RunLog struct {
	mu   sync.RWMutex
	path string
	file *os.File
	last map[string]int32
}

func OpenRunLog(path string) (*RunLog, error) {
	if path == "" {
		return nil, fmt.Errorf("log path is required")
	}

	last := make(map[string]int32)
	if f, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			runID, gen, ok := parseRunLine(scanner.Text())
			if !ok {
				continue
			}
			if prev, seen := last[runID]; !seen || gen > prev {
				last[runID] = gen
			}
		}
		_ = f.Close()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &RunLog{path: path, file: file, last: last}, nil
}

func parseRunLine(line string) (string, int32, bool) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return "", 0, false
	}
	gen, err := strconv.ParseInt(fields[1], 10, 32)
	if err != nil || gen < 0 {
		return "", 0, false
	}
	return fields[0], int32(gen), true
}

func (l *RunLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// LastGeneration returns the highest flushed generation for runID.
func (l *RunLog) LastGeneration(runID string) (int32, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	gen, ok := l.last[runID]
	return gen, ok
}

// Runs returns the number of distinct runs in the log.
func (l *RunLog) Runs() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.last)
}

// Add appends a flushed generation and syncs.
func (l *RunLog) Add(runID string, generation int32) error {
	if runID == "" || strings.ContainsAny(runID, " \t\n") {
		return fmt.Errorf("invalid run id %q", runID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("log file is closed")
	}
	if _, err := fmt.Fprintf(l.file, "%s %d\n", runID, generation); err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync log: %w", err)
	}
	if prev, ok := l.last[runID]; !ok || generation > prev {
		l.last[runID] = generation
	}
	return nil
}
