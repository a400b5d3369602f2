package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// RehearsalEntry is one finalized session outcome in the rehearsal log.
type RehearsalEntry struct {
	SessionID            string  `json:"session_id"`
	Status               string  `json:"status"`
	TotalDurationMS      int64   `json:"total_duration_ms"`
	RetryCount           int     `json:"retry_count"`
	DegradeCount         int     `json:"degrade_count"`
	StabilityScore       int     `json:"stability_score"`
	StabilityLevel       string  `json:"stability_level"`
	EvidenceCoverageRate float64 `json:"evidence_coverage_rate"`
	TotalAgents          int     `json:"total_agents"`
	CompletedAgents      int     `json:"completed_agents"`
	LoggedAt             string  `json:"logged_at"`
}

// RehearsalLog appends finalized session metrics to a JSONL file so demo
// rehearsal rounds leave a machine-readable trail. A session is logged at
// most once per terminal status within a process; an empty path disables
// the log entirely.
type RehearsalLog struct {
	mu   sync.Mutex
	path string
	seen map[string]struct{}
}

func NewRehearsalLog(path string) *RehearsalLog {
	return &RehearsalLog{
		path: path,
		seen: make(map[string]struct{}),
	}
}

// Enabled reports whether appends go anywhere.
func (l *RehearsalLog) Enabled() bool {
	return l != nil && l.path != ""
}

// Append writes one entry, reporting whether it was logged. Entries
// without a session id, duplicates of an already-logged session:status
// pair, and appends on a disabled log all come back false without error.
func (l *RehearsalLog) Append(entry RehearsalEntry) (bool, error) {
	if !l.Enabled() {
		return false, nil
	}
	sessionID := strings.TrimSpace(entry.SessionID)
	if sessionID == "" {
		return false, nil
	}
	key := sessionID + ":" + strings.ToLower(strings.TrimSpace(entry.Status))

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[key]; ok {
		return false, nil
	}

	if entry.LoggedAt == "" {
		entry.LoggedAt = time.Now().UTC().Format(time.RFC3339)
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("marshal rehearsal entry: %w", err)
	}

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("create rehearsal log dir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("open rehearsal log %s: %w", l.path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return false, fmt.Errorf("append rehearsal log %s: %w", l.path, err)
	}

	l.seen[key] = struct{}{}
	return true, nil
}
