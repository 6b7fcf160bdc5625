// Package audit writes the optional run log: one JSON line per o-o
// invocation. Batch drivers spawn o-o once per input item, so the log is the
// one place a whole batch's redirections and exit statuses can be reviewed
// afterwards. Logging is best-effort and never fails the run.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one logged invocation.
type Entry struct {
	RunID      string    `json:"run_id"`
	Time       time.Time `json:"time"`
	Fds        [3]string `json:"fds"`
	Commands   []string  `json:"commands"`
	ExitStatus int       `json:"exit_status"`
	DurationMS float64   `json:"duration_ms"`
	Cwd        string    `json:"cwd"`
}

// Logger is an append-only jsonl run log writer.
type Logger struct {
	mu   sync.Mutex
	path string
}

// NewLogger opens or creates a run log at the given path.
func NewLogger(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create run log dir: %w", err)
	}
	return &Logger{path: path}, nil
}

// Log appends one entry. The run id and timestamp are filled in here.
func (l *Logger) Log(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.RunID = uuid.NewString()
	e.Time = time.Now().UTC()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal run log entry: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write run log entry: %w", err)
	}
	return nil
}

// Path returns the run log file path.
func (l *Logger) Path() string {
	return l.path
}
