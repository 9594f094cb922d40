package coordinator

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// AuditEntry is one line of the append-only audit log.
type AuditEntry struct {
	Time      time.Time     `json:"time"`
	RequestID string        `json:"request_id"`
	Method    string        `json:"method"`
	Path      string        `json:"path"`
	Status    int           `json:"status"`
	Duration  time.Duration `json:"duration_ns"`
}

// AuditLogger writes one JSON object per line to a size-rotated file.
type AuditLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func NewAuditLogger(path string, maxSizeMB, backups int) (*AuditLogger, error) {
	if path == "" {
		return &AuditLogger{w: io.Discard}, nil
	}
	return &AuditLogger{
		w: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: backups,
			Compress:   true,
		},
	}, nil
}

func (a *AuditLogger) Log(e AuditEntry) {
	line, err := json.Marshal(e)
	if err != nil {
		return
	}
	line = append(line, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	_, _ = a.w.Write(line)
}
