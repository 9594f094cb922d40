package coordinator

import (
	"bytes"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestAuditLoggerWritesJSONLine(t *testing.T) {
	buf := &syncBuffer{}
	a := &AuditLogger{w: buf}

	a.Log(AuditEntry{
		Time:      time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC),
		RequestID: "req-1",
		Method:    "POST",
		Path:      "/api/v1/uploads",
		Status:    202,
		Duration:  5 * time.Millisecond,
	})

	var entry AuditEntry
	require.NoError(t, json.Unmarshal(buf.buf.Bytes(), &entry))
	require.Equal(t, "req-1", entry.RequestID)
	require.Equal(t, 202, entry.Status)
}

func TestNewAuditLoggerEmptyPathDiscards(t *testing.T) {
	a, err := NewAuditLogger("", 10, 3)
	require.NoError(t, err)
	require.NotPanics(t, func() {
		a.Log(AuditEntry{Method: "POST"})
	})
}
