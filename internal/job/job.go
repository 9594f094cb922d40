// Package job defines the Job entity shared by the coordinator, the
// message bus and the dispatcher: its kind, its state machine and the
// kind-specific payload/result envelopes carried on it.
package job

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind is the closed set of job kinds lakeforge executes.
type Kind string

const (
	KindUpload Kind = "upload"
	KindQuery  Kind = "query"
	KindSchema Kind = "schema"
)

func (k Kind) Valid() bool {
	switch k {
	case KindUpload, KindQuery, KindSchema:
		return true
	default:
		return false
	}
}

// Status is the closed set of job states. Transitions are monotone:
// queued -> processing -> {completed, failed}. completed and failed are
// terminal.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// CanTransition reports whether moving a job from `from` to `to` is legal
// under the state machine. Same-state transitions are rejected; terminal
// states accept nothing further.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusQueued:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is the durable record held in the job store. Payload and Result are
// opaque to the job store and coordinator; only the executor that owns
// Kind decodes them.
type Job struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Status    Status          `json:"status"`
	Message   string          `json:"message,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	TraceID   string          `json:"trace_id,omitempty"`
	SpanID    string          `json:"span_id,omitempty"`
}

// New builds a freshly queued job with a generated id.
func New(kind Kind, payload json.RawMessage, traceID, spanID string) Job {
	now := time.Now().UTC()
	return Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    StatusQueued,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
		TraceID:   traceID,
		SpanID:    spanID,
	}
}

func (j Job) Marshal() (string, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func Unmarshal(s string) (Job, error) {
	var j Job
	err := json.Unmarshal([]byte(s), &j)
	return j, err
}

// Envelope is the small message carried on the bus: enough to look the
// authoritative record up in the job store, never the payload itself.
type Envelope struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
}

func (e Envelope) Marshal() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func UnmarshalEnvelope(s string) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal([]byte(s), &e)
	return e, err
}

// UploadPayload is the upload-kind job payload written by the coordinator.
type UploadPayload struct {
	Project  string `json:"project"`
	Table    string `json:"table"`
	FileName string `json:"file_name"`
	FilePath string `json:"file_path"`
	FileSize int64  `json:"file_size"`
}

// UploadResult is the upload-kind job result written by the ingest executor.
type UploadResult struct {
	RowsAppended int64    `json:"rows_appended"`
	Columns      []string `json:"columns"`
}

// QueryPayload is the query-kind job payload: the structured spec plus
// the destination table.
type QueryPayload struct {
	Project string          `json:"project"`
	Table   string          `json:"table"`
	Spec    json.RawMessage `json:"spec"`
}

// QueryResult is the query-kind job result: where the full result blob
// landed, its row count and compressed size, and whether the inline
// preview was cut short.
type QueryResult struct {
	ResultPath    string `json:"result_path"`
	RowCount      int64  `json:"row_count"`
	Truncated     bool   `json:"truncated"`
	FileSizeBytes int64  `json:"file_size_bytes"`
}

// SchemaPayload is the schema-kind job payload.
type SchemaPayload struct {
	Project string `json:"project"`
	Table   string `json:"table"`
}

// SchemaResult is the schema-kind job result. ResultPath is always nil
// and FileSizeBytes always 0: schema retrieval reads metadata only, it
// never materializes a result blob.
type SchemaResult struct {
	Columns       []ColumnSchema `json:"columns"`
	ResultPath    *string        `json:"result_path"`
	FileSizeBytes int64          `json:"file_size_bytes"`
}

// ColumnType is the closed set of simple column types lakeforge infers
// and stores.
type ColumnType string

const (
	ColumnInteger  ColumnType = "integer"
	ColumnFloating ColumnType = "floating"
	ColumnBoolean  ColumnType = "boolean"
	ColumnDate     ColumnType = "date"
	ColumnString   ColumnType = "string"
)

// ColumnSchema describes one column of a table.
type ColumnSchema struct {
	Name     string     `json:"name"`
	Type     ColumnType `json:"type"`
	Nullable bool       `json:"nullable"`
}
