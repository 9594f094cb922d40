package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/lakeforge/lakeforge/internal/apperrors"
	"github.com/lakeforge/lakeforge/internal/job"
	"github.com/lakeforge/lakeforge/internal/objectstore"
	"github.com/lakeforge/lakeforge/internal/obs"
	"github.com/lakeforge/lakeforge/internal/queryspec"
)

const statusTimestampLayout = "2006-01-02T15:04:05"

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(s.cfg.FileMaxSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "could not parse multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "missing file field")
		return
	}
	defer file.Close()

	if header.Size > s.cfg.FileMaxSize {
		writeError(w, http.StatusBadRequest, "invalid_input", fmt.Sprintf("file exceeds maximum size of %d bytes", s.cfg.FileMaxSize))
		return
	}

	project := r.FormValue("project")
	table := r.FormValue("table")
	if project == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "project is required")
		return
	}
	if table == "" {
		table = header.Filename
	}

	j := job.New(job.KindUpload, nil, "", "")

	uploadKey := objectstore.UploadKey(j.ID, header.Filename)
	if err := s.objects.Put(ctx, s.cfg.UploadsBucket, uploadKey, file, header.Header.Get("Content-Type")); err != nil {
		s.log.Error("upload blob write failed", zap.Error(err))
		writeAppError(w, err)
		return
	}

	payload, _ := json.Marshal(job.UploadPayload{
		Project:  project,
		Table:    table,
		FileName: header.Filename,
		FilePath: uploadKey,
		FileSize: header.Size,
	})
	j.Payload = payload

	if err := s.store.Create(ctx, j); err != nil {
		s.log.Error("job store create failed", zap.Error(err))
		writeAppError(w, err)
		return
	}

	if err := s.enqueue(ctx, j); err != nil {
		s.log.Error("enqueue failed after job create", zap.String("id", j.ID), zap.Error(err))
		_ = s.store.Fail(ctx, j.ID, "bus_error")
		writeError(w, http.StatusInternalServerError, "bus_error", "failed to enqueue job")
		return
	}

	obs.JobsSubmitted.WithLabelValues(string(job.KindUpload)).Inc()
	writeJSON(w, http.StatusAccepted, map[string]string{"id": j.ID, "status": string(job.StatusQueued)})
}

// enqueue publishes the job's bus envelope. The coordinator never writes
// the job's status past queued itself; the dispatcher owns every state
// transition after that.
func (s *Server) enqueue(ctx context.Context, j job.Job) error {
	envelope, err := job.Envelope{ID: j.ID, Kind: j.Kind}.Marshal()
	if err != nil {
		return apperrors.WrapExecution(err)
	}
	return s.bus.Publish(ctx, envelope)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	j, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobView(j))
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var body struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "malformed body")
		return
	}

	newStatus := job.Status(body.Status)
	switch newStatus {
	case job.StatusQueued, job.StatusProcessing, job.StatusCompleted, job.StatusFailed:
	default:
		writeError(w, http.StatusBadRequest, "invalid_input", "unknown status: "+body.Status)
		return
	}

	err := s.store.Update(r.Context(), id, func(j job.Job) (job.Job, error) {
		if !job.CanTransition(j.Status, newStatus) {
			return j, apperrors.InvalidInput(fmt.Sprintf("illegal transition from %s to %s", j.Status, newStatus))
		}
		j.Status = newStatus
		j.Message = body.Message
		j.UpdatedAt = time.Now().UTC()
		return j, nil
	})
	if err != nil {
		if apperrors.IsInvalidInput(err) {
			writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
			return
		}
		// An update against an unknown job id is treated as an idempotent
		// no-op rather than an error, since the only callers are workers
		// racing a TTL expiry.
		if apperrors.IsNotFound(err) {
			writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": body.Status})
			return
		}
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": body.Status})
}

func (s *Server) handleSubmitQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		Project string          `json:"project"`
		Table   string          `json:"table"`
		Spec    json.RawMessage `json:"spec"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "malformed body")
		return
	}
	if body.Project == "" || body.Table == "" || len(body.Spec) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_input", "project, table and spec are required")
		return
	}
	if err := queryspec.Validate(body.Spec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	payload, _ := json.Marshal(job.QueryPayload{Project: body.Project, Table: body.Table, Spec: body.Spec})
	j := job.New(job.KindQuery, payload, "", "")

	if err := s.store.Create(ctx, j); err != nil {
		writeAppError(w, err)
		return
	}
	if err := s.enqueue(ctx, j); err != nil {
		_ = s.store.Fail(ctx, j.ID, "bus_error")
		writeError(w, http.StatusInternalServerError, "bus_error", "failed to enqueue job")
		return
	}

	obs.JobsSubmitted.WithLabelValues(string(job.KindQuery)).Inc()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":              j.ID,
		"status":          string(job.StatusQueued),
		"check_status_at": fmt.Sprintf("/api/v1/query/%s", j.ID),
	})
}

func (s *Server) handleGetQuery(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	j, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobView(j))
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	project, table := vars["project"], vars["table"]

	payload, _ := json.Marshal(job.SchemaPayload{Project: project, Table: table})
	j := job.New(job.KindSchema, payload, "", "")

	if err := s.store.Create(ctx, j); err != nil {
		writeAppError(w, err)
		return
	}
	if err := s.enqueue(ctx, j); err != nil {
		_ = s.store.Fail(ctx, j.ID, "bus_error")
		writeError(w, http.StatusInternalServerError, "bus_error", "failed to enqueue job")
		return
	}

	obs.JobsSubmitted.WithLabelValues(string(job.KindSchema)).Inc()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":              j.ID,
		"status":          string(job.StatusQueued),
		"check_status_at": fmt.Sprintf("/api/v1/jobs/%s", j.ID),
	})
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.bus.Stats(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queue_name":      "lakeforge:jobs",
		"message_count":   stats.QueueDepth,
		"consumer_count":  stats.InFlight,
		"dead_letter_count": stats.DeadLetterSize,
		"status":          "ok",
	})
}

func jobView(j job.Job) map[string]any {
	view := map[string]any{
		"id":         j.ID,
		"kind":       j.Kind,
		"status":     j.Status,
		"created_at": j.CreatedAt.Format(statusTimestampLayout),
		"updated_at": j.UpdatedAt.Format(statusTimestampLayout),
	}
	if j.Message != "" {
		view["message"] = j.Message
	}
	if len(j.Result) > 0 {
		var result map[string]any
		if err := json.Unmarshal(j.Result, &result); err == nil {
			for k, v := range result {
				view[k] = v
			}
		}
	}
	return view
}
