package coordinator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func TestRequestIDMiddlewareGeneratesAndEchoes(t *testing.T) {
	var seenID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = requestIDFrom(r.Context())
	})
	h := requestIDMiddleware(next)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.NotEmpty(t, seenID)
	require.Equal(t, seenID, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDMiddlewareHonorsIncomingHeader(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := requestIDMiddleware(next)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, "fixed-id", rec.Header().Get("X-Request-ID"))
}

func TestRecoveryMiddlewareConvertsPanicTo500(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	h := recoveryMiddleware(next, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRateLimitMiddlewareRejectsOverBudget(t *testing.T) {
	limiter := rate.NewLimiter(0, 1) // one token, never refills
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := rateLimitMiddleware(next, limiter)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)

	rec1 := httptest.NewRecorder()
	h.ServeHTTP(rec1, req)
	require.Equal(t, http.StatusOK, rec1.Code)

	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req)
	require.Equal(t, http.StatusTooManyRequests, rec2.Code)
}

func TestAuditMiddlewareSkipsGetAndRecordsWrites(t *testing.T) {
	logged := &syncBuffer{}
	audit := &AuditLogger{w: logged}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	h := auditMiddleware(next, audit)

	getReq := httptest.NewRequest(http.MethodGet, "/x", nil)
	h.ServeHTTP(httptest.NewRecorder(), getReq)
	require.Empty(t, logged.String())

	postReq := httptest.NewRequest(http.MethodPost, "/x", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postReq)
	require.Equal(t, http.StatusCreated, rec.Code)

	var entry AuditEntry
	require.NoError(t, json.Unmarshal([]byte(logged.String()), &entry))
	require.Equal(t, http.MethodPost, entry.Method)
	require.Equal(t, http.StatusCreated, entry.Status)
}

func TestStatusRecorderCapturesWriteHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}
	sr.WriteHeader(http.StatusTeapot)
	require.Equal(t, http.StatusTeapot, sr.status)
	require.Equal(t, http.StatusTeapot, rec.Code)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestContextRequestIDRoundTrip(t *testing.T) {
	ctx := withRequestID(context.Background(), "req-123")
	require.Equal(t, "req-123", requestIDFrom(ctx))
}

func TestContextRequestIDMissing(t *testing.T) {
	require.Equal(t, "", requestIDFrom(context.Background()))
}
