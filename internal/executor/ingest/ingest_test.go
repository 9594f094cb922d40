package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lakeforge/lakeforge/internal/apperrors"
)

func TestRunRejectsInvalidPayload(t *testing.T) {
	e := &Executor{}
	_, _, err := e.Run(context.Background(), json.RawMessage(`not json`))
	require.Error(t, err)
	require.True(t, apperrors.IsInvalidInput(err))
}
