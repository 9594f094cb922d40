package apperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCategoryPredicates(t *testing.T) {
	require.True(t, IsInvalidInput(InvalidInput("bad")))
	require.True(t, IsNotFound(NotFound("missing")))
	require.True(t, IsTransient(Transient("flaky")))
	require.True(t, IsTimeout(Timeout("slow")))
	require.True(t, IsExecution(Execution("broken")))
}

func TestWrapPreservesUnderlyingError(t *testing.T) {
	base := errors.New("disk full")
	wrapped := WrapTransient(base)
	require.True(t, IsTransient(wrapped))
	require.Contains(t, wrapped.Error(), "disk full")
}

func TestRetryable(t *testing.T) {
	require.True(t, Retryable(Transient("x")))
	require.True(t, Retryable(Timeout("x")))
	require.False(t, Retryable(Execution("x")))
	require.False(t, Retryable(InvalidInput("x")))
	require.False(t, Retryable(NotFound("x")))
}
