package bulkloader

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchesIncludeExclude(t *testing.T) {
	l := &Loader{cfg: Config{
		IncludeGlobs: []string{"**/*.csv"},
		ExcludeGlobs: []string{"**/tmp/**"},
	}}

	require.True(t, l.matches("data/p1.csv"))
	require.False(t, l.matches("data/p1.json"))
	require.False(t, l.matches("data/tmp/p1.csv"))
}

func TestMatchesNoIncludeMeansAll(t *testing.T) {
	l := &Loader{cfg: Config{}}
	require.True(t, l.matches("anything.txt"))
}

func TestContentTypeForExt(t *testing.T) {
	require.Equal(t, "text/csv", contentTypeForExt(".csv"))
	require.Equal(t, "application/x-ndjson", contentTypeForExt(".JSON"))
	require.Equal(t, "application/octet-stream", contentTypeForExt(".bin"))
}
