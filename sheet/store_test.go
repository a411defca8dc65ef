package sheet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVDirStoreRoundTrip(t *testing.T) {
	store := NewCSVDirStore(t.TempDir())

	values, err := store.GetValues("Broken")
	require.NoError(t, err)
	assert.Empty(t, values, "missing file reads as empty")

	in := [][]string{
		{"URL", "Title"},
		{"http://x/1", "One, with a comma"},
	}
	require.NoError(t, store.UpdateValues("Broken", in))

	values, err = store.GetValues("Broken")
	require.NoError(t, err)
	assert.Equal(t, in, values)
}

func TestCSVDirStoreToleratesRaggedRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "DutyRoster.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b,c\nd\n"), 0o644))

	store := NewCSVDirStore(dir)
	values, err := store.GetValues("DutyRoster")
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, []string{"a", "b", "c"}, values[0])
	assert.Equal(t, []string{"d"}, values[1])
}
