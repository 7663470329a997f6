package descfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite_CreatesDescriptionFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stream.description")

	require.NoError(t, Write(path, "a live broadcast\nwith two lines"))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a live broadcast\nwith two lines", string(body))
}

func TestWrite_OverwritesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stream.description")

	require.NoError(t, Write(path, "first"))
	require.NoError(t, Write(path, "second"))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(body))
}
