package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskLocator(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "grade4-maths.pdf"), []byte("pdf"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "subdir"), 0o755))

	locator := NewDiskLocator(root)

	t.Run("resolves existing file", func(t *testing.T) {
		path, err := locator.PathFor("grade4-maths.pdf")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "grade4-maths.pdf"), path)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := locator.PathFor("nope.pdf")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("directory is not a file", func(t *testing.T) {
		_, err := locator.PathFor("subdir")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("rejects path escapes", func(t *testing.T) {
		for _, name := range []string{"", "../secret.pdf", "a/b.pdf"} {
			_, err := locator.PathFor(name)
			assert.ErrorIs(t, err, ErrNotFound, "name %q", name)
		}
	})
}
