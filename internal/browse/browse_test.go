package browse

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gracedisk/internal/principal"
)

func newUser(t *testing.T, quotaBytes int64) principal.Principal {
	t.Helper()
	return principal.Principal{
		ID:         1,
		Username:   "alice",
		Role:       principal.RegisteredUser,
		Root:       t.TempDir(),
		QuotaBytes: quotaBytes,
	}
}

func TestListOrdering(t *testing.T) {
	p := newUser(t, 1<<30)
	require.NoError(t, os.WriteFile(filepath.Join(p.Root, "b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(p.Root, "A"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(p.Root, "a.txt"), []byte("a"), 0o644))

	v, err := List(p, "")
	require.NoError(t, err)
	require.Len(t, v.Entries, 3)

	// Directories first, then case-insensitive by name.
	assert.Equal(t, "A", v.Entries[0].Name)
	assert.True(t, v.Entries[0].IsDir)
	assert.Equal(t, "a.txt", v.Entries[1].Name)
	assert.Equal(t, "b.txt", v.Entries[2].Name)
}

func TestListBreadcrumbs(t *testing.T) {
	p := newUser(t, 1<<30)
	require.NoError(t, os.MkdirAll(filepath.Join(p.Root, "docs", "2024"), 0o755))

	v, err := List(p, "docs/2024")
	require.NoError(t, err)
	require.Len(t, v.Breadcrumbs, 3)
	assert.Equal(t, Breadcrumb{Name: "Home", Path: ""}, v.Breadcrumbs[0])
	assert.Equal(t, Breadcrumb{Name: "docs", Path: "docs"}, v.Breadcrumbs[1])
	assert.Equal(t, Breadcrumb{Name: "2024", Path: "docs/2024"}, v.Breadcrumbs[2])

	root, err := List(p, "")
	require.NoError(t, err)
	require.Len(t, root.Breadcrumbs, 1)
}

func TestListRejections(t *testing.T) {
	p := newUser(t, 1<<30)
	require.NoError(t, os.WriteFile(filepath.Join(p.Root, "file.txt"), []byte("x"), 0o644))

	for _, sub := range []string{"../../etc", "missing", "file.txt"} {
		_, err := List(p, sub)
		assert.ErrorIs(t, err, ErrNotFound, "subpath %q", sub)
	}
}

func TestStorageSnapshot(t *testing.T) {
	t.Run("quota view for registered users", func(t *testing.T) {
		p := newUser(t, 1000)
		require.NoError(t, os.WriteFile(filepath.Join(p.Root, "f"), make([]byte, 250), 0o644))

		v, err := List(p, "")
		require.NoError(t, err)
		assert.False(t, v.Storage.IsDisk)
		assert.EqualValues(t, 1000, v.Storage.TotalBytes)
		assert.EqualValues(t, 250, v.Storage.UsedBytes)
		assert.InDelta(t, 25.0, v.Storage.Percent, 0.01)
	})

	t.Run("zero quota reports zero percent", func(t *testing.T) {
		p := newUser(t, 0)
		v, err := List(p, "")
		require.NoError(t, err)
		assert.Zero(t, v.Storage.Percent)
	})

	t.Run("disk view for administrators", func(t *testing.T) {
		p := newUser(t, 0)
		p.Role = principal.Administrator
		v, err := List(p, "")
		require.NoError(t, err)
		assert.True(t, v.Storage.IsDisk)
		assert.Positive(t, v.Storage.TotalBytes)
	})
}
