package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("alpha"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs", "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "b.txt"), []byte("beta"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "sub", "c.txt"), []byte("gamma"), 0o644))
	return root
}

func names(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		out = append(out, f.Name)
	}
	sort.Strings(out)
	return out
}

func TestBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("files under base name, directories recursive", func(t *testing.T) {
		root := seedRoot(t)
		res, err := Build(ctx, root, []string{"a.txt", "docs"})
		require.NoError(t, err)

		assert.Equal(t, []string{"a.txt", "docs/b.txt", "docs/sub/c.txt"}, names(t, res.Data))
		assert.EqualValues(t, len("alpha")+len("beta")+len("gamma"), res.TotalBytes)
		assert.Empty(t, res.Skipped)
	})

	t.Run("escaping and missing paths are skipped", func(t *testing.T) {
		root := seedRoot(t)
		res, err := Build(ctx, root, []string{"a.txt", "../../etc/passwd", "no-such.txt"})
		require.NoError(t, err)

		assert.Equal(t, []string{"a.txt"}, names(t, res.Data))
		assert.ElementsMatch(t, []string{"../../etc/passwd", "no-such.txt"}, res.Skipped)
	})

	t.Run("nothing archivable", func(t *testing.T) {
		root := seedRoot(t)
		_, err := Build(ctx, root, []string{"missing-1", "missing-2"})
		assert.ErrorIs(t, err, ErrEmpty)
	})

	t.Run("content round trips", func(t *testing.T) {
		root := seedRoot(t)
		res, err := Build(ctx, root, []string{"docs"})
		require.NoError(t, err)

		zr, err := zip.NewReader(bytes.NewReader(res.Data), int64(len(res.Data)))
		require.NoError(t, err)
		for _, f := range zr.File {
			if f.Name != "docs/b.txt" {
				continue
			}
			rc, err := f.Open()
			require.NoError(t, err)
			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			rc.Close()
			assert.Equal(t, "beta", string(got))
		}
	})

	t.Run("unreadable file inside a directory is skipped", func(t *testing.T) {
		root := seedRoot(t)
		locked := filepath.Join(root, "docs", "locked.txt")
		require.NoError(t, os.WriteFile(locked, []byte("secret"), 0o644))
		require.NoError(t, os.Chmod(locked, 0o000))
		if f, err := os.Open(locked); err == nil {
			f.Close()
			t.Skip("mode bits not enforced for this user")
		}

		res, err := Build(ctx, root, []string{"docs"})
		require.NoError(t, err)

		assert.Equal(t, []string{"docs/b.txt", "docs/sub/c.txt"}, names(t, res.Data))
		assert.Equal(t, []string{"docs/locked.txt"}, res.Skipped)
		assert.EqualValues(t, len("beta")+len("gamma"), res.TotalBytes)
	})

	t.Run("canceled context aborts", func(t *testing.T) {
		root := seedRoot(t)
		cctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Build(cctx, root, []string{"docs"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
