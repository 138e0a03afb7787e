// Package archive builds zip bundles for multi-select downloads.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gracedisk/internal/fsutil"
)

// ErrEmpty means no requested path produced any archive content.
var ErrEmpty = errors.New("nothing to archive")

// errUnreadable marks a source file that could not be opened. Nothing
// has been written to the archive yet, so the entry is safely skippable.
var errUnreadable = errors.New("unreadable file")

// Result is a finished bundle. Skipped lists requested paths that were
// left out, with no distinction between escaping and missing entries.
type Result struct {
	Data       []byte
	TotalBytes int64
	Skipped    []string
}

// Build assembles a zip from the given paths, resolved against root.
// Files land under their base name; directories are walked recursively
// and their contents stored relative to the directory's parent, so the
// directory name itself is the top-level prefix. Paths that escape the
// root or no longer exist are skipped, not fatal. The archive is built
// in memory; callers bound concurrency and request size upstream.
func Build(ctx context.Context, root string, paths []string) (*Result, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	res := &Result{}
	added := 0
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cp, err := fsutil.Confine(root, p)
		if err != nil {
			res.Skipped = append(res.Skipped, p)
			continue
		}
		st, err := os.Stat(cp.Abs)
		if err != nil {
			res.Skipped = append(res.Skipped, p)
			continue
		}
		if st.IsDir() {
			n, err := addTree(ctx, zw, cp.Abs, filepath.Base(cp.Abs), res)
			if err != nil {
				return nil, err
			}
			added += n
			continue
		}
		if err := addFile(zw, cp.Abs, filepath.Base(cp.Abs), st.ModTime(), res); err != nil {
			res.Skipped = append(res.Skipped, p)
			continue
		}
		added++
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	if added == 0 {
		return nil, ErrEmpty
	}
	res.Data = buf.Bytes()
	return res, nil
}

// addTree walks a directory and stores every regular file under prefix.
// Unreadable entries are skipped silently; only context cancellation and
// writer errors abort the walk.
func addTree(ctx context.Context, zw *zip.Writer, baseAbs, prefix string, res *Result) (int, error) {
	added := 0
	err := filepath.WalkDir(baseAbs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(baseAbs, p)
		if err != nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		name := filepath.ToSlash(filepath.Join(prefix, rel))
		if err := addFile(zw, p, name, info.ModTime(), res); err != nil {
			if errors.Is(err, errUnreadable) {
				res.Skipped = append(res.Skipped, name)
				return nil
			}
			return err
		}
		added++
		return nil
	})
	return added, err
}

func addFile(zw *zip.Writer, abs, name string, mod time.Time, res *Result) error {
	f, err := os.Open(abs)
	if err != nil {
		return errUnreadable
	}
	defer f.Close()

	wr, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: mod,
	})
	if err != nil {
		return err
	}
	n, err := io.Copy(wr, f)
	if err != nil {
		return err
	}
	res.TotalBytes += n
	return nil
}
