// Package upload persists incoming files under a principal's root with
// quota enforcement and conflict-free naming.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gracedisk/internal/fsutil"
	"gracedisk/internal/principal"
	"gracedisk/internal/quota"
)

var (
	ErrForbidden   = errors.New("not allowed")
	ErrNotFound    = errors.New("destination not found")
	ErrBadFilename = errors.New("invalid filename")
)

// forbiddenRunes are rejected anywhere in an uploaded filename. A slash
// in a filename would smuggle path structure past the destination check.
const forbiddenRunes = `/\:*?"<>|`

// Saved describes a completed upload. Name and RelPath reflect any
// conflict renaming that happened.
type Saved struct {
	Name    string
	RelPath string
	Size    int64
}

// SanitizeFilename validates a client-supplied filename. Empty names,
// dot names, and names containing path or shell-hostile characters are
// rejected outright rather than rewritten.
func SanitizeFilename(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "", ErrBadFilename
	}
	if strings.ContainsAny(name, forbiddenRunes) || strings.ContainsRune(name, 0) {
		return "", ErrBadFilename
	}
	return name, nil
}

// Saver writes uploads into principal roots.
type Saver struct{}

func New() *Saver { return &Saver{} }

// Save streams r into destDir under the principal's root. When the name
// is taken, "name.ext" becomes "name(1).ext", "name(2).ext" and so on.
// Registered users are checked against their quota before any bytes are
// written; the check races with concurrent writers and is best effort.
// Content is staged in a temp file in the destination directory and
// renamed into place, so a failed upload never leaves a partial file
// under the final name.
func (s *Saver) Save(ctx context.Context, p principal.Principal, destDir, filename string, size int64, r io.Reader) (*Saved, error) {
	if !p.CanUpload() {
		return nil, ErrForbidden
	}
	name, err := SanitizeFilename(filename)
	if err != nil {
		return nil, err
	}
	cp, err := fsutil.Confine(p.Root, destDir)
	if err != nil {
		return nil, ErrNotFound
	}
	st, err := os.Stat(cp.Abs)
	if err != nil || !st.IsDir() {
		return nil, ErrNotFound
	}

	if p.Quotaed() {
		if err := quota.CheckAndReserve(p.Root, p.QuotaBytes, size); err != nil {
			return nil, err
		}
	}

	name = availableName(cp.Abs, name)
	finalAbs := filepath.Join(cp.Abs, name)

	tmp, err := os.CreateTemp(cp.Abs, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("staging upload: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	written, err := copyCancelable(ctx, tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("writing upload: %w", err)
	}
	if err := os.Rename(tmpPath, finalAbs); err != nil {
		return nil, fmt.Errorf("placing upload: %w", err)
	}

	rel := name
	if base := cp.Rel(); base != "" {
		rel = base + "/" + name
	}
	return &Saved{Name: name, RelPath: rel, Size: written}, nil
}

// availableName returns name itself when free, otherwise the first
// "base(i).ext" that does not exist yet.
func availableName(dirAbs, name string) string {
	if _, err := os.Lstat(filepath.Join(dirAbs, name)); err != nil {
		return name
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s(%d)%s", base, i, ext)
		if _, err := os.Lstat(filepath.Join(dirAbs, candidate)); err != nil {
			return candidate
		}
	}
}

func copyCancelable(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var written int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			wn, werr := dst.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, werr
			}
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}
