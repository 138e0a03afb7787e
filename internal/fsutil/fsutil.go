package fsutil

import (
	"errors"
	"path"
	"path/filepath"
	"strings"
)

// ErrEscape is returned when a resolved path would land outside its root.
// Callers must surface it exactly like a missing path; probing requests
// must not learn whether the target exists.
var ErrEscape = errors.New("path escapes root")

// ConfinedPath is a validated absolute location together with the root it
// was confined to. Construct one per request via Confine; never cache it.
type ConfinedPath struct {
	Root string
	Abs  string
}

// Rel returns the slash-separated path relative to the root ("" for the
// root itself).
func (c ConfinedPath) Rel() string {
	if c.Abs == c.Root {
		return ""
	}
	rel, err := filepath.Rel(c.Root, c.Abs)
	if err != nil {
		return ""
	}
	return filepath.ToSlash(rel)
}

// CleanRelPath takes a user path like "", ".", "/a/b", "a//b", "..\\x" and
// returns a safe, slash-based, no-leading-slash relative path ("" means
// root). Absolute markers and parent traversals are collapsed without
// touching the filesystem.
func CleanRelPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "." || p == "/" {
		return ""
	}
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p) // force absolute for stable cleaning
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		return ""
	}
	return p
}

// NormalizeRoot cleans a configured root and pins down the bare-drive
// case: "C:" must become "C:"+separator before any prefix comparison,
// otherwise "C:evil" would pass as inside "C:".
func NormalizeRoot(root string) string {
	root = filepath.Clean(root)
	if len(root) == 2 && root[1] == ':' {
		root += string(filepath.Separator)
	}
	return root
}

// Confine maps a caller-supplied path onto rootAbs and proves the result
// cannot leave it. The user path is normalized syntactically, joined onto
// the root, canonicalized (symlinks resolved for the part of the path
// that exists, so create targets work), and finally prefix-checked
// against the canonical root.
func Confine(rootAbs, userPath string) (ConfinedPath, error) {
	rel := CleanRelPath(userPath)
	if strings.Contains(rel, "\x00") {
		return ConfinedPath{}, ErrEscape
	}

	root := canonicalize(NormalizeRoot(rootAbs))
	abs := root
	if rel != "" {
		abs = canonicalize(filepath.Join(root, filepath.FromSlash(rel)))
	}

	if !within(root, abs) {
		return ConfinedPath{}, ErrEscape
	}
	return ConfinedPath{Root: root, Abs: abs}, nil
}

// within reports whether abs equals root or sits strictly under it.
func within(root, abs string) bool {
	if abs == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(abs, prefix)
}

// canonicalize resolves symlinks for the longest existing ancestor of p
// and re-appends the untouched remainder. A fully nonexistent path comes
// back cleaned but otherwise as-is.
func canonicalize(p string) string {
	p = filepath.Clean(p)
	var tail []string
	cur := p
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p
		}
		tail = append(tail, filepath.Base(cur))
		cur = parent
	}
}
