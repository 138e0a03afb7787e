package fsutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCleanRelPath(t *testing.T) {
	cases := map[string]string{
		"":               "",
		".":              "",
		"/":              "",
		"a/b":            "a/b",
		"/a/b":           "a/b",
		"a//b":           "a/b",
		"../../etc":      "etc",
		"..\\..\\x":      "x",
		"a/../../secret": "secret",
		" a/b ":          "a/b",
	}
	for in, want := range cases {
		if got := CleanRelPath(in); got != want {
			t.Errorf("CleanRelPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConfine(t *testing.T) {
	root := t.TempDir()

	t.Run("adversarial inputs stay inside", func(t *testing.T) {
		inputs := []string{
			"../../etc/passwd",
			"..\\..\\x",
			"/etc/passwd",
			"a/../../../../tmp",
			"....//....//x",
		}
		for _, in := range inputs {
			cp, err := Confine(root, in)
			if err != nil {
				continue // rejection is always acceptable
			}
			if !strings.HasPrefix(cp.Abs, canonicalize(root)) {
				t.Errorf("Confine(%q) escaped: %q", in, cp.Abs)
			}
		}
	})

	t.Run("root itself", func(t *testing.T) {
		cp, err := Confine(root, "")
		if err != nil {
			t.Fatalf("Confine() error = %v", err)
		}
		if cp.Abs != cp.Root {
			t.Errorf("Abs = %q, want root %q", cp.Abs, cp.Root)
		}
		if cp.Rel() != "" {
			t.Errorf("Rel() = %q, want empty", cp.Rel())
		}
	})

	t.Run("nonexistent create target resolves under root", func(t *testing.T) {
		cp, err := Confine(root, "new/dir/file.txt")
		if err != nil {
			t.Fatalf("Confine() error = %v", err)
		}
		want := filepath.Join(cp.Root, "new", "dir", "file.txt")
		if cp.Abs != want {
			t.Errorf("Abs = %q, want %q", cp.Abs, want)
		}
	})

	t.Run("nul byte rejected", func(t *testing.T) {
		if _, err := Confine(root, "a\x00b"); err == nil {
			t.Error("Confine() accepted NUL byte")
		}
	})

	t.Run("symlink pointing outside is rejected", func(t *testing.T) {
		outside := t.TempDir()
		if err := os.WriteFile(filepath.Join(outside, "secret"), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		link := filepath.Join(root, "escape")
		if err := os.Symlink(outside, link); err != nil {
			t.Skipf("symlinks unavailable: %v", err)
		}
		if _, err := Confine(root, "escape/secret"); err == nil {
			t.Error("Confine() followed a symlink out of root")
		}
	})

	t.Run("symlink staying inside is allowed", func(t *testing.T) {
		target := filepath.Join(root, "real")
		if err := os.MkdirAll(target, 0o755); err != nil {
			t.Fatal(err)
		}
		link := filepath.Join(root, "alias")
		if err := os.Symlink(target, link); err != nil {
			t.Skipf("symlinks unavailable: %v", err)
		}
		cp, err := Confine(root, "alias")
		if err != nil {
			t.Fatalf("Confine() error = %v", err)
		}
		if cp.Abs != canonicalize(target) {
			t.Errorf("Abs = %q, want %q", cp.Abs, canonicalize(target))
		}
	})
}

func TestNormalizeRootBareDrive(t *testing.T) {
	got := NormalizeRoot("C:")
	if got == "C:" {
		t.Errorf("NormalizeRoot(%q) left a bare drive root", "C:")
	}
	if !strings.HasPrefix(got, "C:") || len(got) != 3 {
		t.Errorf("NormalizeRoot(%q) = %q, want drive plus separator", "C:", got)
	}
}
