package stream

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T, size int) string {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseRange(t *testing.T) {
	t.Run("start and end", func(t *testing.T) {
		rng, ok := ParseRange("bytes=10-19", 100)
		if !ok {
			t.Fatal("ParseRange() not ok")
		}
		if rng.Start != 10 || rng.Length != 10 {
			t.Errorf("got start=%d length=%d, want 10/10", rng.Start, rng.Length)
		}
		if rng.ContentRange() != "bytes 10-19/100" {
			t.Errorf("ContentRange() = %q", rng.ContentRange())
		}
	})

	t.Run("open end covers rest of file", func(t *testing.T) {
		rng, ok := ParseRange("bytes=40-", 100)
		if !ok {
			t.Fatal("ParseRange() not ok")
		}
		if rng.Start != 40 || rng.Length != 60 {
			t.Errorf("got start=%d length=%d, want 40/60", rng.Start, rng.Length)
		}
	})

	t.Run("malformed headers rejected", func(t *testing.T) {
		for _, h := range []string{"", "bytes=abc", "bytes=-5", "bytes=5", "chunks=1-2", "bytes=200-300"} {
			if _, ok := ParseRange(h, 100); ok {
				t.Errorf("ParseRange(%q) ok, want fallback", h)
			}
		}
	})

	t.Run("end clamped to file size", func(t *testing.T) {
		rng, ok := ParseRange("bytes=90-500", 100)
		if !ok {
			t.Fatal("ParseRange() not ok")
		}
		if rng.Length != 10 {
			t.Errorf("Length = %d, want 10", rng.Length)
		}
	})
}

func TestServeFile(t *testing.T) {
	path := writeTestFile(t, 100)
	full, _ := os.ReadFile(path)

	t.Run("ranged request yields exact window", func(t *testing.T) {
		rec := httptest.NewRecorder()
		n, err := ServeFile(context.Background(), rec, path, "bytes=10-19")
		if err != nil {
			t.Fatalf("ServeFile() error = %v", err)
		}
		if n != 10 {
			t.Errorf("wrote %d bytes, want 10", n)
		}
		if rec.Code != 206 {
			t.Errorf("status = %d, want 206", rec.Code)
		}
		if got := rec.Header().Get("Content-Range"); got != "bytes 10-19/100" {
			t.Errorf("Content-Range = %q", got)
		}
		if got := rec.Header().Get("Content-Length"); got != "10" {
			t.Errorf("Content-Length = %q", got)
		}
		if !bytes.Equal(rec.Body.Bytes(), full[10:20]) {
			t.Error("body is not bytes 10..19 of the file")
		}
	})

	t.Run("no header yields full content", func(t *testing.T) {
		rec := httptest.NewRecorder()
		n, err := ServeFile(context.Background(), rec, path, "")
		if err != nil {
			t.Fatalf("ServeFile() error = %v", err)
		}
		if n != 100 || rec.Code != 200 {
			t.Errorf("wrote %d bytes status %d, want 100/200", n, rec.Code)
		}
		if !bytes.Equal(rec.Body.Bytes(), full) {
			t.Error("body differs from file")
		}
	})

	t.Run("malformed header falls back to full content", func(t *testing.T) {
		rec := httptest.NewRecorder()
		n, err := ServeFile(context.Background(), rec, path, "bytes=abc")
		if err != nil {
			t.Fatalf("ServeFile() error = %v", err)
		}
		if n != 100 || rec.Code != 200 {
			t.Errorf("wrote %d bytes status %d, want 100/200", n, rec.Code)
		}
	})

	t.Run("canceled context stops the stream", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		rec := httptest.NewRecorder()
		if _, err := ServeFile(ctx, rec, path, ""); err == nil {
			t.Error("ServeFile() = nil error with canceled context")
		}
	})
}

func TestContentType(t *testing.T) {
	if got := ContentType("movie.mp4"); got != "video/mp4" {
		t.Errorf("ContentType(movie.mp4) = %q", got)
	}
	if got := ContentType("noext"); got != "application/octet-stream" {
		t.Errorf("ContentType(noext) = %q", got)
	}
}
