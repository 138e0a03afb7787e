package httpserver

import (
	"bytes"
	"image"
	"image/jpeg"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	defaultThumbEdge = 256
	maxThumbEdge     = 1024
)

// handleThumb renders a JPEG preview of an image file. Thumbnails are
// generated per request; browsers cache them via Cache-Control.
func (s *Server) handleThumb(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	p, ok := s.principalOr401(w, r)
	if !ok {
		return
	}
	cp, _, err := s.resolveFile(p.Root, r.URL.Query().Get("path"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if !thumbableExt(strings.ToLower(filepath.Ext(cp.Abs))) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	edge := defaultThumbEdge
	if v := r.URL.Query().Get("size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxThumbEdge {
			edge = n
		}
	}

	b, err := renderThumb(cp.Abs, edge)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(b)
}

func thumbableExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	}
	return false
}

// renderThumb downscales the image so its longer edge is at most edge
// pixels, preserving aspect ratio. Images already small enough are
// re-encoded as-is.
func renderThumb(abs string, edge int) ([]byte, error) {
	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil, os.ErrInvalid
	}

	nw, nh := w, h
	if w >= h && w > edge {
		nw, nh = edge, max(1, h*edge/w)
	} else if h > w && h > edge {
		nw, nh = max(1, w*edge/h), edge
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: 80}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
