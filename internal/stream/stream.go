package stream

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// chunkSize keeps memory use O(chunk) regardless of file size.
const chunkSize = 4096

// Range is a resolved byte sub-range of a file of Total bytes.
type Range struct {
	Start  int64
	Length int64
	Total  int64
}

func (r Range) end() int64 { return r.Start + r.Length - 1 }

// ContentRange renders the Content-Range header value.
func (r Range) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.end(), r.Total)
}

// ParseRange parses a "bytes=<start>-<end?>" header against a file of
// the given size. ok is false for an absent, malformed, or unsatisfiable
// header; callers must then fall back to full-content behavior rather
// than failing the request.
func ParseRange(header string, size int64) (Range, bool) {
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, "bytes=") {
		return Range{}, false
	}
	spec := strings.TrimPrefix(header, "bytes=")
	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return Range{}, false
	}
	start, err := strconv.ParseInt(spec[:dash], 10, 64)
	if err != nil || start < 0 || start >= size {
		return Range{}, false
	}
	end := size - 1
	if rest := spec[dash+1:]; rest != "" {
		end, err = strconv.ParseInt(rest, 10, 64)
		if err != nil || end < start {
			return Range{}, false
		}
		if end >= size {
			end = size - 1
		}
	}
	return Range{Start: start, Length: end - start + 1, Total: size}, true
}

// ContentType infers a media type from the file extension alone; bytes
// are never sniffed. Falls back over a fixed table for systems with
// sparse mime databases.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return "application/octet-stream"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	case ".mkv":
		return "video/x-matroska"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	case ".pdf":
		return "application/pdf"
	case ".zip":
		return "application/zip"
	case ".txt", ".md", ".log":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// ServeFile streams the file at abs, honoring an optional Range header.
// A valid range yields 206 with Content-Range; anything else yields 200
// with the whole file. The copy stops after exactly the advertised
// length, stops early if the source runs dry, and aborts between chunks
// once ctx is done so a disconnected client releases the handle promptly.
// Returns the bytes written.
func ServeFile(ctx context.Context, w http.ResponseWriter, abs, rangeHeader string) (int64, error) {
	f, err := os.Open(abs)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if st.IsDir() {
		return 0, fmt.Errorf("%s: is a directory", abs)
	}
	size := st.Size()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", ContentType(st.Name()))

	rng, ok := ParseRange(rangeHeader, size)
	if !ok {
		rng = Range{Start: 0, Length: size, Total: size}
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
	} else {
		w.Header().Set("Content-Range", rng.ContentRange())
		w.Header().Set("Content-Length", strconv.FormatInt(rng.Length, 10))
		w.WriteHeader(http.StatusPartialContent)
	}

	if _, err := f.Seek(rng.Start, io.SeekStart); err != nil {
		return 0, err
	}
	return copyBounded(ctx, w, f, rng.Length)
}

// copyBounded copies up to length bytes in fixed chunks. A short read
// (truncated file) ends the stream without error.
func copyBounded(ctx context.Context, dst io.Writer, src io.Reader, length int64) (int64, error) {
	buf := make([]byte, chunkSize)
	var written int64
	for written < length {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		want := int64(len(buf))
		if remaining := length - written; remaining < want {
			want = remaining
		}
		n, err := src.Read(buf[:want])
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return written, err
		}
		if n == 0 {
			break
		}
	}
	return written, nil
}
