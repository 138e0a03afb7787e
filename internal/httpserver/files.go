package httpserver

import (
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gracedisk/internal/archive"
	"gracedisk/internal/browse"
	"gracedisk/internal/fsutil"
	"gracedisk/internal/store"
	"gracedisk/internal/stream"
	"gracedisk/internal/upload"
)

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	p, ok := s.principalOr401(w, r)
	if !ok {
		return
	}
	view, err := browse.List(p, r.URL.Query().Get("path"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleDownload forces an attachment and records the download. Full
// streams count against the heavy-worker limit.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	p, ok := s.principalOr401(w, r)
	if !ok {
		return
	}
	cp, st, err := s.resolveFile(p.Root, pathSuffix(r, "/download/"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if err := s.heavy.Acquire(r.Context(), 1); err != nil {
		writeError(w, http.StatusServiceUnavailable, "server busy")
		return
	}
	defer s.heavy.Release(1)

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(cp.Abs)))
	n, err := stream.ServeFile(r.Context(), w, cp.Abs, r.Header.Get("Range"))
	s.recordOp(r, p.ID, store.OpDownload, cp.Rel(), st.Size(), err)
	if err != nil {
		s.log.Debug("download aborted", "path", cp.Rel(), "sent", n, "error", err)
	}
}

// handleFileData streams file content inline for media playback. Range
// requests get partial content; malformed ranges fall back to the full
// body.
func (s *Server) handleFileData(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	p, ok := s.principalOr401(w, r)
	if !ok {
		return
	}
	cp, _, err := s.resolveFile(p.Root, pathSuffix(r, "/filedata/"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if _, err := stream.ServeFile(r.Context(), w, cp.Abs, r.Header.Get("Range")); err != nil {
		s.log.Debug("stream aborted", "path", cp.Rel(), "error", err)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	p, ok := s.principalOr401(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "bad multipart body")
		return
	}
	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	fh := files[0]

	src, err := fh.Open()
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable upload")
		return
	}
	defer src.Close()

	saved, err := s.saver.Save(r.Context(), p, r.FormValue("path"), fh.Filename, fh.Size, src)
	s.recordOp(r, p.ID, store.OpUpload, fh.Filename, fh.Size, err)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"name":    saved.Name,
		"path":    saved.RelPath,
		"size":    saved.Size,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	p, ok := s.principalOr401(w, r)
	if !ok {
		return
	}
	if !p.CanDelete() {
		writeError(w, http.StatusForbidden, "not allowed")
		return
	}
	var req struct {
		Path string `json:"path"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if err := s.deleteOne(p.Root, req.Path); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleBatchDelete deletes what it can and reports the rest. A partial
// failure is still a 200 with per-path errors.
func (s *Server) handleBatchDelete(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	p, ok := s.principalOr401(w, r)
	if !ok {
		return
	}
	if !p.CanDelete() {
		writeError(w, http.StatusForbidden, "not allowed")
		return
	}
	var req struct {
		Paths []string `json:"paths"`
	}
	if err := decodeJSON(r, &req); err != nil || len(req.Paths) == 0 {
		writeError(w, http.StatusBadRequest, "missing paths")
		return
	}

	deleted := 0
	type itemError struct {
		Path  string `json:"path"`
		Error string `json:"error"`
	}
	errs := make([]itemError, 0)
	for _, path := range req.Paths {
		if err := s.deleteOne(p.Root, path); err != nil {
			errs = append(errs, itemError{Path: path, Error: "not found"})
			continue
		}
		deleted++
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": len(errs) == 0,
		"deleted": deleted,
		"errors":  errs,
	})
}

func (s *Server) deleteOne(root, path string) error {
	cp, err := fsutil.Confine(root, path)
	if err != nil {
		return browse.ErrNotFound
	}
	if cp.Rel() == "" {
		// The root itself is not deletable.
		return browse.ErrNotFound
	}
	if _, err := os.Lstat(cp.Abs); err != nil {
		return browse.ErrNotFound
	}
	return os.RemoveAll(cp.Abs)
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	p, ok := s.principalOr401(w, r)
	if !ok {
		return
	}
	if !p.CanRename() {
		writeError(w, http.StatusForbidden, "not allowed")
		return
	}
	var req struct {
		Path    string `json:"path"`
		NewName string `json:"new_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	name, err := upload.SanitizeFilename(req.NewName)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	cp, err := fsutil.Confine(p.Root, req.Path)
	if err != nil {
		s.writeDomainError(w, browse.ErrNotFound)
		return
	}
	if cp.Rel() == "" {
		// The root itself has no parent inside the confinement; renaming
		// it would move the whole tree out.
		s.writeDomainError(w, browse.ErrNotFound)
		return
	}
	if _, err := os.Lstat(cp.Abs); err != nil {
		s.writeDomainError(w, browse.ErrNotFound)
		return
	}
	dstRel := path.Join(path.Dir(cp.Rel()), name)
	dstCP, err := fsutil.Confine(p.Root, dstRel)
	if err != nil || dstCP.Rel() == "" {
		s.writeDomainError(w, browse.ErrNotFound)
		return
	}
	dst := dstCP.Abs
	if _, err := os.Lstat(dst); err == nil {
		writeError(w, http.StatusConflict, "name already taken")
		return
	}
	if err := os.Rename(cp.Abs, dst); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "name": name})
}

func (s *Server) handleMkdir(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	p, ok := s.principalOr401(w, r)
	if !ok {
		return
	}
	if !p.CanCreateFolder() {
		writeError(w, http.StatusForbidden, "not allowed")
		return
	}
	var req struct {
		Path string `json:"path"`
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	name, err := upload.SanitizeFilename(req.Name)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	cp, err := fsutil.Confine(p.Root, req.Path)
	if err != nil {
		s.writeDomainError(w, browse.ErrNotFound)
		return
	}
	if st, err := os.Stat(cp.Abs); err != nil || !st.IsDir() {
		s.writeDomainError(w, browse.ErrNotFound)
		return
	}
	if err := os.Mkdir(filepath.Join(cp.Abs, name), 0o755); err != nil {
		if os.IsExist(err) {
			writeError(w, http.StatusConflict, "name already taken")
			return
		}
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleZip bundles the requested paths into a single archive download.
func (s *Server) handleZip(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	p, ok := s.principalOr401(w, r)
	if !ok {
		return
	}
	var req struct {
		Paths []string `json:"paths"`
		Name  string   `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil || len(req.Paths) == 0 {
		writeError(w, http.StatusBadRequest, "missing paths")
		return
	}

	if err := s.heavy.Acquire(r.Context(), 1); err != nil {
		writeError(w, http.StatusServiceUnavailable, "server busy")
		return
	}
	defer s.heavy.Release(1)

	res, err := archive.Build(r.Context(), p.Root, req.Paths)
	if err != nil {
		if err == archive.ErrEmpty {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		s.writeDomainError(w, err)
		return
	}

	name := zipName(req.Name, req.Paths)
	s.recordOp(r, p.ID, store.OpDownload, name, res.TotalBytes, nil)

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(res.Data)))
	_, _ = w.Write(res.Data)
}

func zipName(requested string, paths []string) string {
	name := strings.TrimSpace(requested)
	name = strings.TrimSuffix(name, ".zip")
	name = strings.Trim(strings.ReplaceAll(name, "/", "-"), ". ")
	if name == "" {
		if len(paths) == 1 {
			name = filepath.Base(paths[0])
		} else {
			name = "download"
		}
	}
	return name + ".zip"
}

// resolveFile confines a relative path and requires a regular file.
func (s *Server) resolveFile(root, rel string) (fsutil.ConfinedPath, os.FileInfo, error) {
	cp, err := fsutil.Confine(root, rel)
	if err != nil {
		return fsutil.ConfinedPath{}, nil, browse.ErrNotFound
	}
	st, err := os.Stat(cp.Abs)
	if err != nil || st.IsDir() {
		return fsutil.ConfinedPath{}, nil, browse.ErrNotFound
	}
	return cp, st, nil
}

// recordOp appends an audit row. Failures are logged, never surfaced.
func (s *Server) recordOp(r *http.Request, userID int64, kind, path string, size int64, opErr error) {
	status := store.StatusCompleted
	if opErr != nil {
		status = store.StatusFailed
	}
	err := s.db.InsertFileOperation(r.Context(), store.FileOperation{
		UserID: userID, OperationType: kind, FilePath: path, FileSize: size, Status: status,
	})
	if err != nil {
		s.log.Warn("audit write failed", "op", kind, "path", path, "error", err)
	}
}
