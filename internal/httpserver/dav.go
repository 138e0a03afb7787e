package httpserver

import (
	"net/http"

	"golang.org/x/net/webdav"

	"gracedisk/internal/auth"
)

// davHandler mounts each session's root as a WebDAV share. The handler
// is rebuilt per request because the filesystem depends on who is
// asking; locks are shared so concurrent clients see each other.
func (s *Server) davHandler() http.Handler {
	locks := webdav.NewMemLS()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.FromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		switch r.Method {
		case "GET", "HEAD", "OPTIONS", "PROPFIND":
			// reads are open to every role
		default:
			if !p.CanUpload() {
				writeError(w, http.StatusForbidden, "not allowed")
				return
			}
		}
		h := &webdav.Handler{
			Prefix:     "/dav",
			FileSystem: webdav.Dir(p.Root),
			LockSystem: locks,
			Logger: func(r *http.Request, err error) {
				if err != nil {
					s.log.Debug("webdav", "method", r.Method, "path", r.URL.Path, "error", err)
				}
			},
		}
		h.ServeHTTP(w, r)
	})
}
