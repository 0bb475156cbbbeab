package web

import (
	"context"
	"io/fs"
	"log"
	"net/http"
	"time"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
}

// StaticFS returns the embedded static/ directory.
func StaticFS() fs.FS {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatalf("web: failed to sub static fs: %v", err)
	}
	return subFS
}

// NewServer creates a server for the given address and handlers.
func NewServer(addr string, handlers *Handlers) *Server {
	return &Server{
		addr:     addr,
		handlers: handlers,
	}
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /config", s.handlers.HandleConfig)
	mux.HandleFunc("GET /pose", s.handlers.HandlePose)
	mux.HandleFunc("POST /solve/forward", s.handlers.HandleForward)
	mux.HandleFunc("POST /solve/inverse", s.handlers.HandleInverse)
	mux.HandleFunc("GET /render/pose.png", s.handlers.HandlePosePNG)
	mux.HandleFunc("GET /render/workspace.png", s.handlers.HandleWorkspacePNG)
	mux.HandleFunc("GET /ws", s.handlers.HandleWebSocket)
	mux.HandleFunc("GET /status/stream", s.handlers.HandleStatusStream)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(s.handlers.staticFS))))
	mux.HandleFunc("GET /{$}", s.handlers.ServeIndex) // exact match for root only

	return mux
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
// Motor moves started by requests are cancelled with ctx.
func (s *Server) Run(ctx context.Context) error {
	s.handlers.BindContext(ctx)
	srv := &http.Server{Addr: s.addr, Handler: s.Mux()}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
