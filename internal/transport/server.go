package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	kerrors "github.com/sealdrop/sealdrop/internal/errors"
	logger "github.com/sealdrop/sealdrop/internal/logging"
)

// DefaultMaxUploadBytes bounds the request body of /upload.
const DefaultMaxUploadBytes = 50_000_000

// ServerOptions configures the upload test server.
type ServerOptions struct {
	Logger   logger.Logger
	MaxBytes int64
	// StoreDir, when set, receives <id>.zip and <id>.key for every upload.
	StoreDir string
}

// Server accepts uploads produced by Uploader. It stands in for the real
// receiving end during development and tests.
type Server struct {
	opts   ServerOptions
	router chi.Router
}

// NewServer builds the router.
func NewServer(opts ServerOptions) *Server {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxUploadBytes
	}

	s := &Server{opts: opts}
	r := chi.NewRouter()
	s.RegisterRoutes(r)
	s.router = r
	return s
}

// RegisterRoutes registers the upload route on r.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/upload", s.handleUpload)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Payload too large", http.StatusBadRequest)
			return
		}
		s.opts.Logger.Warnf("form error: %v", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File[FilesField]
	key := r.FormValue(KeyField)
	s.opts.Logger.Infof("Upload %s: %d file part(s), key %d hex chars", r.Header.Get(RequestIDHeader), len(files), len(key))

	if s.opts.StoreDir != "" {
		if err := s.store(files, key); err != nil {
			s.opts.Logger.Errorf("storing upload: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "success")
}

func (s *Server) store(files []*multipart.FileHeader, key string) error {
	id := uuid.NewString()
	for i, fh := range files {
		name := fmt.Sprintf("%s.%d.zip", id, i)
		if err := saveFile(fh, filepath.Join(s.opts.StoreDir, name)); err != nil {
			return err
		}
	}
	keyPath := filepath.Join(s.opts.StoreDir, id+".key")
	if err := os.WriteFile(keyPath, []byte(key), 0600); err != nil {
		return kerrors.NewIOError("write", keyPath, err)
	}
	return nil
}

func saveFile(fh *multipart.FileHeader, path string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return kerrors.NewIOError("create", path, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return kerrors.NewIOError("write", path, err)
	}
	if err := dst.Close(); err != nil {
		return kerrors.NewIOError("close", path, err)
	}
	return nil
}

// ListenAndServe serves handler on addr until ctx is done, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, log logger.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return kerrors.NewIOError("listen", addr, err)
	}
	return Serve(ctx, ln, handler, log)
}

// Serve is ListenAndServe on an existing listener.
func Serve(ctx context.Context, ln net.Listener, handler http.Handler, log logger.Logger) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Infof("Server started at %s", ln.Addr())
		errs <- srv.Serve(ln)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
