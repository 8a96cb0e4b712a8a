// Package audio serves a single local audio file, whole or as a chunked stream.
package audio

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/model-catalog/internal/metrics"
	"github.com/JakeFAU/model-catalog/internal/middleware"
)

const notFoundBody = "Audio file not found"

// DefaultChunkSize is the stream window when none is configured.
const DefaultChunkSize = 64 * 1024

// Config controls the audio server.
type Config struct {
	Path        string
	ContentType string
	ChunkSize   int
}

// Server routes audio requests.
type Server struct {
	cfg    Config
	logger *zap.Logger
	router chi.Router
}

// NewServer constructs a Server with middleware and routes.
func NewServer(cfg Config, logger *zap.Logger) (*Server, error) {
	if cfg.Path == "" {
		return nil, errors.New("audio path is required")
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "audio/mpeg"
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	s := &Server{cfg: cfg, logger: logger}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/audio", s.serveFile)
	r.Head("/audio", s.serveFile)
	r.Get("/stream_audio", s.streamFile)

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// serveFile returns the whole file with range and conditional request support.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	f, info, ok := s.open(w)
	if !ok {
		return
	}
	defer s.closeFile(f)

	w.Header().Set("Content-Type", s.cfg.ContentType)
	cw := middleware.NewResponseWriter(w)
	http.ServeContent(cw, r, info.Name(), info.ModTime(), f)
	metrics.ObserveAudioBytes("whole", cw.BytesWritten())
}

// streamFile writes the file in ChunkSize windows, flushing after each.
func (s *Server) streamFile(w http.ResponseWriter, r *http.Request) {
	f, _, ok := s.open(w)
	if !ok {
		return
	}
	defer s.closeFile(f)

	w.Header().Set("Content-Type", s.cfg.ContentType)
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	buf := make([]byte, s.cfg.ChunkSize)
	var sent int64
	defer func() { metrics.ObserveAudioBytes("stream", sent) }()

	for {
		if err := r.Context().Err(); err != nil {
			s.logger.Debug("audio stream canceled by client", zap.Int64("bytes", sent))
			return
		}
		n, readErr := io.ReadFull(f, buf)
		if n > 0 {
			written, err := w.Write(buf[:n])
			sent += int64(written)
			if err != nil {
				s.logger.Debug("audio stream write failed", zap.Int64("bytes", sent), zap.Error(err))
				return
			}
			if err := rc.Flush(); err != nil {
				s.logger.Debug("audio stream flush failed", zap.Error(err))
				return
			}
		}
		switch {
		case readErr == nil:
		case errors.Is(readErr, io.EOF), errors.Is(readErr, io.ErrUnexpectedEOF):
			return
		default:
			s.logger.Error("audio stream read failed", zap.String("path", s.cfg.Path), zap.Int64("bytes", sent), zap.Error(readErr))
			// Headers are gone; drop the connection so the client sees a truncated body.
			panic(http.ErrAbortHandler)
		}
	}
}

// open checks the file on every request. It writes the error response itself
// and reports ok=false when the file cannot be served.
func (s *Server) open(w http.ResponseWriter) (*os.File, fs.FileInfo, bool) {
	f, err := os.Open(s.cfg.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.notFound(w)
			return nil, nil, false
		}
		s.logger.Error("open audio file failed", zap.String("path", s.cfg.Path), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return nil, nil, false
	}
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		s.closeFile(f)
		if err != nil {
			s.logger.Error("stat audio file failed", zap.String("path", s.cfg.Path), zap.Error(err))
		}
		s.notFound(w)
		return nil, nil, false
	}
	return f, info, true
}

func (s *Server) notFound(w http.ResponseWriter) {
	s.logger.Warn("audio file not found", zap.String("path", s.cfg.Path))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	if _, err := fmt.Fprint(w, notFoundBody); err != nil {
		s.logger.Debug("write not found body failed", zap.Error(err))
	}
}

func (s *Server) closeFile(f *os.File) {
	if err := f.Close(); err != nil {
		s.logger.Warn("close audio file failed", zap.Error(err))
	}
}
