// Package web serves the AutoMed chat demo over HTTP.
//
// Routes:
//
//	GET  /         static chat page
//	POST /chat     {"message": "..."} -> {"response": "...", "status": "success"}
//	GET  /healthz  liveness
//	GET  /metrics  Prometheus exposition
package web

import (
	"embed"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

//go:embed static
var staticFiles embed.FS

// maxBodyBytes bounds a /chat request body.
const maxBodyBytes = 64 << 10

// Error texts returned to clients.
const (
	errNoMessage = "No message provided"
	errInternal  = "Internal server error"
)

// Server routes the demo endpoints.
type Server struct {
	responder Responder
	logger    *zap.Logger
	gatherer  prometheus.Gatherer
	mux       *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGatherer serves g on /metrics. Default: prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// NewServer builds a Server answering chats with responder. A nil responder
// uses CannedResponder.
func NewServer(responder Responder, opts ...Option) *Server {
	if responder == nil {
		responder = CannedResponder{}
	}
	s := &Server{
		responder: responder,
		logger:    zap.NewNop(),
		gatherer:  prometheus.DefaultGatherer,
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.logger.Debug("http request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", rec.status),
		zap.Duration("duration", time.Since(start)),
	)
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
	Status   string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	page, err := fs.ReadFile(staticFiles, "static/index.html")
	if err != nil {
		s.logger.Error("read index page", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errInternal})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.logger.Debug("bad chat request", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errNoMessage})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errNoMessage})
		return
	}

	reply, err := s.responder.Respond(r.Context(), req.Message)
	if errors.Is(err, ErrEmptyMessage) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errNoMessage})
		return
	}
	if err != nil {
		s.logger.Error("chat failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errInternal})
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Response: reply, Status: "success"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
