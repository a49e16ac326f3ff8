// Package server exposes synthesis over HTTP and websocket.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/xtts-go/tts"
	"github.com/dgnsrekt/xtts-go/tts/speakers"
	"github.com/dgnsrekt/xtts-go/tts/synth"
)

const shutdownTimeout = 10 * time.Second

// Backend is what the transport needs from the synthesis service.
type Backend interface {
	Render(ctx context.Context, req tts.SynthesisRequest, format string) ([]byte, error)
	ListSpeakers() []string
	ReloadSpeakers(ctx context.Context) (speakers.LoadReport, error)
	Info() synth.Info
}

// Server routes requests to a Backend.
type Server struct {
	cfg      tts.ServerConfig
	backend  Backend
	limiter  *rate.Limiter
	upgrader websocket.Upgrader
	logger   *log.Logger
	mux      *http.ServeMux
}

// New builds the route table.
func New(cfg tts.ServerConfig, backend Backend, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	s := &Server{
		cfg:     cfg,
		backend: backend,
		limiter: rate.NewLimiter(limit, burst),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.WithPrefix("http"),
		mux:    http.NewServeMux(),
	}

	s.mux.Handle("POST /tts/synthesize", s.limited(s.handleSynthesize))
	s.mux.Handle("POST /tts/audio/speech", s.limited(s.handleSpeech))
	s.mux.HandleFunc("GET /tts/voices", s.handleVoices)
	s.mux.HandleFunc("POST /tts/voices/reload", s.handleReload)
	s.mux.HandleFunc("GET /tts/ws", s.handleWebsocket)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /system/info", s.handleInfo)
	return s
}

// ServeHTTP applies CORS and request logging around the routes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.logger.Debug("request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"took", time.Since(start).Round(time.Millisecond))
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) limited(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeMessage(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack hands the connection to the websocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
