// Package player serves a local page with a <video> element and drives it
// over a WebSocket, so terminal commands can load and seek videos in the
// user's browser.
package player

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/reelchat/internal/logging"
)

//go:embed web/player.html
var pageHTML []byte

// ErrNoSource is returned when seeking before any video was loaded.
var ErrNoSource = errors.New("no video loaded")

// Server is the player companion. The zero value is not usable; call New.
type Server struct {
	hub    *hub
	router *chi.Mux
	logger *slog.Logger
	start  time.Time

	mu      sync.Mutex
	src     string
	seconds int
	playing bool

	httpServer *http.Server
	listener   net.Listener
}

func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logging.WithComponent(logger, "player")
	s := &Server{
		hub:    newHub(logger),
		logger: logger,
		start:  time.Now(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(s.logger))
	r.Use(LoggingMiddleware(s.logger))

	r.Get("/", s.handlePage)
	r.Get("/ws", s.handleWS)
	r.Get("/health", s.handleHealth)
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on 127.0.0.1:port (0 picks a free port) and serves until
// ctx is done or Close is called.
func (s *Server) Start(ctx context.Context, port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("player listen: %w", err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("player server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	s.logger.Info("player listening", "url", s.URL())
	return nil
}

// URL is the page address once Start succeeded.
func (s *Server) URL() string {
	if s.listener == nil {
		return ""
	}
	return "http://" + s.listener.Addr().String() + "/"
}

// Close disconnects every page and stops the HTTP server.
func (s *Server) Close() error {
	s.hub.closeAll()
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Clients reports how many pages are connected.
func (s *Server) Clients() int {
	return s.hub.count()
}

// Source is the video currently shown, or "".
func (s *Server) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src
}

// Load shows src in every page, paused at the start.
func (s *Server) Load(ctx context.Context, src string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u, err := url.Parse(src)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid video url %q", src)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.src = src
	s.seconds = 0
	s.playing = false
	s.hub.broadcast(Command{Type: "load", Src: src})
	s.logger.Debug("load", "src", src, "clients", s.hub.count())
	return nil
}

// SeekAndPlay jumps to seconds and resumes playback.
func (s *Server) SeekAndPlay(ctx context.Context, seconds int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if seconds < 0 {
		seconds = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src == "" {
		return ErrNoSource
	}
	s.seconds = seconds
	s.playing = true
	s.hub.broadcast(Command{Type: "seek", Seconds: seconds})
	s.logger.Debug("seek", "seconds", seconds, "clients", s.hub.count())
	return nil
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(pageHTML)
}

// handleWS registers a page and brings it up to date with the current
// source and position. The state lock is held so no command slips in
// between the catch-up and the registration.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var catchUp []Command
	if s.src != "" {
		catchUp = append(catchUp, Command{Type: "load", Src: s.src})
		if s.playing {
			catchUp = append(catchUp, Command{Type: "seek", Seconds: s.seconds})
		}
	}
	s.hub.serve(w, r, catchUp)
}

type healthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
	Source  string `json:"source,omitempty"`
	UptimeS int64  `json:"uptime_s"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Clients: s.hub.count(),
		Source:  s.Source(),
		UptimeS: int64(time.Since(s.start).Seconds()),
	})
}
