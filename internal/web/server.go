// Package web provides an HTTP status server for the switch-node daemon.
package web

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/switch-node/internal/gpio"
	"github.com/sweeney/switch-node/internal/status"
)

// KeySetter accepts a simulated key mask. Only the fake key reader
// implements it.
type KeySetter interface {
	Set(mask gpio.KeyMask)
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	keys       KeySetter
}

// Option configures a Server.
type Option func(*Server)

// WithKeySetter enables POST /keys for driving simulated buttons.
func WithKeySetter(k KeySetter) Option {
	return func(s *Server) { s.keys = k }
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker, opts ...Option) *Server {
	s := &Server{tracker: tracker}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	if s.keys != nil {
		mux.HandleFunc("/keys", s.handleKeys)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's request multiplexer.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		log.Warn().Err(err).Msg("render status page")
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// handleKeys sets the simulated key mask from the "mask" form value,
// decimal or 0x-prefixed hex.
func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	v, err := strconv.ParseUint(r.FormValue("mask"), 0, 8)
	if err != nil {
		http.Error(w, "bad mask", http.StatusBadRequest)
		return
	}
	mask := gpio.KeyMask(v)
	log.Info().Stringer("keys", mask).Msg("simulated key change")
	s.keys.Set(mask)
	w.WriteHeader(http.StatusNoContent)
}
