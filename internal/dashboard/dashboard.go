// Package dashboard serves a read-only web view of a running project:
// the decoded event stream, the feature checklist, the replayed agent
// terminal, and Prometheus metrics.
package dashboard

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"pilot/internal/features"
	"pilot/internal/session"
	"pilot/internal/session/decoder"
	"pilot/internal/session/eventlog"
)

//go:embed index.html
var indexHTML []byte

// Server serves the dashboard for one project directory.
type Server struct {
	workDir string
	logger  zerolog.Logger
}

// New builds a dashboard server over a project directory.
func New(workDir string, logger zerolog.Logger) *Server {
	return &Server{workDir: workDir, logger: logger}
}

// Handler returns the dashboard's HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/api/events", s.handleEvents)
	r.Get("/api/features", s.handleFeatures)
	r.Get("/api/terminal", s.handleTerminal)
	r.Get("/ws", s.handleWS)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// ListenAndServe blocks serving the dashboard on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("dashboard listening")
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) eventLogPath() string {
	return filepath.Join(session.ScratchDir(s.workDir), eventlog.FileName)
}

func (s *Server) rawOutputPath() string {
	return filepath.Join(session.ScratchDir(s.workDir), session.RawOutputName)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML) //nolint:errcheck
}

// eventJSON is the API shape of one event.
type eventJSON struct {
	Timestamp time.Time `json:"ts"`
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
}

func toEventJSON(ev decoder.Event) eventJSON {
	return eventJSON{Timestamp: ev.Timestamp, Type: ev.Type.String(), Data: ev.Data}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := eventlog.Read(s.eventLogPath())
	if err != nil && !os.IsNotExist(err) {
		s.internalError(w, err, "read event log")
		return
	}
	out := make([]eventJSON, 0, len(events))
	for _, ev := range events {
		out = append(out, toEventJSON(ev))
	}
	s.writeJSON(w, out)
}

func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	list, err := features.Load(s.workDir)
	if err != nil {
		s.internalError(w, err, "load features")
		return
	}
	passing, total := list.Counts()
	s.writeJSON(w, map[string]any{
		"passing":  passing,
		"total":    total,
		"features": list.Features,
	})
}

func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	text, err := renderRawOutput(s.rawOutputPath())
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "no session output yet", http.StatusNotFound)
			return
		}
		s.internalError(w, err, "render terminal")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(text)) //nolint:errcheck
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("encode response")
	}
}

func (s *Server) internalError(w http.ResponseWriter, err error, msg string) {
	s.logger.Error().Err(err).Msg(msg)
	http.Error(w, msg, http.StatusInternalServerError)
}
