// Package api exposes the simulation control surface over HTTP: start,
// pause, resume, stop, speed, a cached status endpoint, Prometheus metrics,
// and a websocket status stream layered on top of the pull API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"token-arena/internal/cache"
	"token-arena/internal/config"
	"token-arena/internal/domain"
	"token-arena/internal/observability"
	"token-arena/internal/orchestrator"
)

// Server serves the control surface.
type Server struct {
	orch         *orchestrator.Orchestrator
	cache        *cache.Cache
	logger       *logrus.Entry
	defaultRun   domain.RunConfig
	pushInterval time.Duration
	upgrader     websocket.Upgrader
}

// Options configures a Server.
type Options struct {
	Orchestrator *orchestrator.Orchestrator
	Cache        *cache.Cache // optional; /status falls back to a direct read
	Logger       *logrus.Logger

	// DefaultRun is used when a start request omits fields.
	DefaultRun domain.RunConfig

	// PushInterval is the websocket status push period. Default 1s.
	PushInterval time.Duration
}

// NewServer creates the control surface server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	if opts.PushInterval <= 0 {
		opts.PushInterval = time.Second
	}
	return &Server{
		orch:         opts.Orchestrator,
		cache:        opts.Cache,
		logger:       logger.WithField("component", "api"),
		defaultRun:   opts.DefaultRun,
		pushInterval: opts.PushInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Routes returns the HTTP handler for the whole surface.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())

	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/simulation/start", s.handleStart)
	mux.HandleFunc("/simulation/pause", s.command(s.orch.Pause))
	mux.HandleFunc("/simulation/resume", s.command(s.orch.Resume))
	mux.HandleFunc("/simulation/stop", s.command(s.orch.Stop))
	mux.HandleFunc("/simulation/speed", s.handleSpeed)
	mux.HandleFunc("/simulation/stream", s.handleStream)

	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var status orchestrator.Status
	if s.cache != nil {
		v, err := s.cache.Get(r.Context(), cache.KeyStatus)
		if err != nil {
			s.writeError(w, err)
			return
		}
		status = v.(orchestrator.Status)
	} else {
		status = s.orch.Status()
	}

	s.writeJSON(w, http.StatusOK, status)
}

// StartRequest carries optional overrides of the configured run defaults.
type StartRequest struct {
	AgentCount              int                `json:"agentCount"`
	MaxAgentsPerPhase       int                `json:"maxAgentsPerPhase"`
	PhaseDurationMs         int                `json:"phaseDurationMs"`
	Speed                   float64            `json:"speed"`
	PersonalityDistribution map[string]float64 `json:"personalityDistribution"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := s.defaultRun
	if r.Body != nil && r.ContentLength != 0 {
		var req StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}
		if req.AgentCount > 0 {
			cfg.AgentCount = req.AgentCount
		}
		if req.MaxAgentsPerPhase > 0 {
			cfg.MaxAgentsPerPhase = req.MaxAgentsPerPhase
		}
		if req.PhaseDurationMs > 0 {
			cfg.PhaseDuration = time.Duration(req.PhaseDurationMs) * time.Millisecond
		}
		if req.Speed > 0 {
			cfg.SpeedMultiplier = req.Speed
		}
		if len(req.PersonalityDistribution) > 0 {
			mix := make(map[domain.Personality]float64, len(req.PersonalityDistribution))
			for name, weight := range req.PersonalityDistribution {
				mix[domain.Personality(name)] = weight
			}
			cfg.PersonalityMix = mix
		}
	}

	if err := s.orch.Start(r.Context(), cfg); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.orch.Status())
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Speed float64 `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if err := s.orch.SetSpeed(req.Speed); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.orch.Status())
}

// command wraps a no-argument orchestrator call as a POST handler.
func (s *Server) command(fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := fn(); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, s.orch.Status())
	}
}

// handleStream pushes status snapshots over a websocket at the push interval.
// The stream is a convenience layer over /status; the orchestrator itself
// only exposes the pull API.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Reader goroutine: consume control frames, signal close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(s.orch.Status()); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Warn("response encoding failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, orchestrator.ErrInvalidConfig),
		errors.Is(err, orchestrator.ErrInvalidSpeed),
		errors.Is(err, config.ErrInvalid):
		code = http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrAlreadyRunning),
		errors.Is(err, orchestrator.ErrNotRunning),
		errors.Is(err, orchestrator.ErrNotPaused):
		code = http.StatusConflict
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
