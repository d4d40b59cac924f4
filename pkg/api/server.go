package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cuemby/warden/pkg/events"
	"github.com/cuemby/warden/pkg/host"
	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/metrics"
	"github.com/cuemby/warden/pkg/scheduler"
	"github.com/cuemby/warden/pkg/storage"
	"github.com/cuemby/warden/pkg/types"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const (
	commandTimeout    = 30 * time.Second
	readHeaderTimeout = 10 * time.Second
	maxBodyBytes      = 64 << 10
)

// Controller is the engine surface the API drives
type Controller interface {
	Summary() types.Summary
	SchedulerStatus() scheduler.Status
	ForcePollNow(ctx context.Context) (bool, error)
	ForceFallbackReroll(ctx context.Context) (bool, error)
	ManagedSurfaceID(ctx context.Context) (string, error)
	SettingsChanged(ctx context.Context) error
	AnswerPrompt(ctx context.Context, id string, accepted bool) (string, error)
}

// Options wires a Server. Bridge and Broker are optional: without a bridge
// the companion routes are not served, without a broker /v1/events is not.
type Options struct {
	Engine   Controller
	Store    storage.Store
	Queue    *storage.WriteQueue
	Bridge   *host.Bridge
	Broker   *events.Broker
	ReadOnly bool
	Now      func() time.Time
}

// Server is the HTTP control surface
type Server struct {
	engine   Controller
	store    storage.Store
	queue    *storage.WriteQueue
	bridge   *host.Bridge
	broker   *events.Broker
	readOnly bool
	now      func() time.Time

	router *mux.Router
	http   *http.Server
	logger zerolog.Logger
}

// NewServer creates a new API server
func NewServer(opts Options) (*Server, error) {
	if opts.Engine == nil || opts.Store == nil || opts.Queue == nil {
		return nil, fmt.Errorf("api: engine, store and queue are required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		engine:   opts.Engine,
		store:    opts.Store,
		queue:    opts.Queue,
		bridge:   opts.Bridge,
		broker:   opts.Broker,
		readOnly: opts.ReadOnly,
		now:      opts.Now,
		router:   mux.NewRouter(),
		logger:   log.WithComponent("api"),
	}
	if s.readOnly {
		s.logger = s.logger.With().Bool("read_only", true).Logger()
	}
	s.routes()
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	if !s.readOnly {
		metrics.RegisterComponent(metrics.ComponentAPI, false, "starting")
	}
	return s, nil
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves until Shutdown
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		if !s.readOnly {
			metrics.UpdateComponent(metrics.ComponentAPI, false, err.Error())
		}
		return fmt.Errorf("failed to listen: %w", err)
	}

	if !s.readOnly {
		metrics.UpdateComponent(metrics.ComponentAPI, true, "listening")
	}
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("Control API listening")

	if err := s.http.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server. Open event streams end when ctx
// expires or the broker stops.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.readOnly {
		metrics.UpdateComponent(metrics.ComponentAPI, false, "stopped")
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.instrument)
	if s.readOnly {
		r.Use(readOnly)
	}

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", metrics.HealthHandler()).Methods(http.MethodGet)
	r.HandleFunc("/ready", metrics.ReadyHandler()).Methods(http.MethodGet)
	r.HandleFunc("/live", metrics.LivenessHandler()).Methods(http.MethodGet)

	// streamed, so registered outside the compressed subrouter
	if s.broker != nil {
		r.HandleFunc("/v1/events", s.handleEvents).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(gzipMiddleware)

	v1.HandleFunc("/surface", s.handleSurface).Methods(http.MethodGet)
	v1.HandleFunc("/poll", s.handlePoll).Methods(http.MethodPost)
	v1.HandleFunc("/fallback/reroll", s.handleReroll).Methods(http.MethodPost)
	v1.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	v1.HandleFunc("/settings", s.handleGetSettings).Methods(http.MethodGet)
	v1.HandleFunc("/settings", s.handlePutSettings).Methods(http.MethodPut)

	v1.HandleFunc("/channels", s.handleListChannels).Methods(http.MethodGet)
	v1.HandleFunc("/channels", s.handleAddChannel).Methods(http.MethodPost)
	v1.HandleFunc("/channels/{name}", s.handleRemoveChannel).Methods(http.MethodDelete)
	v1.HandleFunc("/channels/{name}/priority", s.handleMoveChannel).Methods(http.MethodPut)

	v1.HandleFunc("/analytics", s.handleGetAnalytics).Methods(http.MethodGet)
	v1.HandleFunc("/analytics", s.handleResetAnalytics).Methods(http.MethodDelete)

	if s.bridge != nil && !s.readOnly {
		s.hostRoutes(v1.PathPrefix("/host").Subrouter())
	}
}
