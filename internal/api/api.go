// Package api is the admin/control HTTP surface (spec.md §1's
// out-of-scope "HTTP admin API" external collaborator): strategy
// lifecycle CRUD and play/pause/stop/reset, backed by the supervisor's
// live actor.PID map and the run-history database. Grounded on
// internal/api/api.go (teacher): chi router, middleware stack,
// cached-state-plus-broadcast pattern, minus the exchange/portfolio/
// risk/rebalance routes that belonged to the teacher's live-trading
// domain.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/anthdm/hollywood/actor"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/riverbt/nodeflow/internal/eventbus"
	"github.com/riverbt/nodeflow/pkg/config"
	"github.com/riverbt/nodeflow/pkg/database"
)

// Messages for API actor communication.
type (
	StartServerMsg struct{}
	StopServerMsg  struct{}
	StatusMsg      struct{}

	// RegisterStrategyMsg tells the API actor about a strategy actor it
	// can now route control requests to.
	RegisterStrategyMsg struct {
		ID  string
		PID *actor.PID
	}
	UnregisterStrategyMsg struct{ ID string }
)

// APIActor provides REST endpoints over the running strategy actors and
// mounts the WebSocket event bus.
type APIActor struct {
	config        *config.Config
	logger        zerolog.Logger
	server        *http.Server
	router        chi.Router
	bus           *eventbus.Bus
	db            *database.DB
	supervisorPID *actor.PID
	strategyPIDs  map[string]*actor.PID
}

// New creates a new API actor.
func New(cfg *config.Config, bus *eventbus.Bus, db *database.DB, logger zerolog.Logger) *APIActor {
	return &APIActor{
		config:       cfg,
		logger:       logger,
		bus:          bus,
		db:           db,
		strategyPIDs: make(map[string]*actor.PID),
	}
}

// SetSupervisorPID sets the supervisor actor PID for communication.
func (a *APIActor) SetSupervisorPID(pid *actor.PID) {
	a.supervisorPID = pid
}

// Receive handles incoming messages.
func (a *APIActor) Receive(ctx *actor.Context) {
	switch msg := ctx.Message().(type) {
	case actor.Started:
		a.onStarted(ctx)
	case actor.Stopped:
		a.onStopped(ctx)
	case StartServerMsg:
		a.onStartServer(ctx)
	case StopServerMsg:
		a.onStopServer(ctx)
	case StatusMsg:
		a.onStatus(ctx)
	case RegisterStrategyMsg:
		a.strategyPIDs[msg.ID] = msg.PID
		a.logger.Info().Str("strategy_id", msg.ID).Msg("strategy actor registered")
	case UnregisterStrategyMsg:
		delete(a.strategyPIDs, msg.ID)
	default:
		a.logger.Debug().Str("message_type", fmt.Sprintf("%T", msg)).Msg("received message")
	}
}

func (a *APIActor) onStarted(ctx *actor.Context) {
	a.logger.Info().Msg("API actor started")

	if ctx.Parent() != nil {
		a.supervisorPID = ctx.Parent()
	}

	ctx.Send(ctx.PID(), StartServerMsg{})
}

func (a *APIActor) onStopped(ctx *actor.Context) {
	a.logger.Info().Msg("API actor stopped")

	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.server.Shutdown(shutdownCtx)
	}
}

func (a *APIActor) onStartServer(ctx *actor.Context) {
	a.logger.Info().Int("port", a.config.API.Port).Msg("starting API server")

	a.setupRouter(ctx)

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.API.Port),
		Handler:      a.router,
		ReadTimeout:  a.config.API.Timeout,
		WriteTimeout: a.config.API.Timeout,
	}

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error().Err(err).Msg("API server error")
		}
	}()

	a.logger.Info().Msg("API server started successfully")
}

func (a *APIActor) onStopServer(ctx *actor.Context) {
	if a.server == nil {
		return
	}

	a.logger.Info().Msg("stopping API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("error stopping API server")
	}
}

func (a *APIActor) onStatus(ctx *actor.Context) {
	status := map[string]interface{}{
		"server_running": a.server != nil,
		"port":           a.config.API.Port,
		"timestamp":      time.Now(),
		"strategy_count": len(a.strategyPIDs),
	}
	ctx.Respond(status)
}

func (a *APIActor) setupRouter(ctx *actor.Context) {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(a.config.API.Timeout))

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")

			if r.Method == "OPTIONS" {
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Get("/openapi.json", a.handleOpenAPISpec)

		r.Route("/strategies", func(r chi.Router) {
			r.Post("/", a.handleCreateStrategy(ctx))
			r.Get("/{id}/stats", a.handleGetStats(ctx))
			r.Post("/{id}/play", a.handlePlay(ctx))
			r.Post("/{id}/pause", a.handlePause(ctx))
			r.Post("/{id}/stop", a.handleStop(ctx))
			r.Post("/{id}/reset", a.handleReset(ctx))
			r.Get("/{id}/orders", a.handleGetHistoryOrders(ctx))
			r.Get("/{id}/positions", a.handleGetHistoryPositions(ctx))
		})
	})

	r.Get("/ws", a.bus.ServeHTTP)

	a.router = r
}
