package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthdm/hollywood/actor"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/riverbt/nodeflow/internal/api"
	"github.com/riverbt/nodeflow/internal/engine"
	"github.com/riverbt/nodeflow/internal/eventbus"
	"github.com/riverbt/nodeflow/internal/indicatorengine"
	"github.com/riverbt/nodeflow/internal/node/kline"
	"github.com/riverbt/nodeflow/pkg/config"
	"github.com/riverbt/nodeflow/pkg/database"
	"github.com/riverbt/nodeflow/pkg/exchangeclient"
	"github.com/riverbt/nodeflow/pkg/model"
)

// Messages for supervisor actor communication.
type (
	StartMessage  struct{}
	StopMessage   struct{}
	StatusMessage struct{}
	ErrorMessage  struct{ Error error }

	// CreateStrategyMsg spawns a new per-strategy actor and builds it
	// from the given graph document.
	CreateStrategyMsg struct {
		ID    string
		Name  string
		Graph []byte
		Reply chan error
	}
)

// Supervisor manages all other actors in the system: the admin/control
// API actor and one Strategy actor per running backtest. It also owns
// the event bus they publish to, which is a plain *eventbus.Bus rather
// than an actor.
type Supervisor struct {
	config       *config.Config
	logger       zerolog.Logger
	db           *database.DB
	bus          *eventbus.Bus
	source       kline.Source
	indicator    *indicatorengine.Engine
	apiActor     *actor.PID
	strategyPIDs map[string]*actor.PID
}

// New creates a new supervisor actor.
func New() *Supervisor {
	return &Supervisor{
		logger:       log.With().Str("actor", "supervisor").Logger(),
		strategyPIDs: make(map[string]*actor.PID),
	}
}

// Start initializes and starts the supervisor actor system.
func (s *Supervisor) Start(ctx context.Context) error {
	s.logger.Info().Msg("starting supervisor actor system")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	s.config = cfg

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	s.db = db

	s.bus = eventbus.New(s.logger.With().Str("actor", "eventbus").Logger())
	s.indicator = indicatorengine.New()
	s.source = s.buildSource(cfg)

	engineConfig := actor.NewEngineConfig()
	actorEngine, err := actor.NewEngine(engineConfig)
	if err != nil {
		return fmt.Errorf("failed to create actor engine: %w", err)
	}

	supervisorPID := actorEngine.Spawn(func() actor.Receiver {
		return s
	}, "supervisor")

	actorEngine.Send(supervisorPID, StartMessage{})

	s.logger.Info().Msg("supervisor actor system started successfully")
	return nil
}

// buildSource picks the live Bybit adapter when credentials are
// configured, falling back to the fixture-backed file source otherwise.
func (s *Supervisor) buildSource(cfg *config.Config) kline.Source {
	if cfg.BybitAPIKey != "" && cfg.BybitSecret != "" {
		return exchangeclient.NewBybitSource(cfg.BybitAPIKey, cfg.BybitSecret, cfg.BybitTestnet, s.logger.With().Str("component", "bybit_source").Logger())
	}
	return exchangeclient.NewFileSource(cfg.Backtest.FixtureDir,
		model.Interval("1m"), model.Interval("5m"), model.Interval("15m"),
		model.Interval("30m"), model.Interval("1h"), model.Interval("4h"), model.Interval("1d"),
	)
}

// Receive handles incoming messages.
func (s *Supervisor) Receive(ctx *actor.Context) {
	switch msg := ctx.Message().(type) {
	case actor.Started:
		s.onStarted(ctx)
	case actor.Stopped:
		s.onStopped(ctx)
	case actor.Initialized:
		s.onInitialized(ctx)
	case StartMessage:
		s.onStart(ctx)
	case StopMessage:
		s.onStop(ctx)
	case StatusMessage:
		s.onStatus(ctx)
	case ErrorMessage:
		s.onError(ctx, msg)
	case CreateStrategyMsg:
		s.onCreateStrategy(ctx, msg)
	default:
		s.logger.Warn().Str("message_type", fmt.Sprintf("%T", msg)).Msg("received unknown message")
	}
}

func (s *Supervisor) onStarted(ctx *actor.Context) {
	s.logger.Info().Msg("supervisor actor started")
}

func (s *Supervisor) onStopped(ctx *actor.Context) {
	s.logger.Info().Msg("supervisor actor stopped")
	if s.bus != nil {
		s.bus.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

func (s *Supervisor) onInitialized(ctx *actor.Context) {
	s.logger.Debug().Msg("supervisor actor initialized")
}

func (s *Supervisor) onStart(ctx *actor.Context) {
	s.logger.Info().Msg("starting child actors")

	apiActorPID := ctx.SpawnChild(func() actor.Receiver {
		a := api.New(s.config, s.bus, s.db, s.logger.With().Str("actor", "api").Logger())
		a.SetSupervisorPID(ctx.PID())
		return a
	}, "api")
	s.apiActor = apiActorPID
}

func (s *Supervisor) onStop(ctx *actor.Context) {
	s.logger.Info().Msg("stopping child actors")

	for id, pid := range s.strategyPIDs {
		s.logger.Info().Str("strategy_id", id).Msg("stopping strategy actor")
		ctx.Engine().Stop(pid)
	}

	if s.apiActor != nil {
		ctx.Engine().Stop(s.apiActor)
	}
}

func (s *Supervisor) onStatus(ctx *actor.Context) {
	status := map[string]interface{}{
		"timestamp":       time.Now(),
		"strategy_actors": len(s.strategyPIDs),
		"api_actor_alive": s.apiActor != nil,
	}
	s.logger.Info().Interface("status", status).Msg("supervisor status")
	ctx.Respond(status)
}

func (s *Supervisor) onError(ctx *actor.Context, msg ErrorMessage) {
	s.logger.Error().Err(msg.Error).Msg("received error from child actor")
}

func (s *Supervisor) onCreateStrategy(ctx *actor.Context, msg CreateStrategyMsg) {
	if !json.Valid(msg.Graph) {
		msg.Reply <- fmt.Errorf("graph is not valid json")
		return
	}
	if _, exists := s.strategyPIDs[msg.ID]; exists {
		msg.Reply <- fmt.Errorf("strategy %q already exists", msg.ID)
		return
	}

	s.logger.Info().Str("strategy_id", msg.ID).Msg("starting strategy actor")

	strategyPID := ctx.SpawnChild(func() actor.Receiver {
		return engine.New(
			msg.ID,
			s.source,
			s.indicator,
			s.bus,
			s.config.Backtest.InitialBalance,
			s.config.Backtest.Leverage,
			s.config.Backtest.FeeRate,
			s.logger.With().Str("actor", "strategy").Str("strategy_id", msg.ID).Logger(),
		)
	}, "strategy_"+msg.ID)

	s.strategyPIDs[msg.ID] = strategyPID
	ctx.Send(strategyPID, engine.Build{Graph: msg.Graph})

	if s.db != nil {
		if err := s.db.SaveRun(msg.ID, msg.Name, msg.Graph, time.Now()); err != nil {
			s.logger.Error().Err(err).Str("strategy_id", msg.ID).Msg("failed to record run")
		}
	}

	if s.apiActor != nil {
		ctx.Send(s.apiActor, api.RegisterStrategyMsg{ID: msg.ID, PID: strategyPID})
	}

	msg.Reply <- nil
}
