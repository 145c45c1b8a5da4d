package api

import (
	"context"
	"strings"

	"fleetnav/internal/auth"
	"fleetnav/internal/config"
	"fleetnav/internal/dispatch"
	"fleetnav/internal/opt"
	"fleetnav/internal/store"
	"fleetnav/internal/webhooks"
)

type Server struct {
	Engine    *dispatch.Engine
	Store     store.Store
	Pub       *webhooks.Publisher
	Auth      *auth.Verifier
	Broker    EventBroker
	Locations *LocationCache
	OptCfg    opt.Config
}

// NewServer wires the engine, store and broker from cfg. With no
// DATABASE_URL the fleet lives purely in memory; otherwise prior state
// is restored from Postgres on startup.
func NewServer(cfg config.Config) (*Server, error) {
	var st store.Store
	reg := dispatch.NewRegistry()
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		st = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(context.Background()); err != nil {
			return nil, err
		}
		if vehicles, tasks, err := pg.LoadFleetState(context.Background()); err == nil {
			reg.Restore(vehicles, tasks)
		}
		st = pg
	}

	engine, err := dispatch.NewEngine(reg, cfg.Optimizer)
	if err != nil {
		return nil, err
	}

	var broker EventBroker
	if cfg.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	return &Server{
		Engine:    engine,
		Store:     st,
		Pub:       webhooks.NewPublisher(st),
		Auth:      auth.NewVerifier(cfg.AuthMode, cfg.AuthSecret),
		Broker:    broker,
		Locations: NewLocationCache(),
		OptCfg:    cfg.Optimizer,
	}, nil
}

// emit publishes to live SSE subscribers and enqueues webhooks.
func (s *Server) emit(ctx context.Context, eventType string, data map[string]any) {
	s.Broker.Publish("fleet", SSEEvent{Type: eventType, Data: data})
	if vid, ok := data["vehicleId"].(string); ok && vid != "" {
		s.Broker.Publish(vid, SSEEvent{Type: eventType, Data: data})
	}
	s.Pub.Emit(ctx, eventType, data)
}

// journal writes the current fleet snapshot through to the store.
// Best effort: the registry stays authoritative if the write fails.
func (s *Server) journal(ctx context.Context) {
	reg := s.Engine.Registry()
	_ = s.Store.SaveFleetState(ctx, reg.ListVehicles(), reg.ListTasks())
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}
