package main

import (
	"fmt"
	"net/http"

	"github.com/liliang-cn/roundtable/internal/config"
	"github.com/liliang-cn/roundtable/internal/failover"
	"github.com/liliang-cn/roundtable/internal/llm"
	"github.com/liliang-cn/roundtable/internal/registry"
	"github.com/liliang-cn/roundtable/internal/repository"
	"github.com/liliang-cn/roundtable/internal/roundtable"
	"github.com/liliang-cn/roundtable/internal/service"
	"go.uber.org/zap"
)

// app is the wired service graph shared by every command
type app struct {
	cfg         *config.Config
	logger      *zap.Logger
	db          *repository.DB
	admin       *service.AdminService
	discussions *service.DiscussionService
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	db, err := repository.NewDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	repos := service.NewRepositories(db)

	reg := registry.New(cfg.LoadBalancer, registry.WithHealthObserver(repos.HealthWriter(logger)))
	state, err := service.LoadState(cfg, repos, reg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	client := llm.NewClient(&http.Client{Timeout: cfg.HTTP.Timeout}, logger)
	controller := failover.NewController(reg, client, logger)
	orchestrator := roundtable.New(controller, state.Experts,
		roundtable.Config{MaxRetries: state.LoadBalancer.RetryCount},
		roundtable.WithLogger(logger),
		roundtable.WithTokenCounter(service.NewTokenEstimator(logger)),
	)

	discussions := service.NewDiscussionService(orchestrator, repos.Chats, cfg.Roundtable.MaxRounds, logger)
	admin := service.NewAdminService(repos, reg, client, discussions, logger)

	return &app{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		admin:       admin,
		discussions: discussions,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// setup loads the config, builds the logger and wires the app
func setup() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Sync()
		return nil, err
	}
	return a, nil
}
