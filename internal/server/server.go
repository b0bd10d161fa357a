// Package server assembles the document service from its parts.
package server

import (
	"database/sql"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/GolferGeek/sync-focus/internal/config"
	"github.com/GolferGeek/sync-focus/internal/fanout"
	"github.com/GolferGeek/sync-focus/internal/handler"
	"github.com/GolferGeek/sync-focus/internal/middleware"
	"github.com/GolferGeek/sync-focus/internal/repository"
	"github.com/GolferGeek/sync-focus/internal/router"
	"github.com/GolferGeek/sync-focus/internal/service"
)

type App struct {
	Engine *gin.Engine
	Bus    fanout.Bus
	Hub    *fanout.Hub

	watch  *handler.WatchHandler
	detach func()
}

// New wires repositories, services and handlers on top of an already
// migrated database. A NATS bus is used when cfg.NATSURL is set.
func New(cfg config.Config, database *sql.DB, clock clockwork.Clock, logger zerolog.Logger) (*App, error) {
	var bus fanout.Bus = fanout.NewLocalBus()
	if cfg.NATSURL != "" {
		natsBus, err := fanout.ConnectNATS(cfg.NATSURL, logger)
		if err != nil {
			return nil, err
		}
		bus = natsBus
	}

	hub := fanout.NewHub(logger)
	detach, err := hub.Attach(bus)
	if err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("attach hub: %w", err)
	}

	accountRepo := repository.NewAccountRepository(database)
	documentRepo := repository.NewDocumentRepository(database)

	authService := service.NewAuthService(accountRepo, cfg.JWTSecret, cfg.TokenTTL, clock, logger)
	documentService := service.NewDocumentService(documentRepo, bus, clock, logger)

	origins := middleware.NewOrigins(cfg.CORSOrigins)
	watchConfig := handler.DefaultWatchConfig()
	watchConfig.CheckOrigin = origins.CheckOrigin
	watch := handler.NewWatchHandler(documentService, hub, watchConfig, logger)

	engine := router.New(authService, router.Handlers{
		Auth:      handler.NewAuthHandler(authService),
		Documents: handler.NewDocumentHandler(documentService),
		Watch:     watch,
	}, origins, logger)

	return &App{
		Engine: engine,
		Bus:    bus,
		Hub:    hub,
		watch:  watch,
		detach: detach,
	}, nil
}

// Close drops watch connections and the bus.
func (a *App) Close() error {
	a.watch.Close()
	a.detach()
	return a.Bus.Close()
}
