package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/securepatrol-id/securepatrol-backend/internal/accounts"
	"github.com/securepatrol-id/securepatrol-backend/internal/classify"
	"github.com/securepatrol-id/securepatrol-backend/internal/evidence"
	"github.com/securepatrol-id/securepatrol-backend/internal/locations"
	"github.com/securepatrol-id/securepatrol-backend/internal/patrol"
	"github.com/securepatrol-id/securepatrol-backend/internal/patrollogs"
	"github.com/securepatrol-id/securepatrol-backend/internal/session"
	"github.com/securepatrol-id/securepatrol-backend/pkg/bus"
	"github.com/securepatrol-id/securepatrol-backend/pkg/config"
	"github.com/securepatrol-id/securepatrol-backend/pkg/geo"
	"github.com/securepatrol-id/securepatrol-backend/pkg/logger"
	"github.com/securepatrol-id/securepatrol-backend/pkg/store"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "securepatrold"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "securepatrold",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	storeClient, err := store.Open(context.Background(), cfg.Store, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to open partition store", err)
		os.Exit(1)
	}

	eventBus := bus.New(logg)

	sessionManager, err := session.NewManager(context.Background(), session.ManagerParams{
		Store:  storeClient,
		Bus:    eventBus,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to restore session", err)
		os.Exit(1)
	}

	accountsService, err := accounts.NewService(accounts.ServiceParams{
		Store:          storeClient,
		Bus:            eventBus,
		Session:        sessionManager,
		Logger:         logg,
		PasswordConfig: cfg.Password,
		MasterConfig:   cfg.Master,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create accounts service", err)
		os.Exit(1)
	}
	locationsService, err := locations.NewService(locations.ServiceParams{
		Store:  storeClient,
		Bus:    eventBus,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create locations service", err)
		os.Exit(1)
	}

	logsService, err := patrollogs.NewService(patrollogs.ServiceParams{
		Store:     storeClient,
		Bus:       eventBus,
		Logger:    logg,
		Retention: cfg.Retention,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create patrol log service", err)
		os.Exit(1)
	}

	var classifier classify.Classifier = classify.Disabled{}
	if cfg.Classifier.Enabled() {
		geminiOpts := []classify.Option{classify.WithModel(cfg.Classifier.Model)}
		if cfg.Classifier.BaseURL != "" {
			geminiOpts = append(geminiOpts, classify.WithBaseURL(cfg.Classifier.BaseURL))
		}
		gemini, err := classify.NewGeminiClient(cfg.Classifier.APIKey, geminiOpts...)
		if err != nil {
			logg.Error(context.Background(), "failed to create classifier client", err)
			os.Exit(1)
		}
		classifier = gemini
	}

	zone := geo.Zone{
		Center:       geo.Point{Latitude: cfg.Zone.Latitude, Longitude: cfg.Zone.Longitude},
		RadiusMeters: cfg.Zone.RadiusMeters,
	}
	watcher := &geo.StaticWatcher{Position: zone.Center, Interval: 5 * time.Second}

	workflow, err := patrol.NewWorkflow(patrol.WorkflowParams{
		Zone:       zone,
		Watcher:    watcher,
		Processor:  evidence.NewProcessor(cfg.Media),
		Classifier: classifier,
		Session:    sessionManager,
		Locations:  locationsService,
		Logs:       logsService,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create submission workflow", err)
		os.Exit(1)
	}
	if err := workflow.Start(context.Background()); err != nil {
		logg.Error(context.Background(), "failed to start geolocation watch", err)
		os.Exit(1)
	}

	catalog, err := locationsService.List(context.Background())
	if err != nil {
		logg.Error(context.Background(), "failed to load checkpoint catalog", err)
		os.Exit(1)
	}
	roster, err := accountsService.List(context.Background())
	if err != nil {
		logg.Error(context.Background(), "failed to load account roster", err)
		os.Exit(1)
	}

	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":         cfg.App.Env,
		"zone_radius": cfg.Zone.RadiusMeters,
		"checkpoints": len(catalog),
		"accounts":    len(roster),
		"classifier":  cfg.Classifier.Enabled(),
	})
	logg.Info(ctx, "securepatrol core ready")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logg.Info(ctx, "shutting down")
	workflow.Close()

	var shutdownErr error
	shutdownErr = multierr.Append(shutdownErr, storeClient.Close())
	if shutdownErr != nil {
		logg.Error(ctx, "shutdown finished with errors", shutdownErr)
		os.Exit(1)
	}
}
