package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/orderdesk/internal/api/http"
	"github.com/spec-kit/orderdesk/internal/api/http/handlers"
	"github.com/spec-kit/orderdesk/internal/auth"
	"github.com/spec-kit/orderdesk/internal/worker"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the periodic jobs",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.logger

	if err := rt.settings.Load(ctx); err != nil {
		logger.Warn("could not load settings, using defaults", zap.Error(err))
	}
	if n, err := rt.coordinator.WarmFromMirror(); err != nil {
		logger.Warn("could not read catalog mirror", zap.Error(err))
	} else if n == 0 {
		logger.Info("no catalog mirror; first request will fetch")
	}

	scheduler := worker.NewScheduler(logger)
	for _, job := range worker.DefaultJobs(rt.cfg.Tickets, rt.cfg.Catalog, rt.inactivity, rt.coordinator) {
		if err := scheduler.Add(job); err != nil {
			return err
		}
	}
	scheduler.Start()

	app := fiber.New(fiber.Config{
		AppName:               rt.cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, rt.metrics, rt.cfg.App.RequestTimeout())

	health := map[string]handlers.Pinger{}
	if rt.postgres != nil {
		health["postgres"] = rt.postgres
	}
	if rt.sqlite != nil {
		health["sqlite"] = rt.sqlite
	}
	if rt.redis != nil {
		health["redis"] = rt.redis
	}

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:   handlers.NewHealthHandler(rt.cfg.App.Name, rt.cfg.App.Version, health),
		Catalog:  handlers.NewCatalogHandler(rt.coordinator, logger),
		Settings: handlers.NewSettingsHandler(rt.settings),
		Images:   handlers.NewImageHandler(rt.images),
		Chat: handlers.NewChatHandler(handlers.ChatDependencies{
			Conversation: rt.conversation,
			Tickets:      rt.tickets,
			Users:        rt.users,
			Referrals:    rt.referrals,
			Inactivity:   rt.inactivity,
			IsAdmin:      rt.cfg.Auth.IsAdmin,
			Logger:       logger,
		}),
		Tickets:         handlers.NewTicketsHandler(rt.tickets, rt.inactivity),
		AdminMiddleware: auth.NewAdminMiddleware(rt.adminToken),
		Metrics:         rt.metrics,
		StaticDir:       rt.cfg.App.StaticDir,
	})

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", rt.cfg.App.Addr()))
		listenErr <- app.Listen(rt.cfg.App.Addr())
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-listenErr:
		if err != nil {
			logger.Error("fiber listen", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	scheduler.Stop(shutdownCtx)
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	return nil
}
