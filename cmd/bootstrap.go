package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/orderdesk/internal/auth"
	"github.com/spec-kit/orderdesk/internal/catalog"
	"github.com/spec-kit/orderdesk/internal/config"
	"github.com/spec-kit/orderdesk/internal/events"
	"github.com/spec-kit/orderdesk/internal/imageproxy"
	"github.com/spec-kit/orderdesk/internal/notify"
	"github.com/spec-kit/orderdesk/internal/observability"
	"github.com/spec-kit/orderdesk/internal/persistence"
	"github.com/spec-kit/orderdesk/internal/repository"
	"github.com/spec-kit/orderdesk/internal/service"
	"github.com/spec-kit/orderdesk/internal/session"
)

type repositories struct {
	tickets   repository.TicketRepository
	users     repository.UserRepository
	referrals repository.ReferralRepository
	config    repository.ConfigRepository
}

// runtime holds the wired services shared by every command.
type runtime struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics

	postgres *persistence.Postgres
	sqlite   *persistence.SQLite
	redis    *persistence.Redis

	adminToken   auth.AdminToken
	tickets      *service.TicketService
	users        *service.UserService
	referrals    *service.ReferralService
	inactivity   *service.InactivityService
	conversation *service.ConversationService
	settings     *service.SettingsService
	coordinator  *catalog.Coordinator
	images       *imageproxy.Proxy
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, logger, nil
}

func bootstrap(ctx context.Context) (*runtime, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger, metrics: observability.NewMetrics()}

	repos, err := rt.openStore(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}

	var sessions session.Store
	rt.redis = persistence.NewRedis(ctx, cfg.Redis, logger)
	if rt.redis != nil {
		sessions = session.NewRedisStore(rt.redis.Client, cfg.Redis.SessionTTL)
	} else {
		sessions = session.NewMemoryStore(cfg.Redis.SessionTTL, nil)
	}

	var notifier notify.Notifier
	if cfg.Notification.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Notification.WebhookURL, cfg.Notification.Timeout, logger)
	} else {
		logger.Warn("NOTIFY_WEBHOOK_URL not provided; outbound chat messages are only logged")
		notifier = notify.NewLogNotifier(logger)
	}

	dispatcher := events.NewInMemoryDispatcher()
	targets := service.NewChatTargets(cfg.Notification, cfg.Auth)
	service.NewNotificationService(dispatcher, notifier, targets, logger).RegisterHandlers()

	rt.adminToken = auth.NewAdminToken(cfg.Auth.BotToken, cfg.Auth.AdminToken)
	rt.tickets = service.NewTicketService(service.TicketDependencies{
		TicketRepo:   repos.tickets,
		UserRepo:     repos.users,
		ReferralRepo: repos.referrals,
		ConfigRepo:   repos.config,
		Dispatcher:   dispatcher,
		Metrics:      rt.metrics,
		Logger:       logger,
	})
	rt.users = service.NewUserService(repos.users, dispatcher, logger)
	rt.referrals = service.NewReferralService(service.ReferralDependencies{
		ReferralRepo: repos.referrals,
		UserRepo:     repos.users,
		Logger:       logger,
	})
	rt.inactivity = service.NewInactivityService(service.InactivityDependencies{
		TicketRepo:    repos.tickets,
		TicketService: rt.tickets,
		Dispatcher:    dispatcher,
		Metrics:       rt.metrics,
		Logger:        logger,
		Policy:        cfg.Tickets,
	})
	rt.conversation = service.NewConversationService(service.ConversationDependencies{
		Sessions:      sessions,
		TicketService: rt.tickets,
		Dispatcher:    dispatcher,
		Notifier:      notifier,
		Targets:       targets,
		Logger:        logger,
	})
	rt.settings = service.NewSettingsService(service.SettingsDependencies{
		ConfigRepo: repos.config,
		FilePath:   cfg.Settings.FilePath,
		Logger:     logger,
	})

	rt.coordinator = catalog.NewCoordinator(catalog.CoordinatorDependencies{
		Fetcher: &catalog.ChromeFetcher{
			URL:             cfg.Catalog.SourceURL,
			Expression:      cfg.Catalog.SourceExpression,
			ExecPath:        cfg.Catalog.ChromePath,
			Timeout:         cfg.Catalog.FetchTimeout,
			ImagePathPrefix: cfg.Catalog.ImagePathPrefix,
		},
		MirrorPath: cfg.Catalog.MirrorPath,
		Cooldown:   cfg.Catalog.FailureCooldown,
		Metrics:    rt.metrics,
		Logger:     logger,
	})
	rt.images = imageproxy.New(imageproxy.Config{
		CacheDir: cfg.Images.CacheDir,
		Origin:   cfg.Images.Origin,
		Timeout:  cfg.Images.FetchTimeout,
		MinBytes: cfg.Images.MinBytes,
	}, nil, rt.metrics, logger)

	return rt, nil
}

// openStore connects Postgres when a DSN is configured and falls back to the
// embedded SQLite file otherwise.
func (rt *runtime) openStore(ctx context.Context) (*repositories, error) {
	if rt.cfg.Postgres.DSN == "" {
		db, err := persistence.NewSQLite(rt.cfg.SQLite, repository.GormModels(), rt.logger)
		if err != nil {
			return nil, err
		}
		rt.sqlite = db
		return &repositories{
			tickets:   repository.NewGormTicketRepository(db.DB),
			users:     repository.NewGormUserRepository(db.DB),
			referrals: repository.NewGormReferralRepository(db.DB),
			config:    repository.NewGormConfigRepository(db.DB),
		}, nil
	}

	pg, err := persistence.NewPostgres(ctx, rt.cfg.Postgres, rt.logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	rt.postgres = pg
	if rt.cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), rt.cfg.Postgres.MigrationsDir, rt.logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	pool := pg.PoolHandle()
	return &repositories{
		tickets:   repository.NewTicketRepository(pool),
		users:     repository.NewUserRepository(pool),
		referrals: repository.NewReferralRepository(pool),
		config:    repository.NewConfigRepository(pool),
	}, nil
}

// Close releases connections in reverse order of acquisition.
func (rt *runtime) Close() {
	rt.redis.Close()
	rt.postgres.Close()
	if err := rt.sqlite.Close(); err != nil {
		rt.logger.Warn("close sqlite", zap.Error(err))
	}
	_ = rt.logger.Sync()
}
