package cli

import (
	"context"
	"fmt"

	"boardflow/internal/automation"
	"boardflow/internal/config"
	"boardflow/internal/database"
	"boardflow/internal/handlers"
	"boardflow/internal/metrics"
	"boardflow/internal/middleware"
	"boardflow/internal/notify"
	"boardflow/internal/repository"
	"boardflow/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"
)

// application holds the wired services of one server process.
type application struct {
	cfg     *config.Config
	db      *gorm.DB
	logger  *logrus.Logger
	metrics *metrics.Metrics

	hub     *notify.Hub
	queue   *automation.Queue
	engine  *automation.Engine
	items   *services.ItemService
	boards  *services.BoardService
	updates *services.UpdateService
	notes   *services.NotificationService
	rules   *services.RuleService
	catalog *services.CatalogService
}

// newApplication wires storage, the automation engine and the services.
// mailer may be nil, in which case it is built from cfg.Mail.
func newApplication(cfg *config.Config, db *gorm.DB, logger *logrus.Logger, mailer automation.Mailer) (*application, error) {
	if mailer == nil {
		var err error
		if mailer, err = buildMailer(cfg.Mail, logger); err != nil {
			return nil, err
		}
	}

	m := metrics.New()
	ruleRepo := repository.NewRuleRepository(db)
	boardRepo := repository.NewBoardRepository(db, cfg.Automation.ColumnCacheTTL)

	hub := notify.NewHub(logger)
	items := services.NewItemService(db, boardRepo, logger)
	updates := services.NewUpdateService(db, logger)
	notes := services.NewNotificationService(db, hub, logger)

	registry := automation.NewDefaultRegistry(automation.Deps{
		Items:    items,
		Boards:   boardRepo,
		Updates:  updates,
		Notifier: notes,
		Mailer:   mailer,
		Logger:   logger,
	})

	queue := automation.NewQueue(cfg.Automation.QueueSize, registry, ruleRepo, items, ruleRepo, m, logger)
	if cfg.Automation.QueueTimeout > 0 {
		queue.SetTimeout(cfg.Automation.QueueTimeout)
	}
	engine := automation.NewEngine(ruleRepo, ruleRepo, registry, logger,
		automation.WithActionTimeout(cfg.Automation.ActionTimeout),
		automation.WithRecorder(m),
		automation.WithQueue(queue),
	)
	items.SetEngine(engine)

	return &application{
		cfg:     cfg,
		db:      db,
		logger:  logger,
		metrics: m,
		hub:     hub,
		queue:   queue,
		engine:  engine,
		items:   items,
		boards:  services.NewBoardService(boardRepo, logger),
		updates: updates,
		notes:   notes,
		rules:   services.NewRuleService(ruleRepo, boardRepo, registry, logger),
		catalog: services.NewCatalogService(db, registry, logger),
	}, nil
}

func buildMailer(cfg config.MailConfig, logger *logrus.Logger) (automation.Mailer, error) {
	if cfg.URL == "" {
		return notify.NopMailer{Logger: logger}, nil
	}
	mailer, err := notify.NewMailer(cfg.URL, cfg.From, cfg.Timeout, logger)
	if err != nil {
		return nil, fmt.Errorf("mail: %w", err)
	}
	return mailer, nil
}

// start launches the background workers. They stop when ctx is done or
// stop is called.
func (a *application) start(ctx context.Context) {
	go a.hub.Run()
	a.queue.Start(a.cfg.Automation.QueueWorkers)
	a.rules.StartLogRetention(ctx, a.cfg.Automation.LogRetentionDays, 0)
}

func (a *application) stop(ctx context.Context) {
	if err := a.queue.Stop(ctx); err != nil {
		a.logger.Warnf("automation queue drain interrupted: %v", err)
	}
	a.hub.Stop()
}

func (a *application) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	if a.cfg.Monitoring.Tracing.Enabled {
		r.Use(otelgin.Middleware(a.cfg.Monitoring.Tracing.ServiceName))
	}
	r.Use(middleware.CORSMiddleware(a.cfg.Security.CORS))
	r.Use(middleware.RateLimitMiddleware(a.cfg.Security, a.metrics))

	handlers.RegisterHealthRoutes(r, handlers.NewHealthHandler(
		Version,
		func(ctx context.Context) error { return database.Ping(ctx, a.db) },
		a.queue,
		a.hub.ClientCount,
	))
	if a.cfg.Monitoring.Enabled && a.cfg.Monitoring.MetricsPath != "" {
		r.GET(a.cfg.Monitoring.MetricsPath, gin.WrapH(a.metrics.Handler()))
	}

	api := r.Group("/api")
	handlers.RegisterAutomationRoutes(api, handlers.NewAutomationHandler(a.rules, a.catalog))
	handlers.RegisterItemRoutes(api, handlers.NewItemHandler(a.items, a.updates))
	handlers.RegisterBoardRoutes(api, handlers.NewBoardHandler(a.boards))

	v1 := api.Group("/v1")
	handlers.RegisterWebSocketRoutes(v1, handlers.NewWebSocketHandler(a.hub))
	return r
}
