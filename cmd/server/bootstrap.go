package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/happycat/internal/api"
	"github.com/charlesng35/happycat/internal/app"
	"github.com/charlesng35/happycat/internal/app/maintenance"
	iauth "github.com/charlesng35/happycat/internal/auth"
	"github.com/charlesng35/happycat/internal/auth/providers"
	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/database"
	"github.com/charlesng35/happycat/internal/monitoring"
	"github.com/charlesng35/happycat/internal/monitoring/checks"
	"github.com/charlesng35/happycat/internal/payment"
	"github.com/charlesng35/happycat/internal/queue"
	"github.com/charlesng35/happycat/internal/realtime"
	"github.com/charlesng35/happycat/internal/services"
	"github.com/charlesng35/happycat/internal/speech"
	"github.com/charlesng35/happycat/pkg/mail"
)

const (
	memoryCleanupInterval = time.Minute
	maxPendingJobs        = 1000
	healthCheckTimeout    = 2 * time.Second
)

// runtimeStack owns every long-lived component started by the server.
type runtimeStack struct {
	db      *gorm.DB
	store   cache.Store
	redis   *cache.RedisStore
	queue   *queue.Queue
	cleaner *maintenance.Cleaner
	stopJob context.CancelFunc
	jobDone chan struct{}
	router  api.Deps
	log     *zap.Logger
}

func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (_ *runtimeStack, err error) {
	rt := &runtimeStack{log: log}
	defer func() {
		if err != nil {
			rt.Shutdown(context.Background())
		}
	}()

	if rt.db, err = initialiseDatabase(ctx, cfg, log); err != nil {
		return nil, err
	}
	if rt.store, err = rt.initialiseCache(ctx, cfg); err != nil {
		return nil, err
	}
	aside := cache.NewAside(rt.store, cfg.Cache.AsideOptions()...)

	jwtService, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}
	tokenCfg := iauth.TokenConfig{CacheTTL: cfg.Cache.TokenTTL}
	if cfg.Cache.TokenTTL > 0 {
		tokenCfg.Cache = iauth.NewTokenCache(rt.store)
	}
	tokens, err := iauth.NewTokenService(rt.db, jwtService, tokenCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise token service: %w", err)
	}

	if rt.queue, err = queue.Open(cfg.Queue.Dir); err != nil {
		return nil, fmt.Errorf("open job queue: %w", err)
	}
	if err := rt.startWorker(ctx, cfg); err != nil {
		return nil, err
	}

	registry, err := providerRegistry(cfg)
	if err != nil {
		return nil, err
	}

	hub := realtime.NewHub()
	deps := api.ServiceDeps{
		DB:        rt.db,
		Aside:     aside,
		Tokens:    tokens,
		Publisher: hub,
		Jobs:      rt.queue,
		Providers: registry,
	}
	if cfg.Payment.Enabled() {
		gateway, gwErr := payment.NewGateway(cfg.Payment.GatewayConfig())
		if gwErr != nil {
			return nil, fmt.Errorf("initialise payment gateway: %w", gwErr)
		}
		deps.Gateway = gateway
	} else {
		log.Info("payment gateway not configured; payment routes disabled")
	}
	if speechConfigured(cfg.Speech) {
		deps.Assessor = speech.NewClient(cfg.Speech.ClientConfig())
	} else {
		log.Info("speech provider not configured; pronunciation disabled")
	}

	svc, err := api.NewServices(deps)
	if err != nil {
		return nil, fmt.Errorf("initialise services: %w", err)
	}

	if cfg.Maintenance.Enabled {
		if err := rt.startMaintenance(cfg, tokens, svc.Purchases); err != nil {
			return nil, err
		}
	}

	rt.router = api.Deps{
		Config:   cfg,
		Tokens:   tokens,
		Counters: rt.store,
		Hub:      hub,
		Health:   rt.health(),
		Services: svc,
	}
	return rt, nil
}

func (rt *runtimeStack) initialiseCache(ctx context.Context, cfg *app.Config) (cache.Store, error) {
	switch cfg.Cache.DriverName() {
	case app.CacheDriverRedis:
		store, err := cache.NewRedisStore(ctx, cfg.Cache.RedisClientConfig())
		if err != nil {
			return nil, fmt.Errorf("connect redis cache: %w", err)
		}
		rt.redis = store
		rt.log.Info("redis cache connected", zap.String("addr", cfg.Cache.Redis.Address))
		return store, nil
	case app.CacheDriverDatabase:
		rt.log.Info("database cache enabled")
		return cache.NewDatabaseStore(rt.db), nil
	default:
		return cache.NewMemoryStore(memoryCleanupInterval), nil
	}
}

func (rt *runtimeStack) startWorker(ctx context.Context, cfg *app.Config) error {
	worker := queue.NewWorker(rt.queue, cfg.Queue.WorkerConfig())
	if cfg.Email.SMTP.Enabled {
		mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
		if err != nil {
			return fmt.Errorf("initialise mailer: %w", err)
		}
		queue.RegisterMailJobs(worker, mailer)
	} else {
		rt.log.Warn("smtp disabled; queued emails will not be delivered")
	}

	jobCtx, cancel := context.WithCancel(ctx)
	rt.stopJob = cancel
	rt.jobDone = make(chan struct{})
	go func() {
		defer close(rt.jobDone)
		worker.Run(jobCtx)
	}()
	return nil
}

func (rt *runtimeStack) startMaintenance(cfg *app.Config, tokens *iauth.TokenService, purchases *services.PurchaseService) error {
	opts := []maintenance.Option{
		maintenance.WithSchedule(cfg.Maintenance.Schedule),
		maintenance.WithTokenRetention(cfg.Maintenance.TokenRetention),
		maintenance.WithSubscriptionExpirer(purchases),
	}
	if dbStore, ok := rt.store.(*cache.DatabaseStore); ok {
		opts = append(opts, maintenance.WithCachePurger(dbStore))
	}
	rt.cleaner = maintenance.NewCleaner(rt.db, tokens, opts...)
	if err := rt.cleaner.Start(); err != nil {
		return fmt.Errorf("start maintenance jobs: %w", err)
	}
	return nil
}

func (rt *runtimeStack) health() *monitoring.Health {
	health := monitoring.NewHealth()
	health.Register(checks.Database(rt.db, healthCheckTimeout))
	var redis checks.Pinger
	if rt.redis != nil {
		redis = rt.redis
	}
	health.Register(
		checks.Redis(redis, healthCheckTimeout),
		checks.Queue(rt.queue, maxPendingJobs),
	)
	return health
}

// Shutdown stops background work and releases connections. It is safe to
// call on a partially initialised stack.
func (rt *runtimeStack) Shutdown(ctx context.Context) {
	if rt == nil {
		return
	}
	if rt.cleaner != nil {
		stopCtx := rt.cleaner.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}
	if rt.stopJob != nil {
		rt.stopJob()
	}
	// The worker must be idle before the queue closes.
	if rt.jobDone != nil {
		select {
		case <-rt.jobDone:
		case <-ctx.Done():
			rt.log.Warn("queue worker still running at shutdown deadline")
		}
	}

	var err error
	if rt.queue != nil {
		err = multierr.Append(err, rt.queue.Close())
	}
	if rt.redis != nil {
		err = multierr.Append(err, rt.redis.Close())
	}
	if rt.db != nil {
		err = multierr.Append(err, database.Close(rt.db))
	}
	if err != nil {
		rt.log.Warn("shutdown released resources with errors", zap.Error(err))
	}
}

func initialiseDatabase(ctx context.Context, cfg *app.Config, log *zap.Logger) (*gorm.DB, error) {
	dbCfg := cfg.Database.ClientConfig()
	db, err := database.Connect(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := database.AutoMigrateAndSeed(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	driver := dbCfg.Driver
	if driver == "" {
		driver = "sqlite"
	}
	log.Info("database connected", zap.String("driver", driver))
	return db, nil
}

func providerRegistry(cfg *app.Config) (*providers.Registry, error) {
	if !cfg.Auth.GoogleEnabled() && !cfg.Auth.FacebookEnabled() {
		return nil, nil
	}

	registry := providers.NewRegistry()
	if cfg.Auth.GoogleEnabled() {
		google, err := providers.NewGoogleVerifier(cfg.Auth.GoogleVerifierConfig())
		if err != nil {
			return nil, fmt.Errorf("initialise google sign-in: %w", err)
		}
		if err := registry.Register(google); err != nil {
			return nil, err
		}
	}
	if cfg.Auth.FacebookEnabled() {
		facebook, err := providers.NewFacebookClient(cfg.Auth.FacebookClientConfig())
		if err != nil {
			return nil, fmt.Errorf("initialise facebook sign-in: %w", err)
		}
		if err := registry.Register(facebook); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func speechConfigured(cfg app.SpeechConfig) bool {
	return strings.TrimSpace(cfg.Region) != "" && strings.TrimSpace(cfg.SubscriptionKey) != ""
}

func ensureSecretsPresent(cfg *app.Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Auth.JWT.Secret = strings.TrimSpace(cfg.Auth.JWT.Secret)
	if cfg.Auth.JWT.Secret == "" {
		return errors.New("auth.jwt.secret must be configured")
	}
	return nil
}
