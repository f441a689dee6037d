package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"callrep/internal/audit"
	"callrep/internal/auth"
	"callrep/internal/calls"
	"callrep/internal/catalog"
	"callrep/internal/config"
	"callrep/internal/httpapi"
	"callrep/internal/metrics"
	"callrep/internal/notify"
	"callrep/internal/reporting"
	"callrep/internal/session"
	"callrep/internal/telephony"
	"callrep/internal/voiceflow"
	"callrep/pkg/logger"
	"callrep/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

type serveOptions struct {
	Memory   bool
	SeedFile string
}

type app struct {
	engine *gin.Engine
	calls  *calls.Service
	// sessions is set only for in-memory sessions that expire.
	sessions *session.MemoryStore
	closers  []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// buildApp wires storage, services and routes. Nothing here reads the environment.
func buildApp(ctx context.Context, cfg config.Config, log *slog.Logger, opts serveOptions) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("auth init failed: %w", err)
	}

	var (
		db       *sql.DB
		catRepo  catalog.Repository
		callRepo interface {
			calls.Repository
			reporting.Repository
		}
		auditRepo audit.Repository
	)
	if opts.Memory {
		catRepo = catalog.NewMemoryRepo()
		callRepo = calls.NewMemoryRepo()
		auditRepo = audit.NewMemoryRepo()
	} else {
		db, err = utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			return nil, fmt.Errorf("postgres init failed: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		catRepo = catalog.NewPostgresRepo(db)
		callRepo = calls.NewPostgresRepo(db)
		auditRepo = audit.NewPostgresRepo(db)
	}

	if opts.SeedFile != "" {
		seed, err := catalog.LoadSeedFile(opts.SeedFile)
		if err != nil {
			return nil, err
		}
		if err := seed.Apply(ctx, catRepo); err != nil {
			return nil, err
		}
		log.Info("catalog seeded", "file", opts.SeedFile)
	}

	var rdb *redis.Client
	if cfg.NeedsRedis() {
		rdb, err = utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
		if err != nil {
			return nil, fmt.Errorf("redis init failed: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
	}

	var sessions session.Store
	if cfg.Calls.SessionStore == config.SessionStoreRedis {
		sessions = session.NewRedisStore(rdb, cfg.Calls.SessionTTL)
	} else {
		ms := session.NewMemoryStore(session.WithTTL(cfg.Calls.SessionTTL))
		if cfg.Calls.SessionTTL > 0 {
			a.sessions = ms
		}
		sessions = ms
	}

	var limiter calls.Limiter = calls.NoLimit{}
	if cfg.Calls.ConcurrencyLimit > 0 {
		limiter = calls.NewRedisLimiter(rdb, cfg.Calls.ConcurrencyLimit, time.Hour)
	}

	var notifier calls.Notifier
	if cfg.Calls.PeerAPIURL != "" {
		notifier = notify.NewHTTPNotifier(cfg.Calls.PeerAPIURL, authManager)
	}

	provider := telephony.NewTwilioProvider(telephony.TwilioConfig{
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
		FromNumber: cfg.Twilio.PhoneNumber,
		APIBase:    cfg.Twilio.APIBase,
	})

	callSvc := calls.NewService(calls.Deps{
		Calls:           callRepo,
		Catalog:         catRepo,
		Sessions:        sessions,
		Provider:        provider,
		Limiter:         limiter,
		Notifier:        notifier,
		Audit:           audit.NewService(auditRepo),
		Metrics:         m,
		Log:             log,
		PublicURL:       cfg.App.PublicURL,
		CallerName:      cfg.Calls.CallerName,
		DispatchTimeout: cfg.Calls.DispatchTimeout,
	})
	a.calls = callSvc

	engine := voiceflow.NewEngine(sessions, cfg.App.PublicURL,
		voiceflow.WithVoice(cfg.Twilio.Voice),
		voiceflow.WithLogger(log),
		voiceflow.WithMetrics(m),
	)

	var signatureMW gin.HandlerFunc
	if cfg.Twilio.ValidateSignature {
		signatureMW = telephony.RequireTwilioSignature(cfg.Twilio.AuthToken, cfg.App.PublicURL)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(m.Middleware())

	registerRoutes(r, routeDeps{
		API: httpapi.Handlers{
			Calls:   callSvc,
			Catalog: catalog.NewService(catRepo),
			Reports: reporting.NewService(callRepo),
		},
		Webhooks: telephony.WebhookHandler{
			Flow:    engine,
			Events:  callSvc,
			Metrics: m,
		},
		AuthMW:      auth.RequireAccessToken(authManager),
		SignatureMW: signatureMW,
		Gatherer:    reg,
		Health: func(ctx context.Context) error {
			if db != nil {
				if err := utils.HealthCheck(ctx, db, 2*time.Second); err != nil {
					return err
				}
			}
			if rdb != nil {
				return rdb.Ping(ctx).Err()
			}
			return nil
		},
	})
	a.engine = r

	ok = true
	return a, nil
}

func serve(ctx context.Context, cfg config.Config, opts serveOptions) error {
	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.App.PublicURL == "" {
		log.Warn("PUBLIC_URL is not set; calls will fail until it is configured")
	}

	a, err := buildApp(ctx, cfg, log, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.sessions != nil {
		go sweepSessions(ctx, a.sessions, cfg.Calls.SessionTTL, log)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           a.engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "memory", opts.Memory)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error("http server failed", "err", err)
		return err
	}
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	// Let in-flight originations record their outcome before storage closes.
	a.calls.Wait()
	log.Info("shutdown complete")
	return nil
}

// sweepSessions is the one background ticker in the process. It runs only for
// in-memory sessions with SESSION_TTL > 0 and stops with ctx.
func sweepSessions(ctx context.Context, s *session.MemoryStore, ttl time.Duration, log *slog.Logger) {
	interval := ttl / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.Sweep(); n > 0 {
				log.Info("expired flow sessions removed", "count", n)
			}
		}
	}
}
