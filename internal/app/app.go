package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/metagear/storefront/internal/domain/cart"
	"github.com/metagear/storefront/internal/domain/checkout"
	"github.com/metagear/storefront/internal/handler"
	"github.com/metagear/storefront/internal/identity"
	"github.com/metagear/storefront/internal/storage/memory"
	"github.com/metagear/storefront/internal/storage/postgres"
	"github.com/metagear/storefront/internal/storage/redis"
	"github.com/metagear/storefront/pkg/health"
	"github.com/metagear/storefront/pkg/httpmiddleware"
)

// sessionState groups the per-session stores.
type sessionState struct {
	carts    cart.Store
	notices  cart.Notifier
	denylist identity.Denylist
	close    func() error
}

// openSessionState connects to Redis when configured and falls back to
// process memory otherwise.
func openSessionState(ctx context.Context, lg *zap.Logger, cfg *Config, healthSvc *health.Health) (*sessionState, error) {
	if cfg.Redis.URL == "" {
		lg.Warn("Redis URL not set, keeping session state in memory")
		return &sessionState{
			carts:    memory.NewCartStore(),
			notices:  memory.NewNoticeStore(),
			denylist: memory.NewDenylist(),
			close:    func() error { return nil },
		}, nil
	}

	client, err := redis.NewClient(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, errors.Wrap(err, "connect redis")
	}
	healthSvc.Add(health.Readiness, health.Check{
		Name:    "redis",
		Timeout: 2 * time.Second,
		Func: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	})
	return &sessionState{
		carts:    redis.NewCartStore(client, cfg.Cart.TTL),
		notices:  redis.NewNoticeStore(client),
		denylist: redis.NewDenylist(client),
		close:    client.Close,
	}, nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	policy, err := cfg.Pricing.Policy()
	if err != nil {
		return err
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.Add(health.Readiness, health.Check{
		Name:    "postgres",
		Timeout: 5 * time.Second,
		Func:    health.PingCheck(pool),
	})
	healthSvc.Add(health.Liveness, health.Check{
		Name: "goroutines",
		Func: health.GoroutineCountCheck(10000),
	})
	healthSvc.Add(health.Liveness, health.Check{
		Name: "gc_pause",
		Func: health.GCMaxPauseCheck(time.Second),
	})

	state, err := openSessionState(ctx, lg, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer func() {
		if err := state.close(); err != nil {
			lg.Warn("Close session state", zap.Error(err))
		}
	}()

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	verifier, err := identity.NewVerifier(identity.Config{
		Secret:   []byte(cfg.Auth.Secret),
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		Leeway:   cfg.Auth.Leeway,
	}, state.denylist)
	if err != nil {
		return errors.Wrap(err, "create token verifier")
	}

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)

	// Domain services.
	carts := cart.NewService(state.carts, state.notices, productRepo)
	checkoutSvc, err := checkout.NewService(carts, productRepo, orderRepo, checkout.Options{
		Policy:         policy,
		Compensate:     cfg.Checkout.Compensate,
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create checkout service")
	}

	h := handler.NewHandler(
		handler.Config{ImageBaseURL: cfg.ImageBaseURL, Pricing: policy},
		productRepo,
		carts,
		checkoutSvc,
		orderRepo,
		verifier,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Instrument("storefront-api", m.MeterProvider(), m.TracerProvider()),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening",
		zap.String("addr", cfg.Addr),
		zap.Bool("redis", cfg.Redis.URL != ""),
		zap.Bool("compensate", cfg.Checkout.Compensate),
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
