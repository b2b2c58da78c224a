package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smartq/internal/auth"
	"smartq/internal/config"
	"smartq/internal/httpapi"
	"smartq/internal/logging"
	"smartq/internal/notify"
	"smartq/internal/queue"
	"smartq/internal/realtime"
	"smartq/internal/store"
	"smartq/internal/store/memory"
	"smartq/internal/store/postgres"
	"smartq/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	shutdownTelemetry := telemetry.Setup(telemetry.Config{
		ServiceName: "smartq",
		Version:     cfg.Version,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		SampleRatio: cfg.TraceSampleRatio,
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	st, closeStore := openStore(cfg)
	defer closeStore()

	provider := notify.NewProvider(notify.ProviderConfig{
		Kind:         cfg.PushProvider,
		WebhookURL:   cfg.PushWebhookURL,
		WebhookToken: cfg.PushWebhookToken,
		Timeout:      cfg.PushTimeout,
	}, logging.Component("push"))
	dispatcher := notify.NewDispatcher(provider, notify.Options{
		Timeout:          cfg.PushTimeout,
		FailureThreshold: uint32(max(cfg.PushFailureLimit, 1)),
		Logger:           logging.Component("push"),
	})

	hub := realtime.NewHub(logging.Component("realtime"))
	var publisher realtime.Publisher
	if cfg.NATSURL != "" {
		nc, err := realtime.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix)
		if err != nil {
			logging.Fatal().Err(err).Str("url", cfg.NATSURL).Msg("nats connect")
		}
		defer nc.Close()
		publisher = nc
	}
	broadcaster, err := realtime.NewBroadcaster(hub, publisher, logging.Component("realtime"))
	if err != nil {
		logging.Fatal().Err(err).Msg("broadcaster")
	}

	engine, err := queue.NewEngine(st, dispatcher, broadcaster, queue.Options{
		Retention:           cfg.TicketRetention,
		AvgMinutesPerTicket: cfg.AvgMinutesPerTicket,
		UpcomingLimit:       cfg.UpcomingNotifyLimit,
		DefaultCounters:     cfg.DefaultCounters,
		Logger:              logging.Component("queue"),
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("queue engine")
	}

	tokens, err := auth.NewManager(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		logging.Fatal().Err(err).Msg("JWT_SECRET must be set")
	}
	admins := auth.NewService(st, tokens, logging.Component("auth"))

	handler := httpapi.NewHandler(httpapi.Options{
		Queue:     engine,
		Auth:      admins,
		Health:    st,
		SockJS:    realtime.NewSockJSHandler("/realtime", hub),
		WebSocket: realtime.NewWebSocketHandler(hub, cfg.FrontendOrigins),
		Origins:   cfg.FrontendOrigins,
		RateLimit: httpapi.RateLimitConfig{
			PerMinute: cfg.RateLimitPerMinute,
			Burst:     cfg.RateLimitBurst,
		},
		Logger: logging.Component("http"),
	})

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     otelhttp.NewHandler(handler.Routes(), "smartq"),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logging.Info().Str("addr", server.Addr).Str("store", cfg.StoreBackend).Msg("smartq listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	purgeCtx, stopPurge := context.WithCancel(context.Background())
	go runPurge(purgeCtx, engine, cfg.PurgeInterval)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	stopPurge()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logging.Error().Err(err).Msg("shutdown error")
	}
	dispatcher.Wait()
	logging.Info().Msg("smartq stopped")
}

func openStore(cfg config.Config) (store.Store, func()) {
	if cfg.StoreBackend != config.BackendPostgres {
		logging.Warn().Msg("using in-memory store; data is lost on restart")
		return memory.NewStore(), func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logging.Fatal().Err(err).Msg("db connect")
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		logging.Fatal().Err(err).Msg("db migrate")
	}
	return postgres.NewStore(pool), pool.Close
}

// runPurge deletes expired tickets and old activity on every tick until ctx ends.
func runPurge(ctx context.Context, engine *queue.Engine, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purgeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			res, err := engine.PurgeExpired(purgeCtx)
			cancel()
			if err != nil {
				logging.Error().Err(err).Msg("purge expired")
				continue
			}
			if res.Tickets > 0 || res.Activities > 0 {
				logging.Debug().Int64("tickets", res.Tickets).Int64("activities", res.Activities).Msg("purge tick")
			}
		}
	}
}
