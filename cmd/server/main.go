package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/MarcinMove37ai/vodmatch-sub001/internal/bridge"
	"github.com/MarcinMove37ai/vodmatch-sub001/internal/cleanup"
	"github.com/MarcinMove37ai/vodmatch-sub001/internal/config"
	"github.com/MarcinMove37ai/vodmatch-sub001/internal/gateway"
	"github.com/MarcinMove37ai/vodmatch-sub001/internal/hub"
	"github.com/MarcinMove37ai/vodmatch-sub001/internal/session"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file loaded")
	}

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}
	setupLogging(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := setupStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	eventHub := hub.New(hub.Config{
		SubscriberBuffer:  cfg.Hub.SubscriberBuffer,
		HeartbeatInterval: cfg.Hub.HeartbeatInterval.Std(),
	})
	go eventHub.Run(ctx)

	sink, closeBridge, err := setupEvents(cfg, eventHub)
	if err != nil {
		return err
	}
	defer closeBridge()

	app := session.NewApp(store, sink, session.Config{
		TTL:        cfg.Session.TTL.Std(),
		CodeLength: cfg.Session.CodeLength,
	})

	sweeper := cleanup.NewWorker(store, app, cleanup.Config{Interval: cfg.Cleanup.Interval.Std()}, clockwork.NewRealClock())
	go sweeper.Run(ctx)

	server := setupServer(cfg, eventHub, store, app)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Info().Int("port", cfg.Server.Port).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if os.Getenv("LOG_PRETTY") == "true" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func setupStore(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	if cfg.Database.Driver == "memory" {
		log.Warn().Msg("using in-memory session store; state is lost on restart")
		return session.NewMemoryStore(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := session.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	log.Info().Str("host", cfg.Database.Host).Str("database", cfg.Database.Database).Msg("database connected")
	return session.NewPostgresStore(pool), pool.Close, nil
}

// setupEvents picks the event sink: the local hub directly, or the NATS
// bridge so multiple instances share one event plane.
func setupEvents(cfg *config.Config, eventHub *hub.Hub) (session.EventSink, func(), error) {
	if !cfg.NATS.Enabled {
		return eventHub, func() {}, nil
	}

	bridgeCfg := bridge.DefaultConfig()
	bridgeCfg.URL = cfg.NATS.URL
	bridgeCfg.SubjectPrefix = cfg.NATS.SubjectPrefix

	nc, err := bridge.Connect(bridgeCfg)
	if err != nil {
		return nil, nil, err
	}
	consumer := bridge.NewConsumer(nc, eventHub, bridgeCfg)
	if err := consumer.Start(); err != nil {
		nc.Close()
		return nil, nil, err
	}
	closeFn := func() {
		consumer.Stop()
		nc.Close()
	}
	return bridge.NewPublisher(nc, bridgeCfg), closeFn, nil
}

func setupServer(cfg *config.Config, eventHub *hub.Hub, store session.Store, app *session.App) *http.Server {
	mux := http.NewServeMux()

	gateway.NewWebSocketHandler(eventHub, gateway.DefaultWSConfig()).RegisterRoutes(mux)
	gateway.NewStateHandler(store, eventHub).RegisterRoutes(mux)
	gateway.NewSessionHandler(app).RegisterRoutes(mux)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	handler := gateway.NewCORS(cfg.Server.AllowedOrigins).Handler(gateway.RequestLogger(mux))
	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler,
	}
}
