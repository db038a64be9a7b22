package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"CurveLedger/internal/broadcast"
	"CurveLedger/internal/engine"
	"CurveLedger/internal/ingestion"
	"CurveLedger/internal/observability"
	"CurveLedger/internal/persistence"
	"CurveLedger/internal/query"
	"CurveLedger/internal/server"
)

// Config is loaded from environment variables. An empty Postgres DSN runs the
// service in-memory only, an empty NATS URL disables the outbound mirror.
type Config struct {
	PostgresDSN   string
	NATSURL       string
	HTTPAddr      string
	MetricsAddr   string
	IndexerToken  string
	MigrationsDir string
	PublishBuffer int
}

func DefaultConfig() Config {
	return Config{
		PostgresDSN:   envOrDefault("CURVE_POSTGRES_DSN", ""),
		NATSURL:       envOrDefault("CURVE_NATS_URL", ""),
		HTTPAddr:      envOrDefault("CURVE_HTTP_ADDR", ":8080"),
		MetricsAddr:   envOrDefault("CURVE_METRICS_ADDR", ":9091"),
		IndexerToken:  envOrDefault("CURVE_INDEXER_TOKEN", ""),
		MigrationsDir: envOrDefault("CURVE_MIGRATIONS_DIR", "migrations"),
		PublishBuffer: envIntOrDefault("CURVE_PUBLISH_CHAN_SIZE", 4096),
	}
}

func main() {
	log := observability.NewLogger("main")
	log.Info().Msg("curveledger starting")

	cfg := DefaultConfig()
	if cfg.IndexerToken == "" {
		log.Warn().Msg("CURVE_INDEXER_TOKEN not set, webhook auth disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()
	hub := broadcast.NewHub(log, metrics)

	opts := []engine.Option{engine.WithBroadcaster(hub)}

	// --- Postgres (optional) ---
	var db *sql.DB
	if cfg.PostgresDSN != "" {
		var err error
		db, err = sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres open")
		}
		defer db.Close()

		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			log.Fatal().Err(err).Msg("postgres ping")
		}
		log.Info().Msg("postgres connected")

		migrator := persistence.NewMigrator(db, cfg.MigrationsDir)
		if err := migrator.Up(ctx); err != nil {
			log.Fatal().Err(err).Msg("run migrations")
		}
		log.Info().Msg("migrations applied")

		opts = append(opts, engine.WithCommitter(persistence.NewWriter(db, log, metrics)))
	} else {
		log.Warn().Msg("CURVE_POSTGRES_DSN not set, running in-memory only")
	}

	// --- NATS outbound mirror (optional) ---
	errChan := make(chan error, 4)
	if cfg.NATSURL != "" {
		nc, js, err := ingestion.ConnectNATS(cfg.NATSURL, log)
		if err != nil {
			log.Fatal().Err(err).Msg("nats connect")
		}
		defer nc.Close()
		log.Info().Msg("nats connected")

		if err := ingestion.EnsureOutboundStream(ctx, js); err != nil {
			log.Fatal().Err(err).Msg("ensure outbound stream")
		}

		publisher := ingestion.NewOutboundPublisher(js, log, metrics, cfg.PublishBuffer)
		opts = append(opts, engine.WithMirror(publisher))
		go func() {
			errChan <- publisher.Run(ctx)
		}()
	}

	eng := engine.New(log, metrics, opts...)

	// --- Startup rebuild ---
	// The ledger in Postgres is the source of truth; in-memory state and the
	// version gate are replayed from it before the service accepts traffic.
	if db != nil {
		if err := eng.Rebuild(ctx, persistence.NewLoader(db)); err != nil {
			log.Fatal().Err(err).Msg("rebuild from postgres")
		}
	}

	// --- HTTP ---
	srv := server.New(cfg.HTTPAddr, cfg.MetricsAddr, log, &server.Deps{
		Query:         query.NewService(eng),
		Webhook:       ingestion.NewWebhook(eng, log, metrics, cfg.IndexerToken),
		Hub:           hub,
		HealthChecker: healthChecker,
		Metrics:       metrics,
	})

	go func() {
		errChan <- srv.Start(ctx)
	}()
	go func() {
		errChan <- srv.StartMetrics(ctx)
	}()

	healthChecker.SetReady(true)
	log.Info().
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Int("trades", eng.LedgerLen()).
		Msg("curveledger ready")

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		if err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("goroutine failed, shutting down")
		}
	}

	cancel()
	log.Info().Msg("curveledger shutdown complete")
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var i int
	if _, err := fmt.Sscanf(v, "%d", &i); err != nil {
		return defaultVal
	}
	return i
}
