package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/schedkit/schedkit/internal/availability"
	"github.com/schedkit/schedkit/internal/booking"
	"github.com/schedkit/schedkit/internal/calendar"
	"github.com/schedkit/schedkit/internal/handlers"
	"github.com/schedkit/schedkit/internal/ingest"
	"github.com/schedkit/schedkit/internal/locking"
	"github.com/schedkit/schedkit/internal/outbox"
	"github.com/schedkit/schedkit/internal/storage"
	"github.com/schedkit/schedkit/libs/config"
	"github.com/schedkit/schedkit/libs/db"
	"github.com/schedkit/schedkit/libs/httpx"
	"github.com/schedkit/schedkit/libs/kafkax"
	otelx "github.com/schedkit/schedkit/libs/otel"
	"github.com/schedkit/schedkit/libs/runtime"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// engineStore is the union of what the engine and the HTTP layer need from
// storage. Both the Postgres and in-memory implementations satisfy it.
type engineStore interface {
	booking.Store
	handlers.Store
}

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "schedkit")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	var (
		store  engineStore
		pool   *db.Pool
		checks []runtime.ReadyCheck
	)
	dbURL := config.String("DATABASE_URL", "")
	if dbURL != "" {
		pool, err = db.Open(ctx, dbURL, db.Options{
			MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
			MinConns: int32(config.Int("DB_MIN_CONNS", 2)),
		})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()
		if err := storage.Migrate(ctx, pool); err != nil {
			logger.Error("migration failed", "err", err)
			panic(err)
		}
		store = storage.NewPostgresStore(pool)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	} else {
		// Single-process dev mode: everything in memory, no outbox, no
		// ingest.
		logger.Warn("DATABASE_URL not set, using in-memory storage")
		store = storage.NewMemoryStore()
	}

	var rdb *redis.Client
	var locker locking.Locker = locking.NewKeyedMutex()
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()
		locker = locking.NewRedisLocker(rdb, service, config.Duration("LOCK_TTL", 15*time.Second))
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
	}

	feeds := calendar.NewFeedSource(logger, config.Duration("ICS_FEED_TTL", 2*time.Minute))
	resolver := availability.NewResolver(store, logger, feeds)

	var events booking.BookingEvents
	var calendarOut booking.CalendarWriter
	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	if pool != nil {
		outboxRepo := outbox.NewRepository(pool)
		notifier := outbox.NewNotifier(outboxRepo, logger)
		events = notifier
		calendarOut = notifier

		publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   kafkaBrokers,
			PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
		})
		go publisher.Run(ctx)

		if kafkaBrokers != "" {
			consumer := ingest.NewConsumer(logger, ingest.NewInbox(pool), store.(*storage.PostgresStore), ingest.Config{
				Brokers: kafkaBrokers,
				GroupID: config.String("KAFKA_GROUP_ID", service),
			})
			go consumer.Run(ctx)
			checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)})
		}
	}

	committer := booking.NewCommitter(store, resolver, calendarOut, locker, logger)
	engine := booking.NewEngine(resolver, committer, store, events, logger)
	handler := handlers.NewSchedulingHandler(engine, store, logger)

	mux := runtime.NewBaseMux(checks...)
	mux.HandleFunc("/api/v1/public/availability", handler.Availability)
	mux.HandleFunc("/api/v1/public/book", handler.Book)
	mux.HandleFunc("/api/v1/bookings", handler.List)
	mux.HandleFunc("/api/v1/bookings/cancel", handler.Cancel)
	mux.HandleFunc("/api/v1/bookings/reschedule", handler.Reschedule)
	mux.HandleFunc("/api/v1/actors/feed.ics", handler.ActorFeed)

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("MAX_BODY_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 15*time.Second)),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: strings.Split(config.String("CORS_ALLOWED_ORIGINS", ""), ","),
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Idempotency-Key"},
			MaxAge:         10 * time.Minute,
		}),
	}
	rateLimit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if rdb != nil {
		limiter := httpx.NewRedisRateLimiter(rdb, rateLimit, time.Minute, service)
		middlewares = append(middlewares, limiter.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true)))
	} else {
		middlewares = append(middlewares, httpx.NewRateLimiter(rateLimit, time.Minute).Middleware())
	}

	httpHandler := httpx.Chain(mux, middlewares...)
	httpHandler = otelhttp.NewHandler(httpHandler, service)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
