package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-ordering/internal/analytics"
	analytics_api "ms-ordering/internal/analytics/api"
	"ms-ordering/internal/auth"
	"ms-ordering/internal/catalog"
	"ms-ordering/internal/config"
	"ms-ordering/internal/coupon"
	"ms-ordering/internal/coupon/coupon_api"
	coupondb "ms-ordering/internal/coupon/db"
	"ms-ordering/internal/database/migrations"
	"ms-ordering/internal/events"
	"ms-ordering/internal/kafka"
	"ms-ordering/internal/logger"
	"ms-ordering/internal/loyalty"
	"ms-ordering/internal/loyalty/loyalty_api"
	"ms-ordering/internal/order"
	"ms-ordering/internal/order/order_api"
	"ms-ordering/internal/session"
	sessionredis "ms-ordering/internal/session/redis"
	"ms-ordering/internal/session/session_api"
	"ms-ordering/internal/tables"
)

const (
	eventBuffer    = 1024
	sweepInterval  = time.Minute
	shutdownWindow = 10 * time.Second
)

func connectPostgres(cfg config.DatabaseConfig, log *logger.Logger) (*sql.DB, *bun.DB) {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "✅ PostgreSQL connection successful")
	return sqldb, bun.NewDB(sqldb, pgdialect.New())
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}

	// Pending-session expiry relies on expired-key events.
	if _, err := client.ConfigSet(ctx, "notify-keyspace-events", "Ex").Result(); err != nil {
		log.Warn("REDIS", fmt.Sprintf("Failed to enable keyspace notifications: %v", err))
	} else {
		log.Info("REDIS", "Keyspace notifications enabled for expired events")
	}

	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Addr, cfg.DB))
	return client
}

// requestLogger logs every request with its status and latency.
func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, fmt.Sprintf("%d", ww.Status()), time.Since(start).String())
		})
	}
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Ordering Service initialization")

	cfg, envLoaded := config.Load()
	if envLoaded {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	} else {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sqldb, bunDB := connectPostgres(cfg.Database, log)
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(sqldb, migrations.MigrateOptions{MigrationsDir: cfg.Database.MigrationsDir}, log)
		if err := runner.RunMigrations(); err != nil {
			log.Fatal("MIGRATE", fmt.Sprintf("Migrations failed: %v", err))
		}
	}

	redisClient := connectRedis(ctx, cfg.Redis, log)
	defer redisClient.Close()

	// --- Events ---
	broadcaster := events.NewBroadcaster()
	var sink events.Sink = broadcaster
	if cfg.Kafka.Enabled {
		topics := []string{cfg.Kafka.Topics.OrderEvents, cfg.Kafka.Topics.SessionEvents}
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, topics, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}

		orderProducer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.OrderEvents, log)
		sessionProducer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.SessionEvents, log)
		defer orderProducer.Close()
		defer sessionProducer.Close()
		sink = kafka.TopicRouter{Orders: orderProducer, Sessions: sessionProducer}

		// Every instance reads every event so its own SSE clients see them.
		host, _ := os.Hostname()
		groupID := fmt.Sprintf("%s-%s", cfg.Kafka.GroupID, host)
		for _, topic := range topics {
			consumer := kafka.NewConsumer(cfg.Kafka.Brokers, topic, groupID, log)
			defer consumer.Close()
			go consumer.Start(ctx, broadcaster.Publish)
		}
		log.Info("KAFKA", fmt.Sprintf("Kafka producers and consumers initialized (group %s)", groupID))
	} else {
		log.Warn("KAFKA", "Kafka disabled, events are delivered to local SSE clients only")
	}

	dispatcher := events.NewDispatcher(log, eventBuffer, sink)
	dispatcher.Start()

	// --- Auth ---
	sessionTokens := auth.NewSessionTokens(cfg.Session.TokenSecret, cfg.Session.TokenTTL)
	revocations := auth.NewRedisRevocations(redisClient, cfg.Session.TokenTTL)
	verifiers := auth.AnyOf{&auth.SessionVerifier{Tokens: sessionTokens, Revoked: revocations}}
	if oidcVerifier, err := auth.NewOIDCVerifier(ctx, cfg.Auth.OIDCIssuer); err != nil {
		log.Warn("AUTH", fmt.Sprintf("Staff authentication unavailable: %v", err))
	} else {
		verifiers = append(verifiers, oidcVerifier)
		log.Info("AUTH", fmt.Sprintf("Staff tokens verified against %s", cfg.Auth.OIDCIssuer))
	}

	codec, err := tables.NewCodec(cfg.Session.TableQRKey)
	if err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("Invalid table QR secret: %v", err))
	}

	// --- Services ---
	locks := sessionredis.NewRedis(redisClient, log)
	sessionService := session.NewSessionService(bunDB, locks, sessionTokens, revocations, dispatcher, cfg.Session.PendingTTL, log)
	orderService := order.NewOrderService(bunDB, &catalog.DB{Bun: bunDB}, dispatcher, cfg.Settlement, log)
	kitchenService := order.NewKitchenService(orderService)
	couponService := coupon.NewCouponService(&coupondb.DB{Bun: bunDB}, log)
	loyaltyService := loyalty.NewLoyaltyService(bunDB, log)
	analyticsService := analytics.NewService(bunDB)

	locks.SubscribePendingExpiry(ctx, func(ctx context.Context, sessionID string) {
		if err := sessionService.ExpirePending(ctx, sessionID); err != nil {
			log.Error("SESSION", fmt.Sprintf("Failed to expire session %s: %v", sessionID, err))
		}
	})
	go sessionService.RunSweeper(ctx, sweepInterval)

	// --- Handlers ---
	sessionHandler := session_api.NewHandler(sessionService, codec, cfg.Session.TableJoinURL, log)
	orderHandler := order_api.NewHandler(orderService, kitchenService, log)
	sseHandler := order_api.NewSSEHandler(log, broadcaster)
	couponHandler := coupon_api.NewHandler(couponService, log)
	loyaltyHandler := loyalty_api.NewHandler(loyaltyService, log)
	analyticsHandler := analytics_api.NewHandler(analyticsService, log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := bunDB.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		// --- Public Routes ---
		sessionHandler.RegisterPublicRoutes(r)

		// --- Protected Routes ---
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(verifiers, log))

			sessionHandler.RegisterRoutes(r)
			orderHandler.RegisterRoutes(r)
			couponHandler.RegisterRoutes(r)
			loyaltyHandler.RegisterRoutes(r)
			r.Get("/sessions/me/events", sseHandler.HandleSessionEvents)

			r.Route("/staff", func(r chi.Router) {
				r.Use(auth.RequireStaff)
				sessionHandler.RegisterStaffRoutes(r)
				orderHandler.RegisterStaffRoutes(r)
				couponHandler.RegisterStaffRoutes(r)
				analyticsHandler.RegisterStaffRoutes(r)
				r.Get("/branches/{branchId}/events", sseHandler.HandleBranchEvents)
			})
		})
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Ordering Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), shutdownWindow)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	}
	dispatcher.Close()
	log.Info("HTTP", "✅ Ordering Service shutdown complete")
}
