package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"google.golang.org/grpc"

	"vetclinic/backend/internal/availability"
	"vetclinic/backend/internal/config"
	"vetclinic/backend/internal/domain"
	"vetclinic/backend/internal/events"
	"vetclinic/backend/internal/service/appointments"
	"vetclinic/backend/internal/store/postgres"
	grpcapi "vetclinic/backend/internal/transport/grpc"
	httpapi "vetclinic/backend/internal/transport/http"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, log)
		},
	}
}

func openDatabase(ctx context.Context, cfg config.Config, log *slog.Logger) (*bun.DB, error) {
	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.Options{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		SlowQuery:       cfg.DBSlowQuery,
		Log:             log,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		return nil, err
	}
	return db, nil
}

func runServer(parent context.Context, cfg config.Config, log *slog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting",
		slog.String("http_addr", cfg.HTTPAddr()),
		slog.String("grpc_addr", cfg.GRPCAddr()),
		slog.Bool("grpc_enabled", cfg.GRPCEnabled),
		slog.String("cache_backend", cfg.CacheBackend),
		slog.String("log_level", cfg.LogLevel),
	)

	hours, err := cfg.ClinicHours()
	if err != nil {
		return err
	}

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}()

	cache, closeCache, err := buildCache(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeCache()

	repo := postgres.NewAppointmentRepo(db)
	clinics := postgres.NewClinicRepo(db)
	registry, err := availability.NewRegistry(hours, clinics, func(clinicID uuid.UUID) availability.BookingLookup {
		return availability.BookingLookupFunc(func(ctx context.Context, year int, month time.Month) ([]domain.BookedAppointment, error) {
			return repo.ListMonthBookings(ctx, clinicID, year, month)
		})
	}, cache, log)
	if err != nil {
		return err
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.RabbitEnabled {
		conn, err := amqp.Dial(cfg.RabbitURL)
		if err != nil {
			log.Error("rabbitmq connection failed", slog.Any("err", err))
			return fmt.Errorf("dial rabbitmq: %w", err)
		}
		defer conn.Close()

		pub, err := events.NewRabbitPublisher(conn, cfg.RabbitExchange, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := pub.Close(); err != nil {
				log.Warn("rabbitmq publisher close failed", slog.Any("err", err))
			}
		}()
		publisher = pub

		listener := events.NewListener(registry, log)
		dial := func(context.Context) (*amqp.Connection, error) { return amqp.Dial(cfg.RabbitURL) }
		go func() {
			if err := listener.RunWithReconnect(ctx, dial, cfg.RabbitExchange, cfg.RabbitQueue); err != nil {
				log.Error("event listener stopped", slog.Any("err", err))
			}
		}()
	}

	svc := appointments.NewService(repo, clinics, registry,
		appointments.WithPublisher(publisher),
		appointments.WithLogger(log),
	)

	httpServer := httpapi.NewServer(registry, svc,
		httpapi.WithLogger(log),
		httpapi.WithRateLimit(cfg.HTTPRateLimit, cfg.HTTPRateBurst),
		httpapi.WithHealthCheck(func(ctx context.Context) error { return postgres.Ping(ctx, db) }),
	)

	errCh := make(chan error, 2)
	go func() {
		errCh <- httpServer.Start(cfg.HTTPAddr())
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCEnabled {
		lis, err := net.Listen("tcp", cfg.GRPCAddr())
		if err != nil {
			log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr()))
			shutdownHTTP(log, httpServer, cfg.ShutdownTimeout)
			return err
		}
		grpcServer = grpc.NewServer(
			grpc.UnaryInterceptor(grpcapi.TimeoutInterceptor(cfg.GRPCRequestTimeout)),
		)
		grpcapi.RegisterAvailabilityServiceServer(grpcServer, grpcapi.NewAvailabilityServer(registry, svc, log))
		go func() {
			errCh <- grpcServer.Serve(lis)
		}()
		log.Info("grpc server started", slog.String("grpc_addr", cfg.GRPCAddr()))
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("server stopped with error", slog.Any("err", err))
			runErr = err
		}
	}

	shutdownHTTP(log, httpServer, cfg.ShutdownTimeout)
	if grpcServer != nil {
		shutdownGRPC(log, grpcServer, cfg.ShutdownTimeout)
	}
	return runErr
}

// buildCache returns the availability cache for the configured backend and
// a func releasing its resources.
func buildCache(ctx context.Context, cfg config.Config, log *slog.Logger) (availability.Cache, func(), error) {
	switch cfg.CacheBackend {
	case config.CacheLRU:
		c, err := availability.NewLRUCache(cfg.CacheSize, cfg.CacheTTL, log)
		if err != nil {
			return nil, nil, err
		}
		return c, func() {}, nil
	case config.CacheRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			log.Error("redis connection failed", slog.Any("err", err), slog.String("redis_addr", cfg.RedisAddr))
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return availability.NewRedisCache(client, cfg.CacheTTL, log), func() {
			if err := client.Close(); err != nil {
				log.Warn("redis close failed", slog.Any("err", err))
			}
		}, nil
	default:
		return availability.NopCache{}, func() {}, nil
	}
}

func shutdownHTTP(log *slog.Logger, s *httpapi.Server, timeout time.Duration) {
	log.Info("shutting down http server", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		log.Warn("http graceful shutdown failed", slog.Any("err", err))
		return
	}
	log.Info("http server stopped")
}

func shutdownGRPC(log *slog.Logger, s *grpc.Server, timeout time.Duration) {
	log.Info("shutting down grpc server", slog.Duration("timeout", timeout))

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-timer.C:
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}
