package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shopify/sarama"
	"github.com/go-playground/validator/v10"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/practice-sem-2/messaging-service/internal/auth"
	"github.com/practice-sem-2/messaging-service/internal/config"
	"github.com/practice-sem-2/messaging-service/internal/server"
	storage "github.com/practice-sem-2/messaging-service/internal/storages"
	"github.com/practice-sem-2/messaging-service/internal/storages/memory"
	usecase "github.com/practice-sem-2/messaging-service/internal/usecases"
	"github.com/practice-sem-2/messaging-service/migrations"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func initLogger(level string) *logrus.Logger {

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logger.SetLevel(logrus.InfoLevel)
		logger.
			WithField("log_level", level).
			Warning("specified invalid log level")
	} else {
		logger.SetLevel(logLevel)
		logger.
			WithField("log_level", level).
			Infof("specified %s log level", logLevel.String())
	}

	return logger
}

func initDB(dsn string, logger *logrus.Logger) *sqlx.DB {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		logger.Fatalf("can't connect to database: %s", err.Error())
	}

	err = db.Ping()

	if err != nil {
		logger.Fatalf("database ping failed: %s", err.Error())
	}

	logger.Info("successfully connected to database")
	return db
}

func initProducer(brokers []string, logger *logrus.Logger) sarama.SyncProducer {
	config := sarama.NewConfig()
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Timeout = 10 * time.Second
	config.Producer.Return.Successes = true
	producer, err := sarama.NewSyncProducer(brokers, config)

	if err != nil {
		logger.WithError(err).Fatalf("can't create producer")
	}

	return producer
}

func initVerifier(cfg *config.Config, logger *logrus.Logger) *auth.VerifierService {
	if cfg.JWTPublicKey != "" {
		verifier, err := auth.NewVerifierFromFile(cfg.JWTPublicKey)
		if err != nil {
			logger.Fatalf("verifier can't read public key: %s", err.Error())
		}
		return verifier
	}
	if cfg.JWTSecret != "" {
		logger.Warning("verifying tokens with a shared secret, use JWT_PUBLIC_KEY_PATH in production")
		return auth.NewHMACVerifier([]byte(cfg.JWTSecret))
	}
	logger.Fatal("either JWT_PUBLIC_KEY_PATH or JWT_SECRET must be defined")
	return nil
}

func initLimiter(cfg *config.Config, logger *logrus.Logger) (*server.RateLimiter, func()) {
	if cfg.RedisURL == "" {
		logger.Info("REDIS_URL is not set, sends are not rate limited")
		return nil, func() {}
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatalf("invalid REDIS_URL: %s", err.Error())
	}
	client := redis.NewClient(opts)

	return server.NewRateLimiter(client, cfg.SendLimit, cfg.SendWindow, logger), func() {
		_ = client.Close()
	}
}

// initRegistry picks the storage backend. Updates are published to Kafka when
// brokers are configured and dropped otherwise.
func initRegistry(cfg *config.Config, logger *logrus.Logger) (storage.Registry, func()) {
	var updates storage.UpdatesStore = storage.NopUpdates{}
	closers := make([]func(), 0)

	if len(cfg.KafkaBrokers) > 0 {
		producer := initProducer(cfg.KafkaBrokers, logger)
		updates = storage.NewUpdatesStore(producer, &storage.UpdatesStoreConfig{
			UpdatesTopic: cfg.UpdatesTopic,
		})
		closers = append(closers, func() {
			if err := producer.Close(); err != nil {
				logger.WithError(err).Error("can't close producer")
			}
		})
	} else {
		logger.Info("KAFKA_BROKERS is not set, updates will not be published")
	}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Storage {
	case config.StorageMemory:
		logger.Warning("using in-memory storage, data is lost on restart")
		return memory.NewRegistry(updates, logger), closeAll
	case config.StoragePostgres:
		if err := migrations.Up(cfg.MigrationsDsn); err != nil {
			logger.Fatalf("can't apply migrations: %s", err.Error())
		}
		db := initDB(cfg.DBDsn, logger)
		closers = append(closers, func() {
			if err := db.Close(); err != nil {
				logger.Errorf("during db connection close an error occurred: %s", err.Error())
			}
		})
		return storage.NewRegistry(db, updates, logger), closeAll
	default:
		logger.Fatalf("unknown STORAGE %q", cfg.Storage)
		return nil, closeAll
	}
}

func initHealthServer(address string, logger *logrus.Logger) (*grpc.Server, *health.Server, net.Listener) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		logger.Fatalf("can't listen to address: %s", err.Error())
	}
	logger.Infof("health service listening on %s", address)

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	return grpcServer, healthServer, listener
}

func main() {
	var host string
	var port int
	var logLevel string

	flag.IntVar(&port, "port", 80, "port on which server will be started")
	flag.StringVar(&host, "host", "0.0.0.0", "host on which server will be started")
	flag.StringVar(&logLevel, "log", "info", "log level")

	flag.Parse()

	logger := initLogger(logLevel)
	cfg := config.Load()

	registry, closeRegistry := initRegistry(cfg, logger)
	defer closeRegistry()

	limiter, closeLimiter := initLimiter(cfg, logger)
	defer closeLimiter()

	srv := server.NewServer(
		usecase.NewChatsUsecase(registry),
		usecase.NewMessagesUsecase(registry),
		usecase.NewGroupsUsecase(registry),
		initVerifier(cfg, logger),
		validator.New(),
		logger,
		server.Options{
			Poll: server.PollConfig{
				Chats:    cfg.PollChats,
				Messages: cfg.PollMessages,
			},
			CORSOrigins: cfg.CORSOrigins,
			Limiter:     limiter,
		},
	)

	address := fmt.Sprintf("%s:%d", host, port)
	httpServer := &http.Server{
		Addr:              address,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer, healthServer, lis := initHealthServer(cfg.GRPCAddr, logger)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Errorf("grpc serving error: %s", err.Error())
		}
	}()

	osSignal := make(chan os.Signal, 1)
	signal.Notify(osSignal,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sig := <-osSignal
		logger.Infof("%s caught. Gracefully shutdown", sig.String())
		healthServer.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.WithError(err).Error("http shutdown failed")
		}
		grpcServer.GracefulStop()
	}()

	logger.Infof("start listening on %s", address)
	err := httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("http serving error: %s", err.Error())
	}
	<-stopped
}
