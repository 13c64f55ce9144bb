package main

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/comment-tree/internal/platform/config"
	"github.com/example/comment-tree/internal/platform/db"
	"github.com/example/comment-tree/internal/platform/events"
	"github.com/example/comment-tree/internal/platform/grpcserver"
	"github.com/example/comment-tree/internal/platform/httpserver"
	"github.com/example/comment-tree/internal/platform/logging"
	"github.com/example/comment-tree/internal/platform/mongodb"
	"github.com/example/comment-tree/internal/platform/natsconn"
	"github.com/example/comment-tree/internal/platform/run"
	"github.com/example/comment-tree/services/comments/internal/handlers"
	"github.com/example/comment-tree/services/comments/internal/store"
	"github.com/example/comment-tree/services/comments/internal/thread"
	"github.com/example/comment-tree/services/comments/internal/worker"
)

const startupTimeout = 15 * time.Second

func main() {
	run.Exit(serve())
}

// serve returns the process exit code so deferred cleanup runs before exit.
func serve() int {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	base, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	log := logging.WithService(base, cfg.ServiceName)
	defer func() { _ = log.Sync() }()

	comments, closeStore, err := initStore(cfg, log)
	if err != nil {
		log.Error("comment store unavailable", zap.String("backend", cfg.Store.Backend), zap.Error(err))
		return 1
	}
	defer closeStore()

	// Events are optional: without NATS the service runs with a no-op publisher.
	var reconciler *worker.Reconciler
	svc := thread.NewService(comments, nil, log)
	nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATS.URL, Name: cfg.ServiceName, Logger: log})
	if err != nil {
		log.Warn("nats unavailable, comment events disabled", zap.Error(err))
	} else {
		defer nc.Close()
		js, err := nc.JetStream()
		if err == nil {
			err = events.EnsureStream(js)
		}
		if err != nil {
			log.Warn("jetstream unavailable, comment events disabled", zap.Error(err))
		} else {
			svc = thread.NewService(comments, events.New(js, log), log)
			reconciler = worker.NewReconciler(js, svc, log)
		}
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return comments.Ping(ctx)
		},
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Logger:      log,
	})
	r.Mount("/api/v1/comments", handlers.Routes(svc, log))

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})
	grpcSrv := grpcserver.New(cfg.GRPC.Addr, cfg.ServiceName)

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		go func() {
			if err := grpcSrv.Start(log); err != nil {
				log.Error("grpc serve", zap.Error(err))
			}
		}()
		grpcSrv.SetServing(true)

		if reconciler != nil {
			go func() {
				if err := reconciler.Run(ctx); err != nil {
					log.Error("reconciler stopped", zap.Error(err))
				}
			}()
		}

		return srv.Start(log)
	})

	grpcSrv.Stop(run.ShutdownTimeout)
	runner.Graceful("http", srv.Shutdown)

	log.Info("exit", zap.Int("code", code))
	return code
}

// initStore opens the configured backend. The returned func releases the
// underlying pool or client.
func initStore(cfg config.AppConfig, log *zap.Logger) (store.CommentStore, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	switch cfg.Store.Backend {
	case config.BackendPostgres:
		if cfg.Store.MigrateOnStart {
			if err := db.Migrate(cfg.Store.DatabaseURL, store.Migrations, store.MigrationsDir); err != nil {
				return nil, nil, err
			}
			log.Info("migrations applied")
		}
		pool, err := db.Open(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		log.Info("comments store: postgres")
		return store.NewPostgresCommentStore(pool), pool.Close, nil

	case config.BackendMongo:
		client, err := mongodb.Connect(ctx, cfg.Store.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		s := store.NewMongoCommentStore(client, cfg.Store.MongoDatabase, cfg.Store.MongoTransactions, log)
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		if !cfg.Store.MongoTransactions {
			log.Warn("mongo transactions disabled, cascade delete and counter update are not atomic")
		}
		log.Info("comments store: mongo", zap.String("database", cfg.Store.MongoDatabase))
		return s, func() { _ = client.Disconnect(context.Background()) }, nil
	}

	log.Warn("using in-memory comment store (development only)")
	return store.NewInMemoryCommentStore(), func() {}, nil
}
