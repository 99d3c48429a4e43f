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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"directmsg/infrastructure/cache"
	"directmsg/infrastructure/db"
	"directmsg/infrastructure/ws"
	"directmsg/internal/config"
	httpHandler "directmsg/internal/delivery/http"
	"directmsg/internal/delivery/websocket"
	"directmsg/internal/metrics"
	"directmsg/internal/repository"
	"directmsg/internal/usecase"
	"directmsg/pkg/jwt"
	applog "directmsg/pkg/logger"
)

const (
	accessTokenDuration = 15 * time.Minute
	shutdownTimeout     = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type stores struct {
	messages repository.MessageRepository
	roster   repository.RosterRepository
	users    repository.UserRepository
	close    func(ctx context.Context) error
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	switch cfg.Storage {
	case config.StorageMongo:
		mongoDb, err := db.NewMongoStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, err
		}
		if err := mongoDb.EnsureIndexes(ctx); err != nil {
			_ = mongoDb.Close(ctx)
			return nil, err
		}
		logger.Info("connected to mongodb", zap.String("database", cfg.Mongo.Database))
		return &stores{
			messages: repository.NewMessageRepository(*mongoDb.DB),
			roster:   repository.NewRosterRepository(*mongoDb.DB),
			users:    repository.NewUserRepository(*mongoDb.DB),
			close:    mongoDb.Close,
		}, nil

	case config.StoragePostgres:
		pg, err := db.NewPostgresStore(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		logger.Info("connected to postgres")
		return &stores{
			messages: repository.NewPostgresMessageRepository(pg.DB),
			roster:   repository.NewPostgresRosterRepository(pg.DB),
			users:    repository.NewPostgresUserRepository(pg.DB),
			close:    func(context.Context) error { return pg.Close() },
		}, nil
	}

	logger.Warn("using in-memory storage, data is lost on restart")
	return &stores{
		messages: repository.NewMemoryMessageRepository(),
		roster:   repository.NewMemoryRosterRepository(),
		users:    repository.NewMemoryUserRepository(),
		close:    func(context.Context) error { return nil },
	}, nil
}

func run() error {
	cfg, dotenv, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := applog.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()
	if !dotenv {
		logger.Info("no .env file loaded, reading environment only")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close(context.Background())

	var hub ws.IHub
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer rdb.Close()

		redisHub, err := ws.NewRedisHub(ctx, rdb, cfg.Redis.ServerID, logger.Named("hub"))
		if err != nil {
			return err
		}
		defer redisHub.Close()

		logger.Info("using redis hub", zap.String("addr", cfg.Redis.Addr), zap.String("serverId", cfg.Redis.ServerID))
		g.Go(func() error {
			redisHub.Run(gctx)
			return nil
		})
		hub = redisHub
	} else {
		logger.Info("using in-memory hub (single server)")
		hub = ws.NewHub(logger.Named("hub"))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	hub.SetOnClientUnregister(func(userId string, conn ws.Connection) {
		m.LiveConnections.Set(float64(hub.GetClientCount()))
		logger.Debug("client left", zap.String("userId", userId), zap.String("connId", conn.Id()))
	})

	memCache := cache.NewMemCache(time.Minute)
	defer memCache.Close()

	// Initialize use cases
	lock := usecase.NewConversationLock()
	broker := usecase.NewDeliveryBroker(hub, m, logger.Named("broker"))
	userUc := usecase.NewUserUseCase(st.users, memCache, cfg.Chat.ProfileCacheTTL, logger.Named("profiles"))
	rosterUc := usecase.NewRosterUsecase(st.roster, st.messages, userUc)
	chatUc := usecase.NewChatUsecase(
		usecase.NewMessageUseCase(st.messages, rosterUc, broker, lock, memCache, cfg.Chat, m, logger.Named("messages")),
		rosterUc,
		usecase.NewReadReceiptUsecase(st.messages, rosterUc, broker, lock, logger.Named("receipts")),
		usecase.NewDeletionUsecase(st.messages, rosterUc, broker, lock, logger.Named("deletions")),
	)

	var tokens httpHandler.TokenValidator
	if cfg.JWTSecret != "" {
		tokens = jwt.NewJWTManager(cfg.JWTSecret, accessTokenDuration)
	} else {
		logger.Warn("JWT_SECRET is not set, trusting the " + httpHandler.UserIdHeader + " header from the gateway")
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(httpHandler.RequestLogger(logger.Named("http")))
	router.Use(httpHandler.CORS(cfg.AllowedOrigin))

	websocketH := websocket.NewWebsocketHandler(hub, chatUc, m, cfg.AllowedOrigin, cfg.Chat.SendBuffer, logger)
	httpH := httpHandler.NewHttpHandler(chatUc, logger)
	httpHandler.MapHttpRoutes(router, httpH, websocketH, httpHandler.NewAuthMiddleware(tokens), promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("http server listening", zap.String("port", cfg.Port), zap.String("storage", cfg.Storage))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
