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

	"github.com/bwmarrin/snowflake"
	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/live-commerce/config"
	"github.com/d60-Lab/live-commerce/internal/api"
	"github.com/d60-Lab/live-commerce/internal/api/handler"
	"github.com/d60-Lab/live-commerce/internal/cache"
	"github.com/d60-Lab/live-commerce/internal/lock"
	"github.com/d60-Lab/live-commerce/internal/model"
	"github.com/d60-Lab/live-commerce/internal/notify"
	"github.com/d60-Lab/live-commerce/internal/realtime"
	"github.com/d60-Lab/live-commerce/internal/repository"
	"github.com/d60-Lab/live-commerce/internal/service"
	"github.com/d60-Lab/live-commerce/pkg/database"
	"github.com/d60-Lab/live-commerce/pkg/logger"
	"github.com/d60-Lab/live-commerce/pkg/tracing"
)

// @title Live Commerce API
// @version 1.0
// @description 直播间、弹幕、合作方结算接口
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("server exited", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("shutdown tracing", zap.Error(err))
		}
	}()

	sentryEnabled := cfg.Sentry.DSN != ""
	if sentryEnabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			SampleRate:  cfg.Sentry.SampleRate,
		}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			logger.Warn("close database", zap.Error(err))
		}
	}()
	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(model.All()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
	}

	chatRepo, err := newChatRepository(db, cfg.Chat.ShardTables)
	if err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
	}

	registry := realtime.NewRegistry()
	defer registry.Close()

	var rooms liveRooms = registry
	if cfg.Realtime.RedisFanout {
		bridge := realtime.NewRedisBridge(registry, rdb, cfg.Realtime.Channel)
		go func() {
			if err := bridge.Run(ctx, nil); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("realtime bridge stopped", zap.Error(err))
			}
		}()
		rooms = bridge
	}

	var history *cache.ChatHistory
	if rdb != nil {
		history = cache.NewChatHistory(rdb, cfg.Chat.HistoryCacheTTL)
	}

	ids, err := snowflake.NewNode(cfg.Chat.NodeID)
	if err != nil {
		return fmt.Errorf("snowflake node: %w", err)
	}

	deliverer := notify.NewDeliverer(repository.NewNotificationRepository(db), rooms)
	var sink notify.Sink
	switch cfg.Notification.Backend {
	case "asynq":
		opt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
		client := asynq.NewClient(opt)
		defer client.Close()
		sink = notify.NewTaskSink(client, cfg.Notification.Queue, cfg.Notification.MaxRetry)

		mux := asynq.NewServeMux()
		notify.RegisterTasks(mux, deliverer)
		worker := notify.NewServer(opt, cfg.Notification.Queue, cfg.Notification.Workers)
		if err := worker.Start(mux); err != nil {
			return fmt.Errorf("start notification worker: %w", err)
		}
		defer worker.Shutdown()
	default:
		dispatcher := notify.NewDispatcher(deliverer, cfg.Notification.QueueSize)
		stopDispatcher := dispatcher.Start(cfg.Notification.Workers)
		defer func() {
			drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := stopDispatcher(drainCtx); err != nil {
				logger.Warn("notification queue not drained", zap.Error(err), zap.Int("pending", dispatcher.QueueLen()))
			}
		}()
		sink = dispatcher
	}

	var locker lock.Locker = lock.NewLocalLocker()
	if rdb != nil {
		locker = lock.NewRedisLocker(rdb, "lock:", cfg.Settlement.LockTTL)
	}

	settlements := service.NewSettlementService(
		db,
		repository.NewOrderRepository(db),
		repository.NewSettlementRepository(db),
		repository.NewPartnerRepository(db),
		locker,
		sink,
		service.SettlementOptions{ReleaseOnReject: cfg.Settlement.ReleaseOnReject},
	)
	lives := service.NewLiveStreamService(repository.NewLiveStreamRepository(db), rooms)
	chat := service.NewChatService(chatRepo, rooms, history, ids, service.ChatOptions{
		MaxMessageLength: cfg.Chat.MaxMessageLength,
		HistoryLimit:     cfg.Chat.HistoryLimit,
	})

	h := handler.NewHandler(settlements, lives, chat, registry, handler.SocketOptions{
		RateLimit:    cfg.Chat.RateLimit,
		RateBurst:    cfg.Chat.RateBurst,
		WriteTimeout: cfg.Chat.WriteTimeout,
		ReadTimeout:  cfg.Realtime.ReadTimeout,
		MaxFrameSize: cfg.Realtime.MaxFrameSize,
		SendBuffer:   cfg.Realtime.SendBuffer,
		AllowOrigins: cfg.Server.AllowOrigins,
	})
	router := api.NewRouter(h, api.Options{
		Mode:         cfg.Server.Mode,
		JWTSecret:    cfg.JWT.Secret,
		CookieName:   cfg.JWT.CookieName,
		AllowOrigins: cfg.Server.AllowOrigins,
		Sentry:       sentryEnabled,
		Tracing:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr), zap.String("mode", cfg.Server.Mode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	// 先关 websocket，再等普通请求结束
	registry.Close()
	return srv.Shutdown(shutdownCtx)
}

// liveRooms 单机时是 Registry，开启跨节点扇出后是 RedisBridge
type liveRooms interface {
	realtime.Broadcaster
	ViewerCount(roomID string) int
}

func newChatRepository(db *gorm.DB, shards int) (repository.ChatRepository, error) {
	if shards <= 1 {
		return repository.NewChatRepository(db), nil
	}
	sharded, err := repository.NewShardedChatRepository(db, shards)
	if err != nil {
		return nil, err
	}
	if err := sharded.InitSchema(); err != nil {
		return nil, fmt.Errorf("init chat shards: %w", err)
	}
	return sharded, nil
}
