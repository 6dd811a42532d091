package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	httpHandler "vibe-meeting/internal/handler/http"
	wsHandler "vibe-meeting/internal/handler/websocket"
	"vibe-meeting/internal/hub"
	"vibe-meeting/internal/infra/memory"
	gormpersistence "vibe-meeting/internal/infra/persistence/gorm"
	"vibe-meeting/internal/infra/setup"
	"vibe-meeting/internal/middleware"
	"vibe-meeting/internal/ratelimit"
	"vibe-meeting/internal/repository"
	"vibe-meeting/internal/service"
	"vibe-meeting/internal/signaling"
	"vibe-meeting/internal/storage"
	"vibe-meeting/internal/worker"
)

// 保留期清理不需要和在线清扫一样频繁
const retentionInterval = time.Hour

// App 结构体包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB      // 未配置或连接失败时为 nil
	RedisClient *redis.Client // 未配置或连接失败时为 nil
	Hub         *hub.Hub
	HttpServer  *http.Server

	durable   repository.DurableStore
	sweeper   *service.PresenceSweeper
	purger    *service.RetentionPurger
	worker    *worker.WorkerServer
	scheduler *worker.Scheduler
	cancel    context.CancelFunc
}

// NewLogger 按环境创建 logger，同时设置为 logrus 的全局 logger
func NewLogger(cfg *Config) *logrus.Logger {
	log := logrus.StandardLogger()
	if cfg.IsProduction() {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetOutput(os.Stdout)
	return log
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 初始化 Logger
	log := NewLogger(cfg)
	log.WithFields(logrus.Fields{"env": cfg.AppEnv, "level": log.GetLevel().String()}).Info("Logger initialized")

	app := &App{Config: cfg, Log: log}

	// 3. 基础设施。数据库和 Redis 都是可选的，连接失败时降级运行。
	app.initDatabase()
	app.initRedis()

	// 4. 存储、Hub、服务
	var store repository.MessageStore = memory.NewStore()
	if app.durable != nil {
		store = storage.NewStore(app.durable, store)
	} else {
		log.Warn("Durable backend not available, running with transient storage only")
	}
	app.Hub = hub.NewHub()
	roomService := service.NewRoomService(store, app.Hub)
	relay := signaling.NewRelay(app.Hub)
	app.sweeper = service.NewPresenceSweeper(app.durable, cfg.StaleAfter)
	app.purger = service.NewRetentionPurger(app.durable, cfg.MessageRetention)

	var limiter ratelimit.Limiter
	if app.RedisClient != nil {
		limiter = ratelimit.NewRedisLimiter(app.RedisClient, cfg.RateLimit, cfg.KeyPrefix)
	} else {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit)
	}
	dispatcher := hub.NewDispatcher(app.Hub, roomService, relay, limiter)
	log.Info("Services initialized")

	// 5. 周期任务：有 Redis 时交给 asynq，否则在进程内运行
	if app.RedisClient != nil {
		app.initWorker()
	}

	// 6. 路由
	origins := middleware.NewOriginMatcher(cfg.AllowedOrigins, !cfg.IsProduction())
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(middleware.CORS(origins))

	wsHandler.NewWebSocketHandler(app.Hub, dispatcher, origins).RegisterRoutes(router)

	api := router.Group("/api")
	api.Use(middleware.RateLimit(limiter))
	httpHandler.NewRoomHandler(roomService).RegisterRoutes(api)
	httpHandler.NewTranscriptionHandler(cfg.TranscriptionURL, roomService).RegisterRoutes(api)
	httpHandler.NewHealthHandler(app.durable, app.RedisClient, cfg.AppEnv).RegisterRoutes(router, api)
	router.NoRoute(func(c *gin.Context) {
		httpHandler.ErrorResponse(c, http.StatusNotFound, "接口不存在")
	})
	log.Info("Router setup complete")

	app.HttpServer = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return app, nil
}

func (a *App) initDatabase() {
	if !a.Config.DB.Enabled() {
		a.Log.Info("Database not configured")
		return
	}
	db, err := setup.OpenDB(a.Config.DB)
	if err == nil {
		err = setup.MigrateDB(db)
	}
	if err != nil {
		a.Log.WithError(err).Error("Database unavailable, falling back to transient storage")
		return
	}
	a.DB = db
	a.durable = gormpersistence.NewGormStore(db)
	a.Log.WithField("driver", a.Config.DB.Driver).Info("Database initialized")
}

func (a *App) initRedis() {
	if a.Config.Redis.Addr == "" {
		a.Log.Info("Redis not configured, using in-process rate limiter and scheduler")
		return
	}
	client, err := setup.OpenRedis(context.Background(), a.Config.Redis)
	if err != nil {
		a.Log.WithError(err).Error("Redis unavailable, using in-process rate limiter and scheduler")
		return
	}
	a.RedisClient = client
}

func (a *App) initWorker() {
	redisOpt := asynq.RedisClientOpt{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	}
	scheduler, err := worker.NewScheduler(redisOpt, a.Config.SweepInterval, retentionInterval, a.Log)
	if err != nil {
		a.Log.WithError(err).Error("Failed to register periodic tasks, running them in-process")
		return
	}
	a.worker = worker.NewWorkerServer(redisOpt, a.sweeper, a.purger, a.Log)
	a.scheduler = scheduler
	a.Log.Info("Asynq worker and scheduler initialized")
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.worker != nil {
		go a.worker.Start()
		go a.scheduler.Start()
	} else {
		go a.sweeper.Run(ctx, a.Config.SweepInterval)
		go a.purger.Run(ctx, retentionInterval)
		a.Log.Info("Periodic tasks running in-process")
	}

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	if a.cancel != nil {
		a.cancel()
	}
	if a.scheduler != nil {
		a.scheduler.Shutdown()
	}
	if a.worker != nil {
		a.worker.Shutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// 被劫持的 WebSocket 连接不受 http.Server.Shutdown 管理
	a.Hub.CloseAll()

	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Log.Errorf("Error closing database connection: %v", err)
			}
		}
	}

	a.Log.Info("Application shutdown complete.")
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})

		switch {
		case errorMessage != "":
			entry.Error(errorMessage)
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Debug("Request handled")
		}
	}
}
