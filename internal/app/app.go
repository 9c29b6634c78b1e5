package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"paes_math_backend/internal/config"
	"paes_math_backend/internal/controller"
	"paes_math_backend/internal/repository"
	"paes_math_backend/internal/service"
	"paes_math_backend/internal/util"
	"paes_math_backend/pkg/configwatcher"
	"paes_math_backend/pkg/database"
	"paes_math_backend/pkg/logger"
	"paes_math_backend/pkg/monitoring"
	"paes_math_backend/pkg/security"
	"paes_math_backend/pkg/tracing"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const configDir = "configs"

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	tracer          *sdktrace.TracerProvider
	origins         *security.OriginWhitelist
	limiters        []*security.RateLimiter
	stopCleanup     chan struct{}
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user         *repository.UserRepository
	curriculum   *repository.CurriculumRepository
	question     *repository.QuestionRepository
	liveSession  *repository.LiveSessionRepository
	diagnostic   *repository.DiagnosticRepository
	tutor        *repository.TutorRepository
	knowledge    *repository.KnowledgeRepository
	certificate  *repository.CertificateRepository
	unitResource *repository.UnitResourceRepository
	analytics    *repository.AnalyticsRepository
}

type services struct {
	auth         *service.AuthService
	user         *service.UserService
	storage      *service.StorageService
	curriculum   *service.CurriculumService
	question     *service.QuestionService
	knowledge    *service.KnowledgeService
	certificate  *service.CertificateService
	liveSession  *service.LiveSessionService
	ai           *service.AIService
	diagnostic   *service.DiagnosticService
	tutor        *service.TutorService
	unitResource *service.UnitResourceService
	analytics    *service.AnalyticsService
	sessionHub   *service.SessionHub
	scheduler    *service.Scheduler
}

type controllers struct {
	auth         *controller.AuthController
	user         *controller.UserController
	curriculum   *controller.CurriculumController
	question     *controller.QuestionController
	knowledge    *controller.KnowledgeController
	liveSession  *controller.LiveSessionController
	diagnostic   *controller.DiagnosticController
	tutor        *controller.TutorController
	certificate  *controller.CertificateController
	unitResource *controller.UnitResourceController
	analytics    *controller.AnalyticsController
	health       *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:         repository.NewUserRepository(db),
		curriculum:   repository.NewCurriculumRepository(db),
		question:     repository.NewQuestionRepository(db),
		liveSession:  repository.NewLiveSessionRepository(db),
		diagnostic:   repository.NewDiagnosticRepository(db),
		tutor:        repository.NewTutorRepository(db),
		knowledge:    repository.NewKnowledgeRepository(db),
		certificate:  repository.NewCertificateRepository(db),
		unitResource: repository.NewUnitResourceRepository(db),
		analytics:    repository.NewAnalyticsRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) (*services, error) {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.user = service.NewUserService(repos.user)
	s.curriculum = service.NewCurriculumService(repos.curriculum, rdb)
	s.question = service.NewQuestionService(repos.question, repos.curriculum)
	s.knowledge = service.NewKnowledgeService(repos.knowledge, repos.curriculum)

	s.sessionHub = service.NewSessionHub(rdb)
	go s.sessionHub.Run()

	s.certificate = service.NewCertificateService(repos.certificate, repos.liveSession, repos.user, s.storage, cfg.Certificate)
	s.liveSession = service.NewLiveSessionService(repos.liveSession, repos.question, s.sessionHub, s.certificate, cfg.LiveSession)

	s.ai = service.NewAIService(cfg.AI)
	s.diagnostic = service.NewDiagnosticService(repos.diagnostic, s.ai, repos.question, repos.curriculum, s.knowledge, s.certificate, cfg.AI.DiagnosticMaxQs)
	s.tutor = service.NewTutorService(repos.tutor, s.ai, repos.curriculum, repos.question)
	a.RegisterConfigCallback(func(newCfg *config.Config) {
		s.ai.UpdateConfig(newCfg.AI)
	})

	s.unitResource = service.NewUnitResourceService(repos.unitResource, repos.curriculum, s.storage, os.TempDir())
	s.analytics = service.NewAnalyticsService(repos.analytics, repos.question, repos.knowledge, s.liveSession, repos.liveSession,
		service.PlatformCounters{
			Users:        repos.user,
			Questions:    repos.question,
			Sessions:     repos.liveSession,
			Diagnostics:  repos.diagnostic,
			Tutor:        repos.tutor,
			Certificates: repos.certificate,
		})

	var purger service.DemoPurger
	if cfg.Demo.Enabled {
		purger = s.user
	}
	scheduler, err := service.NewScheduler(cfg.LiveSession.CronSpec, s.liveSession, purger)
	if err != nil {
		return nil, err
	}
	s.scheduler = scheduler

	return s, nil
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:         controller.NewAuthController(s.auth),
		user:         controller.NewUserController(s.user),
		curriculum:   controller.NewCurriculumController(s.curriculum),
		question:     controller.NewQuestionController(s.question),
		knowledge:    controller.NewKnowledgeController(s.knowledge),
		liveSession:  controller.NewLiveSessionController(s.liveSession, s.sessionHub),
		diagnostic:   controller.NewDiagnosticController(s.diagnostic),
		tutor:        controller.NewTutorController(s.tutor),
		certificate:  controller.NewCertificateController(s.certificate),
		unitResource: controller.NewUnitResourceController(s.unitResource),
		analytics:    controller.NewAnalyticsController(s.analytics),
		health:       controller.NewHealthController(db, rdb),
	}
}

// newLimiter 创建限流器并在 App 关闭时停止清理协程
func (a *App) newLimiter(maxRequests int, window time.Duration, keyFunc func(c *gin.Context) string) *security.RateLimiter {
	l := security.NewRateLimiter(maxRequests, window, keyFunc)
	a.limiters = append(a.limiters, l)
	go l.Cleanup(a.stopCleanup)
	return l
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	a.origins = security.NewOriginWhitelist(cfg.CORS.AllowedOrigins)
	a.RegisterConfigCallback(func(newCfg *config.Config) {
		a.origins.Set(newCfg.CORS.AllowedOrigins)
	})

	router.Use(security.CORS(a.origins))
	router.Use(security.Secure())

	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	router.Use(a.newLimiter(cfg.RateLimit.MaxRequests, window, nil).Middleware())

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// userKey AI 接口按用户限流，未登录时退回 IP
func userKey(c *gin.Context) string {
	if claims := util.GetUserFromContext(c); claims != nil {
		return "u:" + strconv.FormatUint(uint64(claims.UserID), 10)
	}
	return c.ClientIP()
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	if cfg.ForceMigrate || cfg.Server.Mode != "release" {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Database migration failed", zap.Error(err))
		}
	}

	app := &App{
		Config:      cfg,
		DB:          db,
		stopCleanup: make(chan struct{}),
	}
	if cfg.MigrateOnly {
		return app
	}

	// Redis 不可用时降级：课程树不缓存，场次事件只在本实例广播
	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Warn("Redis unavailable, running without cache and cross-instance fan-out", zap.Error(err))
		rdb = nil
	}
	app.Redis = rdb

	repos := app.initRepositories(db)
	services, err := app.initServices(repos, cfg, rdb)
	if err != nil {
		logger.Log.Fatal("Failed to initialize services", zap.Error(err))
	}
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	// 监控初始化
	monitoring.Init()

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Server.Mode == "debug" {
		router.Use(gin.Logger())
	}
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("paes-math-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Error("Failed to initialize tracing", zap.Error(err))
		} else {
			app.tracer = tp
		}
	}

	app.registerRoutes(router, controllers, repos, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	a.services.scheduler.Start()

	// 配置热更新：AI 供应商和 CORS 白名单
	watchCtx, stopWatch := context.WithCancel(context.Background())
	go func() {
		err := configwatcher.WatchConfig(watchCtx, configDir, func(newCfg *config.Config) {
			for _, cb := range a.configCallbacks {
				cb(newCfg)
			}
		})
		if err != nil {
			logger.Log.Warn("Config watcher stopped", zap.Error(err))
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")
	stopWatch()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 先停定时任务，再清理 WebSocket 连接和 Redis 在线状态
	a.services.scheduler.Stop(ctx)
	a.services.sessionHub.Stop()
	close(a.stopCleanup)

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}

	logger.Log.Info("Server exiting")
}
