package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lingua_learn_backend/internal/config"
	"lingua_learn_backend/internal/controller"
	"lingua_learn_backend/internal/repository"
	"lingua_learn_backend/internal/service"
	"lingua_learn_backend/pkg/database"
	"lingua_learn_backend/pkg/logger"
	"lingua_learn_backend/pkg/monitoring"
	"lingua_learn_backend/pkg/security"
	"lingua_learn_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config   *config.Config
	Router   *gin.Engine
	DB       *gorm.DB
	Redis    *redis.Client
	services *services
}

type repositories struct {
	user        *repository.UserRepository
	lesson      *repository.LessonRepository
	progress    *repository.ProgressRepository
	xp          *repository.XPRepository
	streak      *repository.StreakRepository
	achievement *repository.AchievementRepository
}

type services struct {
	auth        *service.AuthService
	xp          *service.XPService
	streak      *service.StreakService
	achievement *service.AchievementService
	sync        *service.SyncService
}

type controllers struct {
	auth         *controller.AuthController
	progress     *controller.ProgressController
	gamification *controller.GamificationController
	lesson       *controller.LessonController
	health       *controller.HealthController
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:        repository.NewUserRepository(db),
		lesson:      repository.NewLessonRepository(db),
		progress:    repository.NewProgressRepository(db),
		xp:          repository.NewXPRepository(db),
		streak:      repository.NewStreakRepository(db),
		achievement: repository.NewAchievementRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB, rdb *redis.Client) *services {
	s := &services{}

	s.auth = service.NewAuthService(repos.user, cfg)
	s.xp = service.NewXPService(db, repos.user, repos.xp, rdb)
	s.xp.LeaderboardTTL = cfg.Gamification.LeaderboardCacheTTL
	s.streak = service.NewStreakService(db, repos.streak)
	s.achievement = service.NewAchievementService(db, repos.achievement, repos.progress, repos.streak, repos.user, s.xp)
	s.sync = service.NewSyncService(db, cfg, repos.progress, repos.lesson, s.xp, s.streak, s.achievement)

	return s
}

func (a *App) initControllers(s *services, repos *repositories, db *gorm.DB) *controllers {
	return &controllers{
		auth:         controller.NewAuthController(s.auth),
		progress:     controller.NewProgressController(s.sync),
		gamification: controller.NewGamificationController(s.xp, s.streak, s.achievement),
		lesson:       controller.NewLessonController(repos.lesson),
		health:       controller.NewHealthController(db),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startBackgroundTasks 定时成就巡检：连续天数这类规则会在没有新请求时
// 跨过午夜变为满足，巡检负责补发
func (a *App) startBackgroundTasks(s *services) {
	go func() {
		ticker := time.NewTicker(a.Config.Gamification.AchievementInterval)
		for range ticker.C {
			s.achievement.CheckRecentlyActive(24 * time.Hour)
		}
	}()
}

// ReloadConfig 热更新可调数值（奖励经验等），由 configwatcher 回调
func (a *App) ReloadConfig(cfg *config.Config) {
	a.Config.Gamification = cfg.Gamification
	logger.Log.Info("config reloaded",
		zap.Int("taskXP", cfg.Gamification.TaskXP),
		zap.Int("lessonBonusXP", cfg.Gamification.LessonBonusXP))
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		// 排行榜缓存可降级，Redis 不可用不阻止启动
		logger.Log.Warn("Redis unavailable, leaderboard cache disabled", zap.Error(err))
		rdb = nil
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, db, rdb)
	app.services = services
	controllers := app.initControllers(services, repos, db)

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("lingua-learn", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, repos, cfg)

	app.startBackgroundTasks(services)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
