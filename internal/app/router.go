package app

import (
	"lingua_learn_backend/docs"
	"lingua_learn_backend/internal/config"
	"lingua_learn_backend/internal/middleware"
	"lingua_learn_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
		public.GET("/languages", c.lesson.ListLanguages)
		public.GET("/lessons", c.lesson.ListLessons)
		public.GET("/lessons/:id", c.lesson.GetLesson)
	}

	// 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		authGroup.GET("/profile", c.auth.GetProfile)

		// 进度同步：离线队列的唯一入口
		progress := authGroup.Group("/progress")
		{
			progress.POST("/tasks", c.progress.SubmitTaskProgress)
			progress.POST("/lessons", c.progress.SubmitLessonProgress)
			progress.POST("/sync", c.progress.SyncBatch)
			progress.GET("/lessons", c.progress.GetLessonProgress)
			progress.GET("/lessons/:lessonId/tasks", c.progress.GetTaskProgress)
		}

		// 游戏化读取面
		gamification := authGroup.Group("/gamification")
		{
			gamification.GET("/xp", c.gamification.GetXP)
			gamification.GET("/xp/history", c.gamification.GetXPHistory)
			gamification.GET("/streak", c.gamification.GetStreak)
			gamification.GET("/achievements", c.gamification.GetAchievements)
			gamification.POST("/achievements/check", c.gamification.CheckAchievements)
			gamification.GET("/leaderboard", c.gamification.GetLeaderboard)
		}
	}
}
