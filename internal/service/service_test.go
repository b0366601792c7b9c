package service

import (
	"fmt"
	"testing"
	"time"

	"lingua_learn_backend/internal/config"
	"lingua_learn_backend/internal/model"
	"lingua_learn_backend/internal/repository"
	"lingua_learn_backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// testEnv 每个测试一套独立的内存库和服务栈
type testEnv struct {
	DB           *gorm.DB
	Config       *config.Config
	UserRepo     *repository.UserRepository
	ProgressRepo *repository.ProgressRepository
	Auth         *AuthService
	XP           *XPService
	Streaks      *StreakService
	Achievements *AchievementService
	Sync         *SyncService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger.Log = zap.NewNop()

	// 共享缓存的内存库：同一 DSN 的多个连接看到同一份数据
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// 共享缓存模式下并发写会报 SQLITE_LOCKED，收敛到单连接串行化
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Language{},
		&model.Lesson{},
		&model.UserLanguage{},
		&model.TaskProgress{},
		&model.LessonProgress{},
		&model.XPLedgerEntry{},
		&model.Streak{},
		&model.AchievementDefinition{},
		&model.UserAchievement{},
		&model.SyncMutation{},
	))

	cfg := &config.Config{
		JWT: config.JWTConfig{Secret: "test-secret", ExpireTime: time.Hour},
		Gamification: config.GamificationConfig{
			TaskXP:        10,
			LessonBonusXP: 50,
		},
	}

	userRepo := repository.NewUserRepository(db)
	lessonRepo := repository.NewLessonRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	xpRepo := repository.NewXPRepository(db)
	streakRepo := repository.NewStreakRepository(db)
	achievementRepo := repository.NewAchievementRepository(db)

	xp := NewXPService(db, userRepo, xpRepo, nil)
	streaks := NewStreakService(db, streakRepo)
	achievements := NewAchievementService(db, achievementRepo, progressRepo, streakRepo, userRepo, xp)
	syncService := NewSyncService(db, cfg, progressRepo, lessonRepo, xp, streaks, achievements)

	return &testEnv{
		DB:           db,
		Config:       cfg,
		UserRepo:     userRepo,
		ProgressRepo: progressRepo,
		Auth:         NewAuthService(userRepo, cfg),
		XP:           xp,
		Streaks:      streaks,
		Achievements: achievements,
		Sync:         syncService,
	}
}

func (e *testEnv) createUser(t *testing.T, name string) *model.User {
	t.Helper()
	user := &model.User{
		Name:     name,
		Email:    fmt.Sprintf("%s-%s@example.com", name, uuid.New().String()[:8]),
		Password: "hashed",
		Role:     model.Student,
		Level:    1,
	}
	require.NoError(t, e.DB.Create(user).Error)
	return user
}

func (e *testEnv) createLesson(t *testing.T) *model.Lesson {
	t.Helper()
	language := &model.Language{Code: uuid.New().String()[:8], Name: "Spanish"}
	require.NoError(t, e.DB.Create(language).Error)

	lesson := &model.Lesson{LanguageID: language.ID, Title: "Greetings", Position: 1, Published: true}
	require.NoError(t, e.DB.Create(lesson).Error)
	return lesson
}

func (e *testEnv) totalXP(t *testing.T, userID uint) int {
	t.Helper()
	user, err := e.UserRepo.FindByID(userID)
	require.NoError(t, err)
	return user.TotalXP
}
