package database

import (
	"fmt"
	"log"

	"lingua_learn_backend/internal/config"
	"lingua_learn_backend/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Println("Database migration completed")

	return db, nil
}

// Migrate 建表并写入默认数据（成就定义、示例课程）
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
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
	)
	if err != nil {
		return err
	}

	seedAchievements(db)
	seedLanguages(db)

	return nil
}

func seedAchievements(db *gorm.DB) {
	var count int64
	db.Model(&model.AchievementDefinition{}).Count(&count)
	if count > 0 {
		return
	}

	defaults := []model.AchievementDefinition{
		{Code: "first_lesson", Title: "First Steps", Description: "Complete your first lesson", Icon: "🎯", RequirementType: model.RequirementLessonsCompleted, RequirementValue: 1, XPReward: 25},
		{Code: "ten_lessons", Title: "Getting Serious", Description: "Complete 10 lessons", Icon: "📚", RequirementType: model.RequirementLessonsCompleted, RequirementValue: 10, XPReward: 100},
		{Code: "fifty_lessons", Title: "Scholar", Description: "Complete 50 lessons", Icon: "🎓", RequirementType: model.RequirementLessonsCompleted, RequirementValue: 50, XPReward: 500},
		{Code: "polyglot", Title: "Polyglot", Description: "Start learning a second language", Icon: "🌍", RequirementType: model.RequirementLanguagesStarted, RequirementValue: 2, XPReward: 50},
		{Code: "week_streak", Title: "On Fire", Description: "Practice 7 days in a row", Icon: "🔥", RequirementType: model.RequirementStreakDays, RequirementValue: 7, XPReward: 75},
		{Code: "month_streak", Title: "Unstoppable", Description: "Practice 30 days in a row", Icon: "⚡", RequirementType: model.RequirementStreakDays, RequirementValue: 30, XPReward: 300},
		{Code: "xp_1000", Title: "Rising Star", Description: "Earn 1000 XP", Icon: "⭐", RequirementType: model.RequirementTotalXP, RequirementValue: 1000, XPReward: 100},
		{Code: "xp_5000", Title: "Legend", Description: "Earn 5000 XP", Icon: "🏆", RequirementType: model.RequirementTotalXP, RequirementValue: 5000, XPReward: 250},
	}
	for _, def := range defaults {
		db.Create(&def)
	}
}

func seedLanguages(db *gorm.DB) {
	var count int64
	db.Model(&model.Language{}).Count(&count)
	if count > 0 {
		return
	}

	languages := []model.Language{
		{Code: "es", Name: "Spanish"},
		{Code: "fr", Name: "French"},
		{Code: "ja", Name: "Japanese"},
	}
	for i := range languages {
		db.Create(&languages[i])
	}

	// 每种语言几节示例课程，正式内容由内容服务维护
	for _, lang := range languages {
		for pos := 1; pos <= 3; pos++ {
			db.Create(&model.Lesson{
				LanguageID: lang.ID,
				Title:      fmt.Sprintf("%s Lesson %d", lang.Name, pos),
				Position:   pos,
				Published:  true,
			})
		}
	}
}
