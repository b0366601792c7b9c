package database

import (
	"fmt"
	"testing"

	"lingua_learn_backend/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return db
}

func TestMigrateSeedsDefaults(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, Migrate(db))

	var defCount int64
	require.NoError(t, db.Model(&model.AchievementDefinition{}).Count(&defCount).Error)
	assert.EqualValues(t, 8, defCount)

	var langCount int64
	require.NoError(t, db.Model(&model.Language{}).Count(&langCount).Error)
	assert.EqualValues(t, 3, langCount)

	var lessonCount int64
	require.NoError(t, db.Model(&model.Lesson{}).Count(&lessonCount).Error)
	assert.EqualValues(t, 9, lessonCount)

	var first model.AchievementDefinition
	require.NoError(t, db.Where("code = ?", "first_lesson").First(&first).Error)
	assert.Equal(t, model.RequirementLessonsCompleted, first.RequirementType)
	assert.Equal(t, 1, first.RequirementValue)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db))

	var defCount int64
	require.NoError(t, db.Model(&model.AchievementDefinition{}).Count(&defCount).Error)
	assert.EqualValues(t, 8, defCount)
}
