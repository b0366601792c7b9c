package service

import (
	"sync"
	"testing"
	"time"

	"lingua_learn_backend/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDefinition(t *testing.T, env *testEnv, def model.AchievementDefinition) model.AchievementDefinition {
	t.Helper()
	require.NoError(t, env.DB.Create(&def).Error)
	return def
}

func TestCheckAchievementsUnlocksAndAwards(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "rui")
	seedDefinition(t, env, model.AchievementDefinition{
		Code:             "first_lesson",
		Title:            "First Steps",
		RequirementType:  model.RequirementLessonsCompleted,
		RequirementValue: 1,
		XPReward:         25,
	})

	// 条件未满足时不解锁
	unlocked, err := env.Achievements.CheckAchievements(user.ID)
	require.NoError(t, err)
	assert.Empty(t, unlocked)

	now := time.Now()
	require.NoError(t, env.DB.Create(&model.LessonProgress{
		UserID:          user.ID,
		LessonID:        1,
		PercentComplete: 100,
		IsCompleted:     true,
		StartedAt:       now,
		CompletedAt:     &now,
		LastAccessedAt:  now,
	}).Error)

	unlocked, err = env.Achievements.CheckAchievements(user.ID)
	require.NoError(t, err)
	require.Len(t, unlocked, 1)
	assert.Equal(t, "first_lesson", unlocked[0].Definition.Code)
	assert.Equal(t, 25, unlocked[0].XPAwarded)
	assert.Equal(t, 25, env.totalXP(t, user.ID))

	// 再检查一次不会重复解锁、重复发奖
	unlocked, err = env.Achievements.CheckAchievements(user.ID)
	require.NoError(t, err)
	assert.Empty(t, unlocked)
	assert.Equal(t, 25, env.totalXP(t, user.ID))
}

func TestCheckAchievementsStreakRule(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "sol")
	seedDefinition(t, env, model.AchievementDefinition{
		Code:             "week_streak",
		Title:            "On Fire",
		RequirementType:  model.RequirementStreakDays,
		RequirementValue: 7,
		XPReward:         75,
	})

	day := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		_, err := env.Streaks.RecordActivity(user.ID, day.AddDate(0, 0, i))
		require.NoError(t, err)
	}

	unlocked, err := env.Achievements.CheckAchievements(user.ID)
	require.NoError(t, err)
	assert.Empty(t, unlocked)

	_, err = env.Streaks.RecordActivity(user.ID, day.AddDate(0, 0, 6))
	require.NoError(t, err)

	unlocked, err = env.Achievements.CheckAchievements(user.ID)
	require.NoError(t, err)
	require.Len(t, unlocked, 1)
	assert.Equal(t, "week_streak", unlocked[0].Definition.Code)
}

func TestUnlockAchievementIdempotent(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "tao")
	def := seedDefinition(t, env, model.AchievementDefinition{
		Code:             "polyglot",
		Title:            "Polyglot",
		RequirementType:  model.RequirementLanguagesStarted,
		RequirementValue: 2,
		XPReward:         50,
	})

	first, err := env.Achievements.UnlockAchievement(user.ID, def)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 50, first.XPAwarded)

	// 并发调用方晚到：唯一索引拦下，不报错也不再发奖
	second, err := env.Achievements.UnlockAchievement(user.ID, def)
	require.NoError(t, err)
	assert.Nil(t, second)

	var count int64
	require.NoError(t, env.DB.Model(&model.UserAchievement{}).
		Where("user_id = ? AND achievement_id = ?", user.ID, def.ID).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
	assert.Equal(t, 50, env.totalXP(t, user.ID))
}

func TestUnlockAchievementConcurrentCallersAwardOnce(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "wen")
	def := seedDefinition(t, env, model.AchievementDefinition{
		Code:             "early_bird",
		Title:            "Early Bird",
		RequirementType:  model.RequirementLanguagesStarted,
		RequirementValue: 1,
		XPReward:         50,
	})

	// 两个调用方同时解锁同一个成就：恰好一方胜出，奖励只发一次
	var wg sync.WaitGroup
	results := make([]*UnlockResult, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.Achievements.UnlockAchievement(user.ID, def)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	winners := 0
	for _, r := range results {
		if r != nil {
			winners++
			assert.Equal(t, 50, r.XPAwarded)
		}
	}
	assert.Equal(t, 1, winners)

	var count int64
	require.NoError(t, env.DB.Model(&model.UserAchievement{}).
		Where("user_id = ? AND achievement_id = ?", user.ID, def.ID).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
	assert.Equal(t, 50, env.totalXP(t, user.ID))
}

func TestGetUserAchievements(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "uma")
	locked := seedDefinition(t, env, model.AchievementDefinition{
		Code:             "xp_1000",
		Title:            "Rising Star",
		RequirementType:  model.RequirementTotalXP,
		RequirementValue: 1000,
		XPReward:         100,
	})
	toUnlock := seedDefinition(t, env, model.AchievementDefinition{
		Code:             "starter",
		Title:            "Starter",
		RequirementType:  model.RequirementLanguagesStarted,
		RequirementValue: 1,
		XPReward:         10,
	})

	_, err := env.Achievements.UnlockAchievement(user.ID, toUnlock)
	require.NoError(t, err)

	statuses, err := env.Achievements.GetUserAchievements(user.ID)
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	byCode := make(map[string]AchievementStatus, len(statuses))
	for _, s := range statuses {
		byCode[s.Definition.Code] = s
	}

	assert.False(t, byCode[locked.Code].IsUnlocked)
	assert.Nil(t, byCode[locked.Code].UnlockedAt)
	assert.True(t, byCode[toUnlock.Code].IsUnlocked)
	assert.NotNil(t, byCode[toUnlock.Code].UnlockedAt)
}

func TestLessonCompletionTriggersAchievementInline(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "vera")
	lesson := env.createLesson(t)
	seedDefinition(t, env, model.AchievementDefinition{
		Code:             "first_lesson",
		Title:            "First Steps",
		RequirementType:  model.RequirementLessonsCompleted,
		RequirementValue: 1,
		XPReward:         25,
	})

	result, err := env.Sync.ApplyLessonProgress(user.ID, lesson.ID, LessonProgressDelta{
		PercentComplete: 100,
		IsCompleted:     true,
	}, uuid.New().String())
	require.NoError(t, err)

	require.Len(t, result.NewAchievements, 1)
	assert.Equal(t, "first_lesson", result.NewAchievements[0].Definition.Code)
	// 课程奖励 50 + 成就奖励 25
	assert.Equal(t, 75, env.totalXP(t, user.ID))
}
