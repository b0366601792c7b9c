package service

import (
	"time"

	"lingua_learn_backend/internal/model"
	"lingua_learn_backend/internal/repository"
	"lingua_learn_backend/pkg/logger"
	"lingua_learn_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AggregateStats 规则评估用的聚合快照，一次加载，所有规则对同一快照判定
type AggregateStats struct {
	CompletedLessons int `json:"completedLessons"`
	LanguagesStarted int `json:"languagesStarted"`
	CurrentStreak    int `json:"currentStreak"`
	TotalXP          int `json:"totalXp"`
}

// RuleFunc 成就谓词。注册表按 requirement_type 索引，
// 新增成就只需加种子数据，评估循环不动
type RuleFunc func(stats AggregateStats, requirement int) bool

var ruleEvaluators = map[string]RuleFunc{
	model.RequirementLessonsCompleted: func(s AggregateStats, v int) bool { return s.CompletedLessons >= v },
	model.RequirementLanguagesStarted: func(s AggregateStats, v int) bool { return s.LanguagesStarted >= v },
	model.RequirementStreakDays:       func(s AggregateStats, v int) bool { return s.CurrentStreak >= v },
	model.RequirementTotalXP:          func(s AggregateStats, v int) bool { return s.TotalXP >= v },
}

type AchievementService struct {
	DB              *gorm.DB
	AchievementRepo *repository.AchievementRepository
	ProgressRepo    *repository.ProgressRepository
	StreakRepo      *repository.StreakRepository
	UserRepo        *repository.UserRepository
	XP              *XPService
}

func NewAchievementService(
	db *gorm.DB,
	achievementRepo *repository.AchievementRepository,
	progressRepo *repository.ProgressRepository,
	streakRepo *repository.StreakRepository,
	userRepo *repository.UserRepository,
	xp *XPService,
) *AchievementService {
	return &AchievementService{
		DB:              db,
		AchievementRepo: achievementRepo,
		ProgressRepo:    progressRepo,
		StreakRepo:      streakRepo,
		UserRepo:        userRepo,
		XP:              xp,
	}
}

func (s *AchievementService) loadStats(userID uint) (AggregateStats, error) {
	var stats AggregateStats

	user, err := s.UserRepo.FindByID(userID)
	if err != nil {
		return stats, err
	}
	stats.TotalXP = user.TotalXP

	lessons, err := s.ProgressRepo.CountCompletedLessons(userID)
	if err != nil {
		return stats, err
	}
	stats.CompletedLessons = int(lessons)

	languages, err := s.ProgressRepo.CountLanguagesStarted(userID)
	if err != nil {
		return stats, err
	}
	stats.LanguagesStarted = int(languages)

	streak, err := s.StreakRepo.FindByUser(userID)
	if err == nil {
		stats.CurrentStreak = streak.CurrentStreak
	} else if err != gorm.ErrRecordNotFound {
		return stats, err
	}

	return stats, nil
}

type UnlockResult struct {
	Definition model.AchievementDefinition `json:"definition"`
	XPAwarded  int                         `json:"xpAwarded"`
	UnlockedAt time.Time                   `json:"unlockedAt"`
}

// CheckAchievements 对快照逐条评估未解锁的定义，命中则尝试解锁
func (s *AchievementService) CheckAchievements(userID uint) ([]UnlockResult, error) {
	stats, err := s.loadStats(userID)
	if err != nil {
		return nil, err
	}

	defs, err := s.AchievementRepo.ListDefinitions()
	if err != nil {
		return nil, err
	}

	unlocked, err := s.AchievementRepo.UnlockedIDs(userID)
	if err != nil {
		return nil, err
	}

	var newlyUnlocked []UnlockResult
	for _, def := range defs {
		if unlocked[def.ID] {
			continue
		}
		evaluate, ok := ruleEvaluators[def.RequirementType]
		if !ok {
			logger.Log.Warn("achievement with unknown requirement type",
				zap.String("code", def.Code), zap.String("type", def.RequirementType))
			continue
		}
		if !evaluate(stats, def.RequirementValue) {
			continue
		}
		result, err := s.UnlockAchievement(userID, def)
		if err != nil {
			return newlyUnlocked, err
		}
		if result != nil {
			newlyUnlocked = append(newlyUnlocked, *result)
		}
	}
	return newlyUnlocked, nil
}

// UnlockAchievement 插入解锁行，唯一索引冲突视为已解锁（nil, nil）。
// 不做先查后插——那是竞态。首次插入成功才发奖励经验
func (s *AchievementService) UnlockAchievement(userID uint, def model.AchievementDefinition) (*UnlockResult, error) {
	unlock := model.UserAchievement{
		UserID:        userID,
		AchievementID: def.ID,
		UnlockedAt:    time.Now(),
	}

	res := s.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&unlock)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// 并发调用方已抢先解锁
		return nil, nil
	}

	monitoring.AchievementsUnlocked.Inc()

	awarded := 0
	if def.XPReward > 0 {
		if _, err := s.XP.AwardXP(userID, def.XPReward, model.XPSourceAchievement, def.Code); err != nil {
			// 解锁已落库；奖励失败要可见、可重试，不回滚解锁
			logger.Log.Error("achievement xp award failed",
				zap.Uint("userID", userID), zap.String("code", def.Code), zap.Error(err))
			monitoring.XPAwardFailures.Inc()
		} else {
			awarded = def.XPReward
		}
	}

	return &UnlockResult{
		Definition: def,
		XPAwarded:  awarded,
		UnlockedAt: unlock.UnlockedAt,
	}, nil
}

type AchievementStatus struct {
	Definition model.AchievementDefinition `json:"definition"`
	IsUnlocked bool                        `json:"isUnlocked"`
	UnlockedAt *time.Time                  `json:"unlockedAt,omitempty"`
}

func (s *AchievementService) GetUserAchievements(userID uint) ([]AchievementStatus, error) {
	defs, err := s.AchievementRepo.ListDefinitions()
	if err != nil {
		return nil, err
	}

	unlocks, err := s.AchievementRepo.ListUnlocks(userID)
	if err != nil {
		return nil, err
	}
	unlockedAt := make(map[uint]time.Time, len(unlocks))
	for _, u := range unlocks {
		unlockedAt[u.AchievementID] = u.UnlockedAt
	}

	statuses := make([]AchievementStatus, len(defs))
	for i, def := range defs {
		status := AchievementStatus{Definition: def}
		if at, ok := unlockedAt[def.ID]; ok {
			status.IsUnlocked = true
			status.UnlockedAt = &at
		}
		statuses[i] = status
	}
	return statuses, nil
}

// CheckRecentlyActive 后台巡检：补偿跨过午夜才满足的规则（如连续天数）
func (s *AchievementService) CheckRecentlyActive(window time.Duration) {
	users, err := s.UserRepo.FindActiveSince(time.Now().Add(-window))
	if err != nil {
		logger.Log.Error("achievement sweep failed to list users", zap.Error(err))
		return
	}
	for _, user := range users {
		if _, err := s.CheckAchievements(user.ID); err != nil {
			logger.Log.Error("achievement sweep failed",
				zap.Uint("userID", user.ID), zap.Error(err))
		}
	}
}
