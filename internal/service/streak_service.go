package service

import (
	"time"

	"lingua_learn_backend/internal/model"
	"lingua_learn_backend/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StreakService 连续练习天数状态机。所有日期比较用 UTC 日历日，
// 客户端本地时钟不参与（多设备跨时区时服务端记账唯一可信）
type StreakService struct {
	DB         *gorm.DB
	StreakRepo *repository.StreakRepository
}

func NewStreakService(db *gorm.DB, streakRepo *repository.StreakRepository) *StreakService {
	return &StreakService{DB: db, StreakRepo: streakRepo}
}

// UTCDate 截断到 UTC 零点
func UTCDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// RecordActivity 状态转移：
//   - 无记录        → streak=1
//   - 今天已记过    → 不变（幂等）
//   - 昨天有活动    → streak+1，更新最长纪录
//   - 中断 ≥2 天    → streak 重置为 1，最长纪录保留
func (s *StreakService) RecordActivity(userID uint, at time.Time) (*model.Streak, error) {
	today := UTCDate(at)

	var streak model.Streak
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		err := repository.LockForUpdate(tx).
			Where("user_id = ?", userID).
			First(&streak).Error

		if err == gorm.ErrRecordNotFound {
			streak = model.Streak{
				UserID:           userID,
				CurrentStreak:    1,
				LongestStreak:    1,
				LastActivityDate: today,
			}
			// 两台设备同天首练：唯一索引兜底，冲突方重读后走幂等分支
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&streak)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				return nil
			}
			if err := repository.LockForUpdate(tx).Where("user_id = ?", userID).First(&streak).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		last := UTCDate(streak.LastActivityDate)
		switch {
		case last.Equal(today):
			return nil
		case last.Equal(today.AddDate(0, 0, -1)):
			streak.CurrentStreak++
			if streak.CurrentStreak > streak.LongestStreak {
				streak.LongestStreak = streak.CurrentStreak
			}
		default:
			streak.CurrentStreak = 1
		}
		streak.LastActivityDate = today

		return tx.Save(&streak).Error
	})
	if err != nil {
		return nil, err
	}
	return &streak, nil
}

// CheckMilestone 纯查表，调用方决定拿命中做什么（成就检查、庆祝动画）
func CheckMilestone(currentStreak int) (int, bool) {
	for _, m := range model.StreakMilestones {
		if currentStreak == m {
			return m, true
		}
	}
	return 0, false
}

type StreakStatus struct {
	CurrentStreak     int  `json:"currentStreak"`
	LongestStreak     int  `json:"longestStreak"`
	HasPracticedToday bool `json:"hasPracticedToday"`
	StreakAtRisk      bool `json:"streakAtRisk"`
}

// GetStreak 只读视图。StreakAtRisk：昨天练了、今天（UTC）还没练
func (s *StreakService) GetStreak(userID uint, now time.Time) (*StreakStatus, error) {
	streak, err := s.StreakRepo.FindByUser(userID)
	if err == gorm.ErrRecordNotFound {
		return &StreakStatus{}, nil
	}
	if err != nil {
		return nil, err
	}

	today := UTCDate(now)
	last := UTCDate(streak.LastActivityDate)

	return &StreakStatus{
		CurrentStreak:     streak.CurrentStreak,
		LongestStreak:     streak.LongestStreak,
		HasPracticedToday: last.Equal(today),
		StreakAtRisk:      last.Equal(today.AddDate(0, 0, -1)),
	}, nil
}
