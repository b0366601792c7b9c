package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"lingua_learn_backend/internal/model"
	"lingua_learn_backend/internal/repository"
	"lingua_learn_backend/pkg/logger"
	"lingua_learn_backend/pkg/monitoring"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const leaderboardKey = "leaderboard:xp"

// LevelThreshold 等级阈值表。CalculateLevel 取阈值 ≤ totalXp 的最大等级，
// 正好落在阈值上算达到该等级
type LevelThreshold struct {
	Level int    `json:"level"`
	XP    int    `json:"xp"`
	Title string `json:"title"`
}

var levelThresholds = []LevelThreshold{
	{Level: 1, XP: 0, Title: "Newcomer"},
	{Level: 2, XP: 100, Title: "Beginner"},
	{Level: 3, XP: 250, Title: "Explorer"},
	{Level: 4, XP: 500, Title: "Apprentice"},
	{Level: 5, XP: 1000, Title: "Conversationalist"},
	{Level: 6, XP: 2000, Title: "Wordsmith"},
	{Level: 7, XP: 3500, Title: "Linguist"},
	{Level: 8, XP: 5500, Title: "Polyglot"},
	{Level: 9, XP: 8000, Title: "Virtuoso"},
	{Level: 10, XP: 11000, Title: "Fluent Master"},
}

func CalculateLevel(totalXP int) int {
	level := 1
	for _, t := range levelThresholds {
		if totalXP >= t.XP {
			level = t.Level
		}
	}
	return level
}

// LevelProgress 当前等级视图，最高级后进度饱和在 100%
type LevelProgress struct {
	Level             int    `json:"level"`
	Title             string `json:"title"`
	TotalXP           int    `json:"totalXp"`
	XPForCurrentLevel int    `json:"xpForCurrentLevel"`
	XPForNextLevel    int    `json:"xpForNextLevel"`
	ProgressPercent   int    `json:"progressPercent"`
}

func GetLevelProgress(totalXP int) LevelProgress {
	level := CalculateLevel(totalXP)
	current := levelThresholds[level-1]

	next := current
	if level < len(levelThresholds) {
		next = levelThresholds[level]
	}

	percent := 100
	if next.XP > current.XP {
		percent = (totalXP - current.XP) * 100 / (next.XP - current.XP)
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	return LevelProgress{
		Level:             level,
		Title:             current.Title,
		TotalXP:           totalXP,
		XPForCurrentLevel: current.XP,
		XPForNextLevel:    next.XP,
		ProgressPercent:   percent,
	}
}

type XPAwardResult struct {
	TotalXP       int  `json:"totalXp"`
	Level         int  `json:"level"`
	LeveledUp     bool `json:"leveledUp"`
	PreviousLevel int  `json:"previousLevel"`
}

type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	UserID uint   `json:"userId"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	XP     int    `json:"xp"`
	Level  int    `json:"level"`
}

type XPService struct {
	DB       *gorm.DB
	UserRepo *repository.UserRepository
	XPRepo   *repository.XPRepository
	Redis    *redis.Client

	// LeaderboardTTL 缓存过期时间，零值表示不过期
	LeaderboardTTL time.Duration
}

func NewXPService(db *gorm.DB, userRepo *repository.UserRepository, xpRepo *repository.XPRepository, rdb *redis.Client) *XPService {
	return &XPService{
		DB:       db,
		UserRepo: userRepo,
		XPRepo:   xpRepo,
		Redis:    rdb,
	}
}

// AwardXP 唯一允许增加 total_xp 的入口。原子自增 + 行锁回读，
// 同一用户两台设备并发完成任务也不会丢更新；流水行与计数更新同事务提交
func (s *XPService) AwardXP(userID uint, amount int, source model.XPSource, sourceID string) (*XPAwardResult, error) {
	if amount <= 0 {
		return nil, errors.New("xp amount must be positive")
	}

	var result XPAwardResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.User{}).
			Where("id = ?", userID).
			Update("total_xp", gorm.Expr("total_xp + ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		var user model.User
		if err := repository.LockForUpdate(tx).First(&user, userID).Error; err != nil {
			return err
		}

		previousLevel := CalculateLevel(user.TotalXP - amount)
		newLevel := CalculateLevel(user.TotalXP)
		if newLevel != user.Level {
			if err := tx.Model(&model.User{}).Where("id = ?", userID).Update("level", newLevel).Error; err != nil {
				return err
			}
		}

		entry := model.XPLedgerEntry{
			UserID:     userID,
			Amount:     amount,
			Source:     source,
			SourceID:   sourceID,
			TotalAfter: user.TotalXP,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		result = XPAwardResult{
			TotalXP:       user.TotalXP,
			Level:         newLevel,
			LeveledUp:     newLevel > previousLevel,
			PreviousLevel: previousLevel,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	monitoring.XPAwarded.WithLabelValues(string(source)).Add(float64(amount))
	s.updateLeaderboardCache(userID, result.TotalXP)

	return &result, nil
}

// updateLeaderboardCache 尽力而为，失败只记日志，排行榜读取有 DB 兜底
func (s *XPService) updateLeaderboardCache(userID uint, totalXP int) {
	if s.Redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := s.Redis.ZAdd(ctx, leaderboardKey, &redis.Z{
		Score:  float64(totalXP),
		Member: strconv.FormatUint(uint64(userID), 10),
	}).Err()
	if err != nil {
		logger.Log.Warn("leaderboard cache update failed", zap.Uint("userID", userID), zap.Error(err))
		return
	}
	if s.LeaderboardTTL > 0 {
		s.Redis.Expire(ctx, leaderboardKey, s.LeaderboardTTL)
	}
}

func (s *XPService) GetLevelProgress(userID uint) (*LevelProgress, error) {
	user, err := s.UserRepo.FindByID(userID)
	if err != nil {
		return nil, err
	}
	progress := GetLevelProgress(user.TotalXP)
	return &progress, nil
}

// XPHistory 经验流水 + 审计：流水合计必须等于冗余计数
type XPHistory struct {
	Entries    []model.XPLedgerEntry `json:"entries"`
	TotalXP    int                   `json:"totalXp"`
	LedgerSum  int                   `json:"ledgerSum"`
	Consistent bool                  `json:"consistent"`
}

func (s *XPService) GetXPHistory(userID uint, limit int) (*XPHistory, error) {
	user, err := s.UserRepo.FindByID(userID)
	if err != nil {
		return nil, err
	}
	entries, err := s.XPRepo.ListEntries(userID, limit)
	if err != nil {
		return nil, err
	}
	sum, err := s.XPRepo.SumAmounts(userID)
	if err != nil {
		return nil, err
	}
	if sum != user.TotalXP {
		logger.Log.Error("xp ledger out of sync with counter",
			zap.Uint("userID", userID), zap.Int("ledger", sum), zap.Int("counter", user.TotalXP))
	}
	return &XPHistory{
		Entries:    entries,
		TotalXP:    user.TotalXP,
		LedgerSum:  sum,
		Consistent: sum == user.TotalXP,
	}, nil
}

// GetLeaderboard 全局榜优先读 Redis ZSET，失败或为空退回 DB；周榜直接聚合流水
func (s *XPService) GetLeaderboard(ctx context.Context, scope string, limit, offset int) ([]LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	if scope == "weekly" {
		return s.weeklyLeaderboard(limit, offset)
	}

	if entries, ok := s.leaderboardFromCache(ctx, limit, offset); ok {
		return entries, nil
	}

	users, err := s.UserRepo.FindTopByXP(limit, offset)
	if err != nil {
		return nil, err
	}
	entries := make([]LeaderboardEntry, len(users))
	for i, user := range users {
		entries[i] = LeaderboardEntry{
			Rank:   offset + i + 1,
			UserID: user.ID,
			Name:   user.Name,
			Avatar: user.Avatar,
			XP:     user.TotalXP,
			Level:  user.Level,
		}
	}
	return entries, nil
}

func (s *XPService) leaderboardFromCache(ctx context.Context, limit, offset int) ([]LeaderboardEntry, bool) {
	if s.Redis == nil {
		return nil, false
	}

	zs, err := s.Redis.ZRevRangeWithScores(ctx, leaderboardKey, int64(offset), int64(offset+limit-1)).Result()
	if err != nil || len(zs) == 0 {
		return nil, false
	}

	entries := make([]LeaderboardEntry, 0, len(zs))
	for i, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			return nil, false
		}
		id, err := strconv.ParseUint(member, 10, 64)
		if err != nil {
			return nil, false
		}
		user, err := s.UserRepo.FindByID(uint(id))
		if err != nil {
			return nil, false
		}
		entries = append(entries, LeaderboardEntry{
			Rank:   offset + i + 1,
			UserID: user.ID,
			Name:   user.Name,
			Avatar: user.Avatar,
			XP:     int(z.Score),
			Level:  user.Level,
		})
	}
	return entries, true
}

func (s *XPService) weeklyLeaderboard(limit, offset int) ([]LeaderboardEntry, error) {
	since := time.Now().AddDate(0, 0, -7)
	totals, err := s.XPRepo.PeriodTotals(since, limit, offset)
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(totals))
	for i, t := range totals {
		user, err := s.UserRepo.FindByID(t.UserID)
		if err != nil {
			return nil, fmt.Errorf("leaderboard user %d: %w", t.UserID, err)
		}
		entries = append(entries, LeaderboardEntry{
			Rank:   offset + i + 1,
			UserID: user.ID,
			Name:   user.Name,
			Avatar: user.Avatar,
			XP:     t.XP,
			Level:  user.Level,
		})
	}
	return entries, nil
}
