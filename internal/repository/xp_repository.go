package repository

import (
	"time"

	"lingua_learn_backend/internal/model"

	"gorm.io/gorm"
)

type XPRepository struct {
	DB *gorm.DB
}

func NewXPRepository(db *gorm.DB) *XPRepository {
	return &XPRepository{DB: db}
}

func (r *XPRepository) ListEntries(userID uint, limit int) ([]model.XPLedgerEntry, error) {
	var entries []model.XPLedgerEntry
	err := r.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// SumAmounts 流水合计，审计校验用：必须等于 users.total_xp
func (r *XPRepository) SumAmounts(userID uint) (int, error) {
	var total int64
	err := r.DB.Model(&model.XPLedgerEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return int(total), err
}

type PeriodTotal struct {
	UserID uint
	XP     int
}

// PeriodTotals 一段时间内每个用户的获得经验，周排行榜用
func (r *XPRepository) PeriodTotals(since time.Time, limit, offset int) ([]PeriodTotal, error) {
	var totals []PeriodTotal
	err := r.DB.Model(&model.XPLedgerEntry{}).
		Select("user_id, SUM(amount) AS xp").
		Where("created_at >= ?", since).
		Group("user_id").
		Order("xp DESC").
		Limit(limit).
		Offset(offset).
		Scan(&totals).Error
	return totals, err
}
