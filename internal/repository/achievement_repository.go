package repository

import (
	"lingua_learn_backend/internal/model"

	"gorm.io/gorm"
)

type AchievementRepository struct {
	DB *gorm.DB
}

func NewAchievementRepository(db *gorm.DB) *AchievementRepository {
	return &AchievementRepository{DB: db}
}

func (r *AchievementRepository) ListDefinitions() ([]model.AchievementDefinition, error) {
	var defs []model.AchievementDefinition
	err := r.DB.Order("requirement_type ASC, requirement_value ASC").Find(&defs).Error
	return defs, err
}

func (r *AchievementRepository) FindDefinitionByID(id uint) (*model.AchievementDefinition, error) {
	var def model.AchievementDefinition
	err := r.DB.First(&def, id).Error
	if err != nil {
		return nil, err
	}
	return &def, nil
}

func (r *AchievementRepository) ListUnlocks(userID uint) ([]model.UserAchievement, error) {
	var unlocks []model.UserAchievement
	err := r.DB.Where("user_id = ?", userID).Find(&unlocks).Error
	return unlocks, err
}

func (r *AchievementRepository) UnlockedIDs(userID uint) (map[uint]bool, error) {
	unlocks, err := r.ListUnlocks(userID)
	if err != nil {
		return nil, err
	}
	ids := make(map[uint]bool, len(unlocks))
	for _, u := range unlocks {
		ids[u.AchievementID] = true
	}
	return ids, nil
}
