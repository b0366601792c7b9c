package model

import "time"

// 成就规则类型，新增成就 = 在 achievement_definitions 加一行种子数据；
// 新类型才需要在 service 的 evaluator 注册表里加一个谓词
const (
	RequirementLessonsCompleted = "lessons_completed"
	RequirementLanguagesStarted = "languages_started"
	RequirementStreakDays       = "streak_days"
	RequirementTotalXP          = "total_xp"
)

// swagger:model AchievementDefinition
type AchievementDefinition struct {
	BaseModel
	Code             string `gorm:"size:50;unique;not null" json:"code"`
	Title            string `gorm:"size:100;not null" json:"title"`
	Description      string `gorm:"size:255" json:"description"`
	Icon             string `gorm:"size:255" json:"icon"`
	RequirementType  string `gorm:"size:30;not null" json:"requirementType"`
	RequirementValue int    `gorm:"not null" json:"requirementValue"`
	XPReward         int    `gorm:"default:0" json:"xpReward"`
}

func (AchievementDefinition) TableName() string {
	return "achievement_definitions"
}

// UserAchievement 解锁记录，写一次不再改
// 唯一索引在存储层挡住 check-then-insert 竞态：冲突视为已解锁
type UserAchievement struct {
	BaseModel
	UserID        uint      `gorm:"type:bigint unsigned;not null;uniqueIndex:idx_user_achievement" json:"userId"`
	AchievementID uint      `gorm:"type:bigint unsigned;not null;uniqueIndex:idx_user_achievement" json:"achievementId"`
	UnlockedAt    time.Time `gorm:"not null" json:"unlockedAt"`
}

func (UserAchievement) TableName() string {
	return "user_achievements"
}
