package model

import "time"

// Streak 每用户一行，仅由 StreakService 的状态机写入
// 日期按 UTC 日历日比较，避免多设备时区漂移
type Streak struct {
	BaseModel
	UserID           uint      `gorm:"type:bigint unsigned;not null;uniqueIndex" json:"userId"`
	CurrentStreak    int       `gorm:"default:0" json:"currentStreak"`
	LongestStreak    int       `gorm:"default:0" json:"longestStreak"`
	LastActivityDate time.Time `json:"lastActivityDate"` // UTC 零点
}

func (Streak) TableName() string {
	return "streaks"
}

// StreakMilestones 连续天数里程碑，纯查表，无存储副作用
var StreakMilestones = []int{7, 14, 30, 60, 100, 365}
