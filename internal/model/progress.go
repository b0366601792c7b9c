package model

import "time"

// TaskProgress 任务进度，仅由 SyncService 写入
// 合并规则见 service.SyncService：max / add / overwrite / latch
// swagger:model TaskProgress
type TaskProgress struct {
	BaseModel
	UserID             uint       `gorm:"type:bigint unsigned;not null;uniqueIndex:idx_user_lesson_task" json:"userId"`
	LessonID           uint       `gorm:"type:bigint unsigned;not null;uniqueIndex:idx_user_lesson_task" json:"lessonId"`
	TaskNumber         int        `gorm:"not null;uniqueIndex:idx_user_lesson_task" json:"taskNumber"` // 1-5
	PercentComplete    int        `gorm:"default:0" json:"percentComplete"`
	TimeSpentSeconds   int        `gorm:"default:0" json:"timeSpentSeconds"`
	RepsCompleted      int        `gorm:"default:0" json:"repsCompleted"`
	SentencesCompleted int        `gorm:"default:0" json:"sentencesCompleted"`
	IsCompleted        bool       `gorm:"default:false" json:"isCompleted"` // 单向闩锁 false→true
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
}

func (TaskProgress) TableName() string {
	return "task_progress"
}

// LessonProgress 课程进度，仅由 SyncService 写入
// 不变量：IsCompleted ⇒ 五个任务全部 IsCompleted
// swagger:model LessonProgress
type LessonProgress struct {
	BaseModel
	UserID           uint       `gorm:"type:bigint unsigned;not null;uniqueIndex:idx_user_lesson" json:"userId"`
	LessonID         uint       `gorm:"type:bigint unsigned;not null;uniqueIndex:idx_user_lesson" json:"lessonId"`
	PercentComplete  int        `gorm:"default:0" json:"percentComplete"`
	TimeSpentSeconds int        `gorm:"default:0" json:"timeSpentSeconds"`
	IsCompleted      bool       `gorm:"default:false" json:"isCompleted"`
	StartedAt        time.Time  `json:"startedAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	LastAccessedAt   time.Time  `json:"lastAccessedAt"`
}

func (LessonProgress) TableName() string {
	return "lesson_progress"
}
