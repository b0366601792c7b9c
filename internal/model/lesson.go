package model

import "time"

// TasksPerLesson 每节课固定包含五个任务：
// 听力、跟读、书写、笔译、口译
const TasksPerLesson = 5

type Language struct {
	BaseModel
	Code string `gorm:"size:10;unique;not null" json:"code"`
	Name string `gorm:"size:100;not null" json:"name"`
}

func (Language) TableName() string {
	return "languages"
}

// Lesson 课程内容的只读投影，内容管理由外部系统负责
// swagger:model Lesson
type Lesson struct {
	BaseModel
	LanguageID uint   `gorm:"index;type:bigint unsigned;not null" json:"languageId"`
	Title      string `gorm:"size:200;not null" json:"title"`
	Position   int    `gorm:"default:0" json:"position"`
	Published  bool   `gorm:"default:true" json:"published"`
}

func (Lesson) TableName() string {
	return "lessons"
}

// UserLanguage 用户首次练习某语言课程时建立，languagesStarted 聚合的来源
type UserLanguage struct {
	BaseModel
	UserID     uint      `gorm:"type:bigint unsigned;not null;uniqueIndex:idx_user_language" json:"userId"`
	LanguageID uint      `gorm:"type:bigint unsigned;not null;uniqueIndex:idx_user_language" json:"languageId"`
	StartedAt  time.Time `gorm:"not null" json:"startedAt"`
}

func (UserLanguage) TableName() string {
	return "user_languages"
}
