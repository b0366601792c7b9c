package repository

import (
	"errors"

	"lingua_learn_backend/internal/model"

	"gorm.io/gorm"
)

type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

func (r *ProgressRepository) FindTaskProgress(userID, lessonID uint, taskNumber int) (*model.TaskProgress, error) {
	var task model.TaskProgress
	err := r.DB.Where("user_id = ? AND lesson_id = ? AND task_number = ?", userID, lessonID, taskNumber).
		First(&task).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *ProgressRepository) FindTasksByLesson(userID, lessonID uint) ([]model.TaskProgress, error) {
	var tasks []model.TaskProgress
	err := r.DB.Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		Order("task_number ASC").
		Find(&tasks).Error
	return tasks, err
}

func (r *ProgressRepository) FindLessonProgress(userID, lessonID uint) (*model.LessonProgress, error) {
	var lesson model.LessonProgress
	err := r.DB.Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		First(&lesson).Error
	if err != nil {
		return nil, err
	}
	return &lesson, nil
}

func (r *ProgressRepository) ListLessonProgress(userID uint) ([]model.LessonProgress, error) {
	var lessons []model.LessonProgress
	err := r.DB.Where("user_id = ?", userID).
		Order("last_accessed_at DESC").
		Find(&lessons).Error
	return lessons, err
}

func (r *ProgressRepository) CountCompletedLessons(userID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.LessonProgress{}).
		Where("user_id = ? AND is_completed = ?", userID, true).
		Count(&count).Error
	return count, err
}

func (r *ProgressRepository) CountLanguagesStarted(userID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.UserLanguage{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

// IsNotFound 进度记录首次变更前不存在，按零值处理
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
