package repository

import (
	"lingua_learn_backend/internal/model"

	"gorm.io/gorm"
)

type LessonRepository struct {
	DB *gorm.DB
}

func NewLessonRepository(db *gorm.DB) *LessonRepository {
	return &LessonRepository{DB: db}
}

func (r *LessonRepository) FindByID(id uint) (*model.Lesson, error) {
	var lesson model.Lesson
	err := r.DB.First(&lesson, id).Error
	if err != nil {
		return nil, err
	}
	return &lesson, nil
}

func (r *LessonRepository) FindPublished(languageID uint) ([]model.Lesson, error) {
	query := r.DB.Where("published = ?", true)
	if languageID != 0 {
		query = query.Where("language_id = ?", languageID)
	}
	var lessons []model.Lesson
	err := query.Order("position ASC").Find(&lessons).Error
	return lessons, err
}

func (r *LessonRepository) ListLanguages() ([]model.Language, error) {
	var languages []model.Language
	err := r.DB.Order("name ASC").Find(&languages).Error
	return languages, err
}
