package controller

import (
	"strconv"

	"lingua_learn_backend/internal/repository"
	"lingua_learn_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type LessonController struct {
	LessonRepo *repository.LessonRepository
}

func NewLessonController(lessonRepo *repository.LessonRepository) *LessonController {
	return &LessonController{LessonRepo: lessonRepo}
}

// @Summary List published lessons
// @Tags lessons
// @Produce json
// @Param languageId query int false "filter by language"
// @Success 200 {object} util.Response
// @Router /api/lessons [get]
func (c *LessonController) ListLessons(ctx *gin.Context) {
	var languageID uint
	if idStr := ctx.Query("languageId"); idStr != "" {
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			util.BadRequest(ctx, "invalid language id")
			return
		}
		languageID = uint(id)
	}

	lessons, err := c.LessonRepo.FindPublished(languageID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, lessons)
}

// @Summary Lesson detail
// @Tags lessons
// @Produce json
// @Param id path int true "lesson id"
// @Success 200 {object} util.Response
// @Router /api/lessons/{id} [get]
func (c *LessonController) GetLesson(ctx *gin.Context) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "invalid lesson id")
		return
	}

	lesson, err := c.LessonRepo.FindByID(uint(id))
	if err != nil {
		util.NotFound(ctx)
		return
	}

	util.Success(ctx, lesson)
}

// @Summary List languages
// @Tags lessons
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/languages [get]
func (c *LessonController) ListLanguages(ctx *gin.Context) {
	languages, err := c.LessonRepo.ListLanguages()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, languages)
}
