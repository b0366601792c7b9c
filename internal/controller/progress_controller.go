package controller

import (
	"strconv"

	"lingua_learn_backend/internal/service"
	"lingua_learn_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ProgressController struct {
	SyncService *service.SyncService
}

func NewProgressController(syncService *service.SyncService) *ProgressController {
	return &ProgressController{SyncService: syncService}
}

type taskProgressRequest struct {
	LessonID   uint   `json:"lessonId" binding:"required"`
	TaskNumber int    `json:"taskNumber" binding:"required"`
	MutationID string `json:"mutationId"`
	service.TaskProgressDelta
}

// @Summary Submit task progress
// @Description Merges one task-level mutation and returns XP awarded by this call
// @Tags progress
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body taskProgressRequest true "task delta"
// @Success 200 {object} util.Response
// @Router /api/progress/tasks [post]
func (c *ProgressController) SubmitTaskProgress(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req taskProgressRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.SyncService.ApplyTaskProgress(user.UserID, req.LessonID, req.TaskNumber, req.TaskProgressDelta, req.MutationID)
	if err != nil {
		switch err {
		case util.ErrLessonNotFound:
			util.NotFound(ctx)
		case util.ErrInvalidTaskNumber, util.ErrInvalidPercent, util.ErrNegativeTimeSpent:
			util.BadRequest(ctx, err.Error())
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, result)
}

type lessonProgressRequest struct {
	LessonID   uint   `json:"lessonId" binding:"required"`
	MutationID string `json:"mutationId"`
	service.LessonProgressDelta
}

// @Summary Submit lesson progress
// @Tags progress
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body lessonProgressRequest true "lesson delta"
// @Success 200 {object} util.Response
// @Router /api/progress/lessons [post]
func (c *ProgressController) SubmitLessonProgress(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req lessonProgressRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.SyncService.ApplyLessonProgress(user.UserID, req.LessonID, req.LessonProgressDelta, req.MutationID)
	if err != nil {
		switch err {
		case util.ErrLessonNotFound:
			util.NotFound(ctx)
		case util.ErrInvalidPercent, util.ErrNegativeTimeSpent:
			util.BadRequest(ctx, err.Error())
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, result)
}

type batchRequest struct {
	Updates []service.BatchUpdate `json:"updates" binding:"required"`
}

// @Summary Replay a batch of offline mutations
// @Description Applies updates strictly in order; stops at the first failure
// @Tags progress
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body batchRequest true "ordered updates"
// @Success 200 {object} util.Response
// @Router /api/progress/sync [post]
func (c *ProgressController) SyncBatch(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req batchRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.SyncService.SyncBatch(user.UserID, req.Updates)
	if err != nil {
		if err == util.ErrEmptyBatch {
			util.BadRequest(ctx, err.Error())
			return
		}
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, result)
}

// @Summary Lesson progress overview
// @Tags progress
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /api/progress/lessons [get]
func (c *ProgressController) GetLessonProgress(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	lessons, err := c.SyncService.ProgressRepo.ListLessonProgress(user.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, lessons)
}

// @Summary Task progress for one lesson
// @Tags progress
// @Produce json
// @Security ApiKeyAuth
// @Param lessonId path int true "lesson id"
// @Success 200 {object} util.Response
// @Router /api/progress/lessons/{lessonId}/tasks [get]
func (c *ProgressController) GetTaskProgress(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	lessonID, err := strconv.ParseUint(ctx.Param("lessonId"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "invalid lesson id")
		return
	}

	tasks, err := c.SyncService.ProgressRepo.FindTasksByLesson(user.UserID, uint(lessonID))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, tasks)
}
