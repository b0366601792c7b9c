package controller

import (
	"strconv"
	"time"

	"lingua_learn_backend/internal/service"
	"lingua_learn_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type GamificationController struct {
	XPService          *service.XPService
	StreakService      *service.StreakService
	AchievementService *service.AchievementService
}

func NewGamificationController(
	xpService *service.XPService,
	streakService *service.StreakService,
	achievementService *service.AchievementService,
) *GamificationController {
	return &GamificationController{
		XPService:          xpService,
		StreakService:      streakService,
		AchievementService: achievementService,
	}
}

// @Summary Current level progress
// @Tags gamification
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /api/gamification/xp [get]
func (c *GamificationController) GetXP(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	progress, err := c.XPService.GetLevelProgress(user.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, progress)
}

// @Summary XP ledger history
// @Description Recent ledger entries plus a ledger-vs-counter consistency check
// @Tags gamification
// @Produce json
// @Security ApiKeyAuth
// @Param limit query int false "entries to return" default(50)
// @Success 200 {object} util.Response
// @Router /api/gamification/xp/history [get]
func (c *GamificationController) GetXPHistory(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	limit := 50
	if limitStr := ctx.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 500 {
			limit = l
		}
	}

	history, err := c.XPService.GetXPHistory(user.UserID, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, history)
}

// @Summary Streak status
// @Tags gamification
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /api/gamification/streak [get]
func (c *GamificationController) GetStreak(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	status, err := c.StreakService.GetStreak(user.UserID, time.Now())
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, status)
}

// @Summary All achievements with unlock state
// @Tags gamification
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /api/gamification/achievements [get]
func (c *GamificationController) GetAchievements(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	achievements, err := c.AchievementService.GetUserAchievements(user.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, achievements)
}

// @Summary Re-evaluate achievement rules now
// @Tags gamification
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /api/gamification/achievements/check [post]
func (c *GamificationController) CheckAchievements(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	unlocked, err := c.AchievementService.CheckAchievements(user.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, unlocked)
}

// @Summary Leaderboard
// @Tags gamification
// @Produce json
// @Security ApiKeyAuth
// @Param scope query string false "global or weekly" default(global)
// @Param limit query int false "entries" default(10)
// @Param offset query int false "offset" default(0)
// @Success 200 {object} util.Response
// @Router /api/gamification/leaderboard [get]
func (c *GamificationController) GetLeaderboard(ctx *gin.Context) {
	scope := ctx.DefaultQuery("scope", util.LeaderboardScopeGlobal)
	if scope != util.LeaderboardScopeGlobal && scope != util.LeaderboardScopeWeekly {
		util.BadRequest(ctx, "scope must be global or weekly")
		return
	}

	limit := 10
	if limitStr := ctx.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			limit = l
		}
	}
	offset := 0
	if offsetStr := ctx.Query("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil {
			offset = o
		}
	}

	entries, err := c.XPService.GetLeaderboard(ctx.Request.Context(), scope, limit, offset)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, entries)
}
