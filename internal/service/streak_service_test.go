package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUTCDate(t *testing.T) {
	// 东京晚上 23 点是 UTC 的下午，必须落在同一个 UTC 日
	tokyo := time.FixedZone("JST", 9*3600)
	at := time.Date(2026, 3, 10, 23, 30, 0, 0, tokyo)

	got := UTCDate(at)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), got)
}

func TestRecordActivityTransitions(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "dina")

	day1 := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	// 首次活动
	streak, err := env.Streaks.RecordActivity(user.ID, day1)
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentStreak)
	assert.Equal(t, 1, streak.LongestStreak)

	// 当天再练，幂等
	streak, err = env.Streaks.RecordActivity(user.ID, day1.Add(8*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentStreak)

	// 连续第二天
	streak, err = env.Streaks.RecordActivity(user.ID, day1.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, streak.CurrentStreak)
	assert.Equal(t, 2, streak.LongestStreak)

	// 连续第三天
	streak, err = env.Streaks.RecordActivity(user.ID, day1.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, 3, streak.CurrentStreak)
	assert.Equal(t, 3, streak.LongestStreak)

	// 中断两天后重置，最长纪录保留
	streak, err = env.Streaks.RecordActivity(user.ID, day1.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentStreak)
	assert.Equal(t, 3, streak.LongestStreak)
}

func TestRecordActivityAcrossMidnightBoundary(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "eli")

	// 23:59 练一次，次日 00:01 再练，算连续两天
	_, err := env.Streaks.RecordActivity(user.ID, time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC))
	require.NoError(t, err)

	streak, err := env.Streaks.RecordActivity(user.ID, time.Date(2026, 3, 11, 0, 1, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, streak.CurrentStreak)
}

func TestCheckMilestone(t *testing.T) {
	milestone, hit := CheckMilestone(7)
	assert.True(t, hit)
	assert.Equal(t, 7, milestone)

	_, hit = CheckMilestone(8)
	assert.False(t, hit)

	_, hit = CheckMilestone(0)
	assert.False(t, hit)
}

func TestGetStreakStatus(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "fay")

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	// 无记录
	status, err := env.Streaks.GetStreak(user.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 0, status.CurrentStreak)
	assert.False(t, status.HasPracticedToday)
	assert.False(t, status.StreakAtRisk)

	_, err = env.Streaks.RecordActivity(user.ID, now)
	require.NoError(t, err)

	// 今天练过
	status, err = env.Streaks.GetStreak(user.ID, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, status.HasPracticedToday)
	assert.False(t, status.StreakAtRisk)

	// 第二天还没练，连续记录有风险
	status, err = env.Streaks.GetStreak(user.ID, now.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.False(t, status.HasPracticedToday)
	assert.True(t, status.StreakAtRisk)

	// 中断两天，不再标记风险
	status, err = env.Streaks.GetStreak(user.ID, now.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.False(t, status.StreakAtRisk)
}
