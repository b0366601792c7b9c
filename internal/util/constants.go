package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

// 排行榜范围
const (
	LeaderboardScopeGlobal = "global"
	LeaderboardScopeWeekly = "weekly"
)
