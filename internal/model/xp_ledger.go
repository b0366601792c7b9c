package model

type XPSource string

const (
	XPSourceTaskComplete   XPSource = "task_complete"
	XPSourceLessonComplete XPSource = "lesson_complete"
	XPSourceAchievement    XPSource = "achievement"
)

// XPLedgerEntry 只增不改的经验流水，users.total_xp 的审计来源
// 不变量：同一用户所有 amount 之和 == users.total_xp
// swagger:model XPLedgerEntry
type XPLedgerEntry struct {
	UUIDBase
	UserID     uint     `gorm:"index;type:bigint unsigned;not null" json:"userId"`
	Amount     int      `gorm:"not null" json:"amount"`
	Source     XPSource `gorm:"size:30;not null" json:"source"`
	SourceID   string   `gorm:"size:64" json:"sourceId,omitempty"`
	TotalAfter int      `gorm:"not null" json:"totalAfter"`
}

func (XPLedgerEntry) TableName() string {
	return "xp_ledger_entries"
}
