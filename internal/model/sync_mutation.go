package model

import "gorm.io/datatypes"

// SyncMutation 已应用的客户端变更键。timeSpentSeconds 是加法合并、
// 天然不幂等，客户端重放（超时但服务端已提交）靠这张表去重：
// 相同 (user_id, mutation_id) 直接返回首次计算的结果
type SyncMutation struct {
	UUIDBase
	UserID     uint           `gorm:"type:bigint unsigned;not null;uniqueIndex:idx_user_mutation" json:"userId"`
	MutationID string         `gorm:"size:36;not null;uniqueIndex:idx_user_mutation" json:"mutationId"`
	Result     datatypes.JSON `json:"result"`
}

func (SyncMutation) TableName() string {
	return "sync_mutations"
}
