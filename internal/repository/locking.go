package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockForUpdate 行级锁。MySQL 走 SELECT ... FOR UPDATE；
// SQLite 没有行锁（写入本身串行化），而且不接受该语法
func LockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "mysql" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}
