package offline

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	StatusPending = "pending"
	StatusDead    = "dead"
)

// Update 一条待上报的进度变更，与 /api/progress/sync 的批量项同构。
// TaskNumber 为空表示课程级变更
type Update struct {
	LessonID           uint   `json:"lessonId"`
	TaskNumber         *int   `json:"taskNumber,omitempty"`
	MutationID         string `json:"mutationId,omitempty"`
	PercentComplete    int    `json:"percentComplete"`
	TimeSpentSeconds   int    `json:"timeSpentSeconds"`
	RepsCompleted      *int   `json:"repsCompleted,omitempty"`
	SentencesCompleted int    `json:"sentencesCompleted"`
	IsCompleted        bool   `json:"isCompleted"`
}

// Item 队列中的一行。ID 自增保证先进先出的重放顺序
type Item struct {
	ID         uint           `gorm:"primarykey" json:"id"`
	MutationID string         `gorm:"size:64;uniqueIndex" json:"mutationId"`
	Payload    datatypes.JSON `json:"payload"`
	Status     string         `gorm:"size:16;default:pending;index" json:"status"`
	Attempts   int            `json:"attempts"`
	LastError  string         `gorm:"size:512" json:"lastError,omitempty"`
	EnqueuedAt time.Time      `json:"enqueuedAt"`
}

func (Item) TableName() string {
	return "sync_queue"
}

func (i *Item) Decode() (Update, error) {
	var u Update
	err := json.Unmarshal(i.Payload, &u)
	return u, err
}

// Store 本地持久化队列，客户端重启后未上报的变更仍在
type Store struct {
	db *gorm.DB
}

func OpenStore(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Item{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Append(update Update) (*Item, error) {
	payload, err := json.Marshal(update)
	if err != nil {
		return nil, err
	}
	item := Item{
		MutationID: update.MutationID,
		Payload:    payload,
		Status:     StatusPending,
		EnqueuedAt: time.Now(),
	}
	if err := s.db.Create(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// Oldest 返回最早入队的待上报项，队列为空时返回 gorm.ErrRecordNotFound
func (s *Store) Oldest() (*Item, error) {
	var item Item
	err := s.db.Where("status = ?", StatusPending).Order("id ASC").First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) Delete(id uint) error {
	return s.db.Delete(&Item{}, id).Error
}

func (s *Store) RecordFailure(id uint, attempts int, lastError string) error {
	return s.db.Model(&Item{}).Where("id = ?", id).
		Updates(map[string]interface{}{"attempts": attempts, "last_error": lastError}).Error
}

// MarkDead 达到重试上限的项移出重放路径，留在表里供排查
func (s *Store) MarkDead(id uint, lastError string) error {
	return s.db.Model(&Item{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": StatusDead, "last_error": lastError}).Error
}

func (s *Store) PendingCount() (int64, error) {
	var count int64
	err := s.db.Model(&Item{}).Where("status = ?", StatusPending).Count(&count).Error
	return count, err
}

func (s *Store) DeadItems() ([]Item, error) {
	var items []Item
	err := s.db.Where("status = ?", StatusDead).Order("id ASC").Find(&items).Error
	return items, err
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
