package offline

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Queue 客户端离线变更队列。入队总是立即成功，上报在后台按
// 入队顺序逐条重放；顺序错了合并语义就错了，所以绝不并发、绝不重排
type Queue struct {
	store      *Store
	sender     Sender
	logger     *zap.Logger
	maxRetries int

	draining int32
	wake     chan struct{}
}

type Options struct {
	// MaxRetries 同一项被服务端拒绝多少次后进入死信。
	// 只有 4xx 计数，网络不通不消耗次数
	MaxRetries int
}

func NewQueue(store *Store, sender Sender, log *zap.Logger, opts Options) *Queue {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		store:      store,
		sender:     sender,
		logger:     log,
		maxRetries: opts.MaxRetries,
		wake:       make(chan struct{}, 1),
	}
}

// Enqueue 本地落盘即返回，不等网络。MutationID 缺省时生成，
// 服务端靠它去重，同一项重放多少次都只生效一次
func (q *Queue) Enqueue(update Update) (*Item, error) {
	if update.MutationID == "" {
		update.MutationID = uuid.New().String()
	}
	return q.store.Append(update)
}

func (q *Queue) Pending() (int64, error) {
	return q.store.PendingCount()
}

// NotifyOnline 网络恢复时调用，唤醒自动上报循环
func (q *Queue) NotifyOnline() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Drain 逐条上报直到队列清空或遇到瞬时错误。瞬时错误（网络、5xx）
// 停止本轮，队头保留原位；服务端 4xx 计一次失败，到达上限转死信后继续。
// 同一时刻只允许一轮在跑，重入直接返回
func (q *Queue) Drain(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&q.draining, 0, 1) {
		return nil
	}
	defer atomic.StoreInt32(&q.draining, 0)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		item, err := q.store.Oldest()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		update, err := item.Decode()
		if err != nil {
			// 本地数据损坏，无法重放
			q.logger.Error("dropping undecodable queue item",
				zap.Uint("id", item.ID), zap.Error(err))
			if err := q.store.MarkDead(item.ID, err.Error()); err != nil {
				return err
			}
			continue
		}

		sendErr := q.sender.Send(ctx, update)
		if sendErr == nil {
			// 服务端确认后才删除，宁可重放也不丢数据
			if err := q.store.Delete(item.ID); err != nil {
				return err
			}
			continue
		}

		if IsPermanent(sendErr) {
			attempts := item.Attempts + 1
			if attempts >= q.maxRetries {
				q.logger.Warn("queue item dead-lettered",
					zap.Uint("id", item.ID),
					zap.String("mutationId", item.MutationID),
					zap.Error(sendErr))
				if err := q.store.MarkDead(item.ID, sendErr.Error()); err != nil {
					return err
				}
				continue
			}
			if err := q.store.RecordFailure(item.ID, attempts, sendErr.Error()); err != nil {
				return err
			}
			return sendErr
		}

		q.logger.Debug("drain paused, transport unavailable",
			zap.Uint("id", item.ID), zap.Error(sendErr))
		return sendErr
	}
}

// StartAutoDrain 后台循环：定时或被 NotifyOnline 唤醒时尝试清队
func (q *Queue) StartAutoDrain(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-q.wake:
			}
			if err := q.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
				q.logger.Debug("auto drain incomplete", zap.Error(err))
			}
		}
	}()
}
