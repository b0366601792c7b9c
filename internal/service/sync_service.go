package service

import (
	"encoding/json"
	"fmt"
	"time"

	"lingua_learn_backend/internal/config"
	"lingua_learn_backend/internal/model"
	"lingua_learn_backend/internal/repository"
	"lingua_learn_backend/internal/util"
	"lingua_learn_backend/pkg/logger"
	"lingua_learn_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SyncService 进度合并的唯一写入方。每次调用一个事务：
// 合并是全有或全无；经验奖励在进度提交后发出，失败不回滚闩锁
type SyncService struct {
	DB           *gorm.DB
	Config       *config.Config
	ProgressRepo *repository.ProgressRepository
	LessonRepo   *repository.LessonRepository
	XP           *XPService
	Streaks      *StreakService
	Achievements *AchievementService
}

func NewSyncService(
	db *gorm.DB,
	cfg *config.Config,
	progressRepo *repository.ProgressRepository,
	lessonRepo *repository.LessonRepository,
	xp *XPService,
	streaks *StreakService,
	achievements *AchievementService,
) *SyncService {
	return &SyncService{
		DB:           db,
		Config:       cfg,
		ProgressRepo: progressRepo,
		LessonRepo:   lessonRepo,
		XP:           xp,
		Streaks:      streaks,
		Achievements: achievements,
	}
}

// TaskProgressDelta 客户端上报的任务增量。字段各有合并规则：
// percent/sentences 取最大，time 累加，reps 覆盖（缺省保留），completed 闩锁
type TaskProgressDelta struct {
	PercentComplete    int  `json:"percentComplete"`
	TimeSpentSeconds   int  `json:"timeSpentSeconds"`
	RepsCompleted      *int `json:"repsCompleted,omitempty"`
	SentencesCompleted int  `json:"sentencesCompleted"`
	IsCompleted        bool `json:"isCompleted"`
}

type LessonProgressDelta struct {
	PercentComplete  int  `json:"percentComplete"`
	TimeSpentSeconds int  `json:"timeSpentSeconds"`
	IsCompleted      bool `json:"isCompleted"`
}

type TaskSyncResult struct {
	Task               model.TaskProgress `json:"task"`
	XPAwarded          int                `json:"xpAwarded"`
	LessonBonusAwarded int                `json:"lessonBonusAwarded"`
	LessonCompleted    bool               `json:"lessonCompleted"`
	Replayed           bool               `json:"replayed,omitempty"`
	NewAchievements    []UnlockResult     `json:"newAchievements,omitempty"`
}

type LessonSyncResult struct {
	Lesson          model.LessonProgress `json:"lesson"`
	XPAwarded       int                  `json:"xpAwarded"`
	Replayed        bool                 `json:"replayed,omitempty"`
	NewAchievements []UnlockResult       `json:"newAchievements,omitempty"`
}

func validateTaskDelta(taskNumber int, delta TaskProgressDelta) error {
	if taskNumber < 1 || taskNumber > model.TasksPerLesson {
		return util.ErrInvalidTaskNumber
	}
	if delta.PercentComplete < 0 || delta.PercentComplete > 100 {
		return util.ErrInvalidPercent
	}
	if delta.TimeSpentSeconds < 0 {
		return util.ErrNegativeTimeSpent
	}
	return nil
}

// ApplyTaskProgress 合并一条任务变更。mutationID 非空时按
// (user, mutation) 去重：重放返回首次结果，时间累加不会翻倍
func (s *SyncService) ApplyTaskProgress(userID, lessonID uint, taskNumber int, delta TaskProgressDelta, mutationID string) (*TaskSyncResult, error) {
	if err := validateTaskDelta(taskNumber, delta); err != nil {
		return nil, err
	}

	lesson, err := s.LessonRepo.FindByID(lessonID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrLessonNotFound
		}
		return nil, err
	}

	now := time.Now()
	var result TaskSyncResult
	firstCompletion := false

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		replayed, err := s.claimMutation(tx, userID, mutationID, &result)
		if err != nil {
			return err
		}
		if replayed {
			result.Replayed = true
			return nil
		}

		if err := s.ensureUserLanguage(tx, userID, lesson.LanguageID, now); err != nil {
			return err
		}

		task, err := s.lockTaskProgress(tx, userID, lessonID, taskNumber)
		if err != nil {
			return err
		}

		firstCompletion = mergeTaskDelta(task, delta, now)
		if err := tx.Save(task).Error; err != nil {
			return err
		}

		lessonCompleted, err := s.reaggregateLesson(tx, userID, lessonID, delta.TimeSpentSeconds, now)
		if err != nil {
			return err
		}

		result.Task = *task
		result.LessonCompleted = lessonCompleted
		if firstCompletion {
			result.XPAwarded = s.Config.Gamification.TaskXP
		}
		if lessonCompleted {
			result.LessonBonusAwarded = s.Config.Gamification.LessonBonusXP
		}

		return s.storeMutationResult(tx, userID, mutationID, result)
	})
	if err != nil {
		return nil, err
	}

	if result.Replayed {
		monitoring.MutationsApplied.WithLabelValues("replay").Inc()
		return &result, nil
	}
	monitoring.MutationsApplied.WithLabelValues("task").Inc()

	// 进度已提交，以下副作用失败不回滚闩锁（可观测、可重试）
	if firstCompletion {
		s.awardOrLog(userID, s.Config.Gamification.TaskXP, model.XPSourceTaskComplete,
			fmt.Sprintf("lesson:%d:task:%d", lessonID, taskNumber))
	}
	if result.LessonCompleted {
		s.awardOrLog(userID, s.Config.Gamification.LessonBonusXP, model.XPSourceLessonComplete,
			fmt.Sprintf("lesson:%d", lessonID))
	}
	if delta.IsCompleted {
		if _, err := s.Streaks.RecordActivity(userID, now); err != nil {
			logger.Log.Error("streak transition failed", zap.Uint("userID", userID), zap.Error(err))
		}
	}
	if firstCompletion || result.LessonCompleted {
		unlocked, err := s.Achievements.CheckAchievements(userID)
		if err != nil {
			logger.Log.Error("achievement check failed", zap.Uint("userID", userID), zap.Error(err))
		}
		result.NewAchievements = unlocked
	}

	return &result, nil
}

// ApplyLessonProgress 课程级变更（无任务编号的播放器），合并纪律与任务级一致
func (s *SyncService) ApplyLessonProgress(userID, lessonID uint, delta LessonProgressDelta, mutationID string) (*LessonSyncResult, error) {
	if delta.PercentComplete < 0 || delta.PercentComplete > 100 {
		return nil, util.ErrInvalidPercent
	}
	if delta.TimeSpentSeconds < 0 {
		return nil, util.ErrNegativeTimeSpent
	}

	lesson, err := s.LessonRepo.FindByID(lessonID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrLessonNotFound
		}
		return nil, err
	}

	now := time.Now()
	var result LessonSyncResult
	firstCompletion := false

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		replayed, err := s.claimMutation(tx, userID, mutationID, &result)
		if err != nil {
			return err
		}
		if replayed {
			result.Replayed = true
			return nil
		}

		if err := s.ensureUserLanguage(tx, userID, lesson.LanguageID, now); err != nil {
			return err
		}

		record, err := s.lockLessonProgress(tx, userID, lessonID, now)
		if err != nil {
			return err
		}

		if delta.PercentComplete > record.PercentComplete {
			record.PercentComplete = delta.PercentComplete
		}
		record.TimeSpentSeconds += delta.TimeSpentSeconds
		if delta.IsCompleted && !record.IsCompleted {
			firstCompletion = true
			record.IsCompleted = true
			record.PercentComplete = 100
			completedAt := now
			record.CompletedAt = &completedAt
		}
		record.LastAccessedAt = now

		if err := tx.Save(record).Error; err != nil {
			return err
		}

		result.Lesson = *record
		if firstCompletion {
			result.XPAwarded = s.Config.Gamification.LessonBonusXP
		}

		return s.storeMutationResult(tx, userID, mutationID, result)
	})
	if err != nil {
		return nil, err
	}

	if result.Replayed {
		monitoring.MutationsApplied.WithLabelValues("replay").Inc()
		return &result, nil
	}
	monitoring.MutationsApplied.WithLabelValues("lesson").Inc()

	if firstCompletion {
		s.awardOrLog(userID, s.Config.Gamification.LessonBonusXP, model.XPSourceLessonComplete,
			fmt.Sprintf("lesson:%d", lessonID))
	}
	if delta.IsCompleted {
		if _, err := s.Streaks.RecordActivity(userID, now); err != nil {
			logger.Log.Error("streak transition failed", zap.Uint("userID", userID), zap.Error(err))
		}
	}
	if firstCompletion {
		unlocked, err := s.Achievements.CheckAchievements(userID)
		if err != nil {
			logger.Log.Error("achievement check failed", zap.Uint("userID", userID), zap.Error(err))
		}
		result.NewAchievements = unlocked
	}

	return &result, nil
}

// BatchUpdate 离线队列重放的一项。TaskNumber 为空表示课程级变更
type BatchUpdate struct {
	LessonID           uint   `json:"lessonId" binding:"required"`
	TaskNumber         *int   `json:"taskNumber,omitempty"`
	MutationID         string `json:"mutationId,omitempty"`
	PercentComplete    int    `json:"percentComplete"`
	TimeSpentSeconds   int    `json:"timeSpentSeconds"`
	RepsCompleted      *int   `json:"repsCompleted,omitempty"`
	SentencesCompleted int    `json:"sentencesCompleted"`
	IsCompleted        bool   `json:"isCompleted"`
}

type BatchItemResult struct {
	Index  int               `json:"index"`
	Task   *TaskSyncResult   `json:"task,omitempty"`
	Lesson *LessonSyncResult `json:"lesson,omitempty"`
	Error  string            `json:"error,omitempty"`
}

type BatchResult struct {
	Results   []BatchItemResult `json:"results"`
	Applied   int               `json:"applied"`
	XPAwarded int               `json:"xpAwarded"`
	Failed    *int              `json:"failedIndex,omitempty"`
}

// SyncBatch 按给定顺序逐条应用，绝不重排；第一条失败即停，
// 未处理的项留给客户端队列下次重放
func (s *SyncService) SyncBatch(userID uint, updates []BatchUpdate) (*BatchResult, error) {
	if len(updates) == 0 {
		return nil, util.ErrEmptyBatch
	}

	batch := &BatchResult{}
	for i, update := range updates {
		item := BatchItemResult{Index: i}

		if update.TaskNumber != nil {
			delta := TaskProgressDelta{
				PercentComplete:    update.PercentComplete,
				TimeSpentSeconds:   update.TimeSpentSeconds,
				RepsCompleted:      update.RepsCompleted,
				SentencesCompleted: update.SentencesCompleted,
				IsCompleted:        update.IsCompleted,
			}
			result, err := s.ApplyTaskProgress(userID, update.LessonID, *update.TaskNumber, delta, update.MutationID)
			if err != nil {
				item.Error = err.Error()
				batch.Results = append(batch.Results, item)
				failed := i
				batch.Failed = &failed
				return batch, nil
			}
			item.Task = result
			batch.XPAwarded += result.XPAwarded + result.LessonBonusAwarded
		} else {
			delta := LessonProgressDelta{
				PercentComplete:  update.PercentComplete,
				TimeSpentSeconds: update.TimeSpentSeconds,
				IsCompleted:      update.IsCompleted,
			}
			result, err := s.ApplyLessonProgress(userID, update.LessonID, delta, update.MutationID)
			if err != nil {
				item.Error = err.Error()
				batch.Results = append(batch.Results, item)
				failed := i
				batch.Failed = &failed
				return batch, nil
			}
			item.Lesson = result
			batch.XPAwarded += result.XPAwarded
		}

		batch.Results = append(batch.Results, item)
		batch.Applied++
	}
	return batch, nil
}

// claimMutation 抢占变更键。重复键说明该变更已应用过：
// 读回首次结果，调用方直接返回，不再触碰进度行
func (s *SyncService) claimMutation(tx *gorm.DB, userID uint, mutationID string, out interface{}) (bool, error) {
	if mutationID == "" {
		return false, nil
	}

	rec := model.SyncMutation{UserID: userID, MutationID: mutationID}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return false, nil
	}

	var prev model.SyncMutation
	if err := tx.Where("user_id = ? AND mutation_id = ?", userID, mutationID).First(&prev).Error; err != nil {
		return false, err
	}
	if len(prev.Result) > 0 {
		if err := json.Unmarshal(prev.Result, out); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *SyncService) storeMutationResult(tx *gorm.DB, userID uint, mutationID string, result interface{}) error {
	if mutationID == "" {
		return nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return tx.Model(&model.SyncMutation{}).
		Where("user_id = ? AND mutation_id = ?", userID, mutationID).
		Update("result", datatypes.JSON(payload)).Error
}

// ensureUserLanguage 首次练习某语言时建立关联，冲突即已存在
func (s *SyncService) ensureUserLanguage(tx *gorm.DB, userID, languageID uint, now time.Time) error {
	link := model.UserLanguage{
		UserID:     userID,
		LanguageID: languageID,
		StartedAt:  now,
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error
}

// lockTaskProgress 取行锁；首次变更时惰性建零值记录
func (s *SyncService) lockTaskProgress(tx *gorm.DB, userID, lessonID uint, taskNumber int) (*model.TaskProgress, error) {
	var task model.TaskProgress
	err := repository.LockForUpdate(tx).
		Where("user_id = ? AND lesson_id = ? AND task_number = ?", userID, lessonID, taskNumber).
		First(&task).Error
	if err == gorm.ErrRecordNotFound {
		task = model.TaskProgress{
			UserID:     userID,
			LessonID:   lessonID,
			TaskNumber: taskNumber,
		}
		if err := tx.Create(&task).Error; err != nil {
			return nil, err
		}
		return &task, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *SyncService) lockLessonProgress(tx *gorm.DB, userID, lessonID uint, now time.Time) (*model.LessonProgress, error) {
	var record model.LessonProgress
	err := repository.LockForUpdate(tx).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		First(&record).Error
	if err == gorm.ErrRecordNotFound {
		record = model.LessonProgress{
			UserID:         userID,
			LessonID:       lessonID,
			StartedAt:      now,
			LastAccessedAt: now,
		}
		if err := tx.Create(&record).Error; err != nil {
			return nil, err
		}
		return &record, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// mergeTaskDelta 字段级合并，返回是否发生首次完成跃迁
func mergeTaskDelta(task *model.TaskProgress, delta TaskProgressDelta, now time.Time) bool {
	if delta.PercentComplete > task.PercentComplete {
		task.PercentComplete = delta.PercentComplete
	}
	task.TimeSpentSeconds += delta.TimeSpentSeconds
	if delta.RepsCompleted != nil {
		task.RepsCompleted = *delta.RepsCompleted
	}
	if delta.SentencesCompleted > task.SentencesCompleted {
		task.SentencesCompleted = delta.SentencesCompleted
	}

	firstCompletion := false
	if delta.IsCompleted && !task.IsCompleted {
		// 闩锁翻转，之后的重复完成声明不再有任何奖励
		firstCompletion = true
		task.IsCompleted = true
		task.PercentComplete = 100
		completedAt := now
		task.CompletedAt = &completedAt
	}
	return firstCompletion
}

// reaggregateLesson 任务扇入：数完成的兄弟任务，满五门闩课程并触发奖励；
// 否则刷新派生百分比
func (s *SyncService) reaggregateLesson(tx *gorm.DB, userID, lessonID uint, timeSpentDelta int, now time.Time) (bool, error) {
	record, err := s.lockLessonProgress(tx, userID, lessonID, now)
	if err != nil {
		return false, err
	}

	var completedTasks int64
	err = tx.Model(&model.TaskProgress{}).
		Where("user_id = ? AND lesson_id = ? AND is_completed = ?", userID, lessonID, true).
		Count(&completedTasks).Error
	if err != nil {
		return false, err
	}

	lessonCompleted := false
	if completedTasks >= model.TasksPerLesson && !record.IsCompleted {
		lessonCompleted = true
		record.IsCompleted = true
		record.PercentComplete = 100
		completedAt := now
		record.CompletedAt = &completedAt
	} else if !record.IsCompleted {
		record.PercentComplete = int(completedTasks) * 100 / model.TasksPerLesson
	}

	record.TimeSpentSeconds += timeSpentDelta
	record.LastAccessedAt = now

	return lessonCompleted, tx.Save(record).Error
}

func (s *SyncService) awardOrLog(userID uint, amount int, source model.XPSource, sourceID string) {
	if _, err := s.XP.AwardXP(userID, amount, source, sourceID); err != nil {
		logger.Log.Error("xp award failed",
			zap.Uint("userID", userID),
			zap.String("source", string(source)),
			zap.String("sourceID", sourceID),
			zap.Error(err))
		monitoring.XPAwardFailures.Inc()
	}
}
