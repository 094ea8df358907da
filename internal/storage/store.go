package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kuko798/appli.io/internal/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store 封装 SQLite 数据库访问，负责求职记录与原始邮件的读写。
type Store struct {
	db *gorm.DB
}

// RawUpsertResult 表示原始邮件写入结果。
type RawUpsertResult struct {
	Created     int
	NewMessages []model.RawMessage
}

// JobQueryOptions 提供记录查询过滤条件。
type JobQueryOptions struct {
	Status model.Status
	Limit  int
	Offset int
}

// RawMessageQuery 描述原始邮件筛选条件。
type RawMessageQuery struct {
	Status model.RawMessageStatus
	Limit  int
}

// RawMessageUpdate 用于更新原始邮件处理状态。
type RawMessageUpdate struct {
	Status  model.RawMessageStatus
	Reason  string
	Details datatypes.JSONMap
}

// StatusCount 为按状态聚合的数量。
type StatusCount struct {
	Status model.Status
	Total  int64
}

// NewStore 创建 Store 并自动迁移数据表。
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.AutoMigrate(&model.JobRecord{}, &model.RawMessage{}); err != nil {
		return nil, fmt.Errorf("auto migrate models: %w", err)
	}

	return &Store{db: db}, nil
}

// Close 关闭底层数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

// GetJobs 按插入顺序返回全部记录。
func (s *Store) GetJobs(ctx context.Context) ([]model.JobRecord, error) {
	var jobs []model.JobRecord
	if err := s.db.WithContext(ctx).Order("position ASC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("get jobs: %w", err)
	}
	return jobs, nil
}

// SetJobs 在一个事务内用给定集合整体替换记录表，集合外的记录被删除。
func (s *Store) SetJobs(ctx context.Context, jobs []model.JobRecord) error {
	rows := make([]model.JobRecord, len(jobs))
	ids := make([]string, 0, len(jobs))
	for i, job := range jobs {
		job.Position = i
		// 时间以 UTC 文本落库，date 列的字典序才等于时间先后。
		job.Date = job.Date.UTC()
		job.LastUpdated = job.LastUpdated.UTC()
		rows[i] = job
		ids = append(ids, job.ID)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		del := tx.Where("1 = 1")
		if len(ids) > 0 {
			del = tx.Where("id NOT IN ?", ids)
		}
		if err := del.Delete(&model.JobRecord{}).Error; err != nil {
			return fmt.Errorf("delete stale jobs: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}

		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"company",
				"title",
				"subject",
				"status",
				"date",
				"last_updated",
				"manual_entry",
				"source",
				"url",
				"position",
			}),
		}).CreateInBatches(&rows, 200).Error
		if err != nil {
			return fmt.Errorf("upsert jobs: %w", err)
		}
		return nil
	})
}

// ListJobs 返回按日期倒序的记录列表。
func (s *Store) ListJobs(ctx context.Context, opts JobQueryOptions) ([]model.JobRecord, error) {
	var jobs []model.JobRecord
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	query := s.db.WithContext(ctx).Model(&model.JobRecord{}).Order("date DESC").Order("position ASC")
	query = applyJobFilters(query, opts)
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}

	if err := query.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// CountJobs 返回满足过滤条件的记录数量。
func (s *Store) CountJobs(ctx context.Context, opts JobQueryOptions) (int64, error) {
	var total int64
	query := applyJobFilters(s.db.WithContext(ctx).Model(&model.JobRecord{}), opts)
	if err := query.Count(&total).Error; err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return total, nil
}

// CountByStatus 返回每个状态的记录数，没有记录的状态计为 0。
func (s *Store) CountByStatus(ctx context.Context) (map[model.Status]int64, error) {
	var rows []StatusCount
	if err := s.db.WithContext(ctx).Model(&model.JobRecord{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}

	counts := make(map[model.Status]int64, len(model.Statuses()))
	for _, st := range model.Statuses() {
		counts[st] = 0
	}
	for _, r := range rows {
		counts[r.Status] = r.Total
	}
	return counts, nil
}

// GetJob 根据 ID 获取记录，不存在时返回 sql.ErrNoRows。
func (s *Store) GetJob(ctx context.Context, id string) (*model.JobRecord, error) {
	var job model.JobRecord
	if err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// UpsertRawMessages 写入原始邮件，按 message_id 去重；已存在的行不重置处理状态。
func (s *Store) UpsertRawMessages(ctx context.Context, msgs []model.RawMessage) (RawUpsertResult, error) {
	res := RawUpsertResult{}
	if len(msgs) == 0 {
		return res, nil
	}

	ids := make([]string, 0, len(msgs))
	for i := range msgs {
		if msgs[i].Status == "" {
			msgs[i].Status = model.RawMessagePending
		}
		ids = append(ids, msgs[i].MessageID)
	}

	var existingIDs []string
	if err := s.db.WithContext(ctx).Model(&model.RawMessage{}).
		Where("message_id IN ?", ids).
		Pluck("message_id", &existingIDs).Error; err != nil {
		return res, fmt.Errorf("query existing message ids: %w", err)
	}
	existing := make(map[string]struct{}, len(existingIDs))
	for _, id := range existingIDs {
		existing[id] = struct{}{}
	}

	fresh := make([]model.RawMessage, 0, len(msgs))
	for i := range msgs {
		if _, ok := existing[msgs[i].MessageID]; ok {
			continue
		}
		existing[msgs[i].MessageID] = struct{}{}
		fresh = append(fresh, msgs[i])
	}
	res.Created = len(fresh)
	res.NewMessages = fresh
	if len(fresh) == 0 {
		return res, nil
	}

	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"subject", "sender", "body", "date_header", "updated_at"}),
	}).Create(&fresh)
	if tx.Error != nil {
		return res, fmt.Errorf("upsert raw messages: %w", tx.Error)
	}
	return res, nil
}

// ListRawMessages 返回指定状态的原始邮件，默认 pending，按创建顺序升序。
func (s *Store) ListRawMessages(ctx context.Context, query RawMessageQuery) ([]model.RawMessage, error) {
	var msgs []model.RawMessage
	status := query.Status
	if status == "" {
		status = model.RawMessagePending
	}
	limit := query.Limit
	if limit <= 0 {
		limit = 50
	}
	if err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("list raw messages: %w", err)
	}
	return msgs, nil
}

// UpdateRawMessageStatus 更新原始邮件状态及处理详情。
func (s *Store) UpdateRawMessageStatus(ctx context.Context, id uint, update RawMessageUpdate) error {
	if update.Status == "" {
		update.Status = model.RawMessageProcessed
	}
	values := map[string]any{
		"status": update.Status,
		"reason": update.Reason,
	}
	if update.Details != nil {
		values["details"] = update.Details
	}
	tx := s.db.WithContext(ctx).Model(&model.RawMessage{}).Where("id = ?", id).Updates(values)
	if tx.Error != nil {
		return fmt.Errorf("update raw message status: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("update raw message status: id %d not found", id)
	}
	return nil
}

func applyJobFilters(db *gorm.DB, opts JobQueryOptions) *gorm.DB {
	if opts.Status == "" {
		return db
	}
	return db.Where("status = ?", opts.Status)
}
