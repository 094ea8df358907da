package model

import (
	"time"

	"gorm.io/datatypes"
)

// RawMessageStatus 表示原始邮件的处理状态。
type RawMessageStatus string

const (
	RawMessagePending   RawMessageStatus = "pending"
	RawMessageProcessed RawMessageStatus = "processed"
	RawMessageSkipped   RawMessageStatus = "skipped"
)

// RawMessage 保存抓取到的原始邮件及处理结果，按 MessageID 去重。
// Details 记录分类得分、命中信号与合并结果，便于排查误判。
type RawMessage struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	MessageID  string            `gorm:"uniqueIndex" json:"message_id"`
	Subject    string            `json:"subject"`
	From       string            `gorm:"column:sender" json:"from"`
	Body       string            `json:"body"`
	DateHeader string            `json:"date_header"`
	Status     RawMessageStatus  `gorm:"index" json:"status"`
	Reason     string            `json:"reason"`
	Details    datatypes.JSONMap `json:"details"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}
