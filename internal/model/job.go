package model

import (
	"fmt"
	"strings"
	"time"
)

// Status 表示求职记录所处阶段，取值为封闭集合。
type Status string

const (
	StatusApplied   Status = "Applied"
	StatusInterview Status = "Interview"
	StatusOffer     Status = "Offer"
	StatusRejected  Status = "Rejected"
)

// statusPriority 按信息量排序，仅用于判断新观测能否覆盖旧记录，不代表时间或严重程度。
var statusPriority = map[Status]int{
	StatusRejected:  0,
	StatusApplied:   1,
	StatusInterview: 2,
	StatusOffer:     3,
}

// Statuses 返回全部状态，按展示顺序排列。
func Statuses() []Status {
	return []Status{StatusApplied, StatusInterview, StatusOffer, StatusRejected}
}

// Priority 返回状态优先级，未知状态返回 -1。
func (s Status) Priority() int {
	if p, ok := statusPriority[s]; ok {
		return p
	}
	return -1
}

// Valid 判断状态是否属于封闭集合。
func (s Status) Valid() bool {
	_, ok := statusPriority[s]
	return ok
}

// ParseStatus 不区分大小写地解析状态字符串。
func ParseStatus(v string) (Status, error) {
	trimmed := strings.TrimSpace(v)
	for s := range statusPriority {
		if strings.EqualFold(string(s), trimmed) {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", v)
}

// JobRecord 表示一条求职申请记录
// 中文注释说明字段用途
// - ID: 来源邮件 ID，或手动/页面识别时生成的合成 ID
// - Company: 公司名，已去除 Inc/LLC 等后缀
// - Title: 提取出的职位名，入库时必不为空
// - Subject: 原始邮件主题，仅供人工查看
// - Date: 邮件/事件发生时间，而非入库时间
// - LastUpdated: 每次创建或合并时刷新
// - Position: 插入顺序，SQLite 端口据此还原列表顺序

type JobRecord struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Company     string    `gorm:"index" json:"company"`
	Title       string    `json:"title"`
	Subject     string    `json:"subject"`
	Status      Status    `gorm:"index" json:"status"`
	Date        time.Time `json:"date"`
	LastUpdated time.Time `json:"lastUpdated"`
	ManualEntry bool      `json:"manualEntry"`
	Source      string    `json:"source,omitempty"`
	URL         string    `json:"url,omitempty"`
	Position    int       `gorm:"index" json:"-"`
}

// 记录来源。
const (
	SourceGmail  = "gmail"
	SourceManual = "manual"
	SourcePage   = "page"
)
