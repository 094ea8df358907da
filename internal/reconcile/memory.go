package reconcile

import (
	"context"
	"sync"

	"github.com/kuko798/appli.io/internal/model"
)

// MemoryPort 是内存中的 Port 实现，读写均复制切片。
type MemoryPort struct {
	mu   sync.RWMutex
	jobs []model.JobRecord
}

// NewMemoryPort 使用初始记录创建 MemoryPort。
func NewMemoryPort(jobs ...model.JobRecord) *MemoryPort {
	return &MemoryPort{jobs: append([]model.JobRecord(nil), jobs...)}
}

func (m *MemoryPort) GetJobs(ctx context.Context) ([]model.JobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.JobRecord(nil), m.jobs...), nil
}

func (m *MemoryPort) SetJobs(ctx context.Context, jobs []model.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append([]model.JobRecord(nil), jobs...)
	return nil
}
