package notifier

import (
	"context"
	"log"
	"os"

	"github.com/kuko798/appli.io/internal/reconcile"
)

// LogNotifier 仅打印变更，适合开发阶段使用。
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier 创建日志通知器，未提供 logger 时默认输出到标准输出。
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.New(os.Stdout, "[notify] ", log.LstdFlags)
	}
	return &LogNotifier{logger: logger}
}

// Notify 逐条打印新建或状态变化的记录。
func (n LogNotifier) Notify(ctx context.Context, results []reconcile.Result) error {
	for _, r := range results {
		n.logger.Print(describe(r))
	}
	return nil
}
