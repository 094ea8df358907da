package notifier

import (
	"context"
	"errors"

	"github.com/kuko798/appli.io/internal/model"
	"github.com/kuko798/appli.io/internal/reconcile"
)

// Notifier 为统一通知接口。
type Notifier interface {
	Notify(ctx context.Context, results []reconcile.Result) error
}

// StatusNotifier 只转发落在关注状态上的结果，例如只在面试或 offer 时提醒。
type StatusNotifier struct {
	statuses map[model.Status]struct{}
	next     Notifier
}

// NewStatusNotifier 创建过滤通知器；statuses 为空时全部转发。未知状态名会返回错误。
func NewStatusNotifier(statuses []string, next Notifier) (*StatusNotifier, error) {
	set := make(map[model.Status]struct{}, len(statuses))
	for _, raw := range statuses {
		st, err := model.ParseStatus(raw)
		if err != nil {
			return nil, err
		}
		set[st] = struct{}{}
	}
	return &StatusNotifier{statuses: set, next: next}, nil
}

// Notify 过滤后转发，没有匹配时不调用下游。
func (n *StatusNotifier) Notify(ctx context.Context, results []reconcile.Result) error {
	if n.next == nil {
		return nil
	}
	matches := filterResults(n.statuses, results)
	if len(matches) == 0 {
		return nil
	}
	return n.next.Notify(ctx, matches)
}

func filterResults(statuses map[model.Status]struct{}, results []reconcile.Result) []reconcile.Result {
	filtered := make([]reconcile.Result, 0, len(results))
	for _, r := range results {
		if !r.Changed() {
			continue
		}
		if len(statuses) > 0 {
			if _, ok := statuses[r.Job.Status]; !ok {
				continue
			}
		}
		filtered = append(filtered, r)
	}
	return filtered
}

// Multi 依次调用多个通知器，汇总全部错误。
type Multi []Notifier

// Notify 实现 Notifier。
func (m Multi) Notify(ctx context.Context, results []reconcile.Result) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, results); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
