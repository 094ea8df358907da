package notifier

import (
	"fmt"

	"github.com/kuko798/appli.io/internal/reconcile"
)

// describe 将一次合并结果格式化为一行文字。
func describe(r reconcile.Result) string {
	job := r.Job
	switch r.Outcome {
	case reconcile.OutcomeCreated:
		return fmt.Sprintf("new application: %s @ %s [%s]", job.Title, job.Company, job.Status)
	case reconcile.OutcomeUpgraded, reconcile.OutcomeMerged:
		line := fmt.Sprintf("status update: %s @ %s %s -> %s", job.Title, job.Company, r.Previous, job.Status)
		if r.MatchedID != "" && r.MatchedID != job.ID {
			line += " (matched " + r.MatchedID + ")"
		}
		return line
	default:
		return fmt.Sprintf("unchanged: %s @ %s [%s]", job.Title, job.Company, job.Status)
	}
}
