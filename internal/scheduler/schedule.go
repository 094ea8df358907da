package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const defaultInterval = 2 * time.Hour

type cronConfig struct {
	spec     string
	schedule *cronSchedule
}

// parseSchedule 先按时长解析，再按 cron 解析，都失败时使用默认间隔。
func parseSchedule(value string) (time.Duration, cronConfig) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultInterval, cronConfig{}
	}
	if d, err := time.ParseDuration(trimmed); err == nil && d > 0 {
		return d, cronConfig{}
	}
	if schedule, err := parseCronSpec(trimmed); err == nil {
		return 0, cronConfig{spec: trimmed, schedule: schedule}
	}
	return defaultInterval, cronConfig{}
}

func (s *Scheduler) startCron(ctx context.Context) error {
	for {
		next, err := s.cron.next(s.now())
		if err != nil {
			return fmt.Errorf("compute next cron time: %w", err)
		}
		timer := time.NewTimer(max(time.Until(next), 0))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			s.tick(ctx)
		}
	}
}

// cronSchedule 为解析后的 5 段 cron 表达式，每段用位集记录允许的取值。
type cronSchedule struct {
	minute uint64
	hour   uint64
	dom    uint64
	month  uint64
	dow    uint64
}

type cronField struct {
	name string
	min  int
	max  int
}

var cronFields = [5]cronField{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

func parseCronSpec(spec string) (*cronSchedule, error) {
	parts := strings.Fields(spec)
	if len(parts) != len(cronFields) {
		return nil, fmt.Errorf("cron spec must have %d fields, got %d", len(cronFields), len(parts))
	}
	var sets [5]uint64
	for i, f := range cronFields {
		set, err := parseCronField(parts[i], f.min, f.max)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
		sets[i] = set
	}
	return &cronSchedule{minute: sets[0], hour: sets[1], dom: sets[2], month: sets[3], dow: sets[4]}, nil
}

// parseCronField 支持 *、单值、a-b 区间和 /n 步长，多个片段用逗号分隔。
func parseCronField(expr string, lo, hi int) (uint64, error) {
	var set uint64
	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		rng, stepText, hasStep := strings.Cut(part, "/")
		step := 1
		if hasStep {
			n, err := strconv.Atoi(stepText)
			if err != nil || n <= 0 {
				return 0, fmt.Errorf("invalid step %q", part)
			}
			step = n
		}

		from, to := lo, hi
		switch {
		case rng == "*":
		case strings.Contains(rng, "-"):
			a, b, _ := strings.Cut(rng, "-")
			var err error
			if from, err = cronValue(a, lo, hi); err != nil {
				return 0, err
			}
			if to, err = cronValue(b, lo, hi); err != nil {
				return 0, err
			}
			if from > to {
				return 0, fmt.Errorf("invalid range %q", part)
			}
		default:
			v, err := cronValue(rng, lo, hi)
			if err != nil {
				return 0, err
			}
			from = v
			if !hasStep {
				to = v
			}
		}
		for v := from; v <= to; v += step {
			set |= 1 << uint(v)
		}
	}
	if set == 0 {
		return 0, fmt.Errorf("empty field %q", expr)
	}
	return set, nil
}

func cronValue(text string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || v < lo || v > hi {
		return 0, fmt.Errorf("invalid value %q", text)
	}
	return v, nil
}

func inSet(set uint64, v int) bool {
	return set&(1<<uint(v)) != 0
}

func (c *cronSchedule) matches(t time.Time) bool {
	return inSet(c.minute, t.Minute()) &&
		inSet(c.hour, t.Hour()) &&
		inSet(c.dom, t.Day()) &&
		inSet(c.month, int(t.Month())) &&
		inSet(c.dow, int(t.Weekday()))
}

// next 返回 after 之后第一个匹配的整分钟，最多向后查找一年。
// 不匹配的月、日、时整段跳过。
func (c *cronSchedule) next(after time.Time) (time.Time, error) {
	t := after.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(1, 0, 0)
	loc := t.Location()
	for t.Before(limit) {
		switch {
		case !inSet(c.month, int(t.Month())):
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
		case !inSet(c.dom, t.Day()) || !inSet(c.dow, int(t.Weekday())):
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
		case !inSet(c.hour, t.Hour()):
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, loc)
		case !inSet(c.minute, t.Minute()):
			t = t.Add(time.Minute)
		default:
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("no matching time within a year of %s", after.Format(time.RFC3339))
}
