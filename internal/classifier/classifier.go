package classifier

import (
	"strings"

	"github.com/kuko798/appli.io/internal/model"
)

// Prediction 包含最终状态、各状态得分与命中信号。
type Prediction struct {
	Status  model.Status         `json:"status"`
	Scores  map[model.Status]int `json:"scores"`
	Signals []string             `json:"signals"`
}

// Classifier 基于词表打分与正则覆盖规则判定邮件状态，构造后只读，可并发使用。
type Classifier struct {
	priors  Weights
	lexicon map[string]Weights
	rules   []Rule
	order   []model.Status
}

// New 使用给定模型创建分类器，模型内容会被复制。
func New(m Model) *Classifier {
	c := &Classifier{
		priors:  m.Priors,
		lexicon: make(map[string]Weights, len(m.Lexicon)),
		rules:   append([]Rule(nil), m.Rules...),
		order:   append([]model.Status(nil), m.Order...),
	}
	if len(c.order) == 0 {
		c.order = DefaultOrder()
	}
	for key, w := range m.Lexicon {
		c.lexicon[strings.ToLower(key)] = w
	}
	return c
}

// Predict 返回文本对应的状态，空文本默认 Applied。
func (c *Classifier) Predict(text string) model.Status {
	return c.Classify(text).Status
}

// Classify 计算完整得分。
func (c *Classifier) Classify(text string) Prediction {
	scores := make(map[model.Status]int, len(c.order))
	for _, s := range c.order {
		scores[s] = c.priors.Get(s)
	}
	pred := Prediction{Status: model.StatusApplied, Scores: scores}
	if strings.TrimSpace(text) == "" {
		return pred
	}

	seen := make(map[string]struct{})
	signal := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		pred.Signals = append(pred.Signals, name)
	}

	for _, tok := range Tokenize(text) {
		w, ok := c.lexicon[tok]
		if !ok {
			continue
		}
		c.add(scores, w, 1)
		signal("lexicon:" + tok)
	}

	for _, r := range c.rules {
		hits := r.hits(text)
		if hits == 0 || !r.Guard.allows(scores) {
			continue
		}
		c.add(scores, r.Deltas, hits)
		signal("rule:" + r.Name)
	}

	pred.Status = c.best(scores)
	return pred
}

func (c *Classifier) add(scores map[model.Status]int, w Weights, times int) {
	for _, s := range c.order {
		delta := w.Get(s) * times
		if delta == 0 {
			continue
		}
		v := scores[s] + delta
		if delta < 0 && v < 0 {
			v = 0
		}
		scores[s] = v
	}
}

// best 取严格最大值，平分时按 order 中靠前的状态。
func (c *Classifier) best(scores map[model.Status]int) model.Status {
	bestStatus := c.order[0]
	bestScore := scores[bestStatus]
	for _, s := range c.order[1:] {
		if scores[s] > bestScore {
			bestStatus = s
			bestScore = scores[s]
		}
	}
	return bestStatus
}
