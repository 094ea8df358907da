package classifier

import (
	"testing"

	"github.com/kuko798/appli.io/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	t.Parallel()

	got := Tokenize("Hello, World! It's a 2nd-round Interview\n\tat ACME")
	assert.Equal(t, []string{"hello", "world", "its", "2ndround", "interview", "acme"}, got)
	assert.Empty(t, Tokenize("a an to of"))
	assert.Empty(t, Tokenize(""))
}

func TestPredictScenarios(t *testing.T) {
	t.Parallel()

	c := New(DefaultModel())
	cases := []struct {
		name string
		text string
		want model.Status
	}{
		{"pursue other candidates", "We regret to inform you that we have decided to pursue other candidates for this position.", model.StatusRejected},
		{"offer extended", "We are pleased to extend an offer for the Software Engineer position with a starting salary of...", model.StatusOffer},
		{"phone interview", "We would like to schedule a time for a phone interview next week.", model.StatusInterview},
		{"offer given to someone else", "We have decided to offer the position to another candidate.", model.StatusRejected},
		{"application confirmation", "Thank you for applying! We have received your application and are reviewing it.", model.StatusApplied},
		{"not moving forward", "Thanks for your time, but we will not be moving forward with your candidacy.", model.StatusRejected},
		{"empty", "", model.StatusApplied},
		{"whitespace", "   \n\t", model.StatusApplied},
		{"no signal", "Lorem ipsum dolor sit amet", model.StatusApplied},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, c.Predict(tc.text))
		})
	}
}

func TestClassifyOfferToOtherCandidateZeroesOffer(t *testing.T) {
	t.Parallel()

	pred := New(DefaultModel()).Classify("We have decided to offer the position to another candidate.")
	assert.Equal(t, 0, pred.Scores[model.StatusOffer])
	assert.Contains(t, pred.Signals, "rule:offer_to_other_candidate")
	assert.NotContains(t, pred.Signals, "rule:offer_extended")
}

func TestClassifyPoliteRejection(t *testing.T) {
	t.Parallel()

	pred := New(DefaultModel()).Classify("Thank you for your interest. Unfortunately we went with someone else. We appreciate your time. Best regards")
	require.Equal(t, model.StatusRejected, pred.Status)
	assert.Contains(t, pred.Signals, "rule:polite_rejection")
	assert.Equal(t, 1+50+50, pred.Scores[model.StatusRejected])
}

func TestClassifyPoliteClosingNeedsRejectionFloor(t *testing.T) {
	t.Parallel()

	pred := New(DefaultModel()).Classify("Thank you for applying. Best regards")
	assert.NotContains(t, pred.Signals, "rule:polite_rejection")
	assert.Contains(t, pred.Signals, "rule:application_received")
}

func TestClassifyLexiconIsTokenOnly(t *testing.T) {
	t.Parallel()

	pred := New(DefaultModel()).Classify("Great news, we are moving forward with your candidacy and would like to meet with you.")
	assert.Equal(t, model.StatusInterview, pred.Status)
	assert.Equal(t, 1, pred.Scores[model.StatusRejected])
	assert.Equal(t, 21, pred.Scores[model.StatusInterview])
	assert.Equal(t, []string{"lexicon:meet"}, pred.Signals)

	// Phrase keys stay inert; the filled-position phrase is scored by rules alone.
	filled := New(DefaultModel()).Classify("Sadly the position has been filled.")
	assert.NotContains(t, filled.Signals, "lexicon:position_has_been_filled")
	assert.Contains(t, filled.Signals, "rule:strong_rejection")
	assert.Equal(t, model.StatusRejected, filled.Status)
}

func TestStrongRejectionFiresPerPattern(t *testing.T) {
	t.Parallel()

	pred := New(DefaultModel()).Classify("The position has been filled and we are no longer considering applicants")
	// two phrase rules at 200 each
	assert.Equal(t, 1+400, pred.Scores[model.StatusRejected])
}

func TestTieBreakFollowsOrder(t *testing.T) {
	t.Parallel()

	flat := Model{Priors: Weights{Rejected: 1, Offer: 1, Interview: 1, Applied: 1}}
	assert.Equal(t, model.StatusRejected, New(flat).Predict("anything at all"))

	flat.Order = []model.Status{model.StatusInterview, model.StatusApplied, model.StatusOffer, model.StatusRejected}
	assert.Equal(t, model.StatusInterview, New(flat).Predict("anything at all"))
}

func TestNewCopiesModel(t *testing.T) {
	t.Parallel()

	m := Model{Lexicon: map[string]Weights{"ghosted": {Rejected: 5}}}
	c := New(m)
	m.Lexicon["ghosted"] = Weights{Offer: 500}

	assert.Equal(t, model.StatusRejected, c.Predict("ghosted again"))
}

func TestParseModel(t *testing.T) {
	t.Parallel()

	data := []byte(`
priors: {applied: 1}
lexicon:
  ghosted: {rejected: 5}
rules:
  - name: final_round
    patterns: ["final round"]
    deltas: {interview: 10}
  - name: hr_call
    mode: all
    patterns: ["recruiter", "call"]
    guard: {class: interview, below: 5}
    deltas: {interview: 3}
`)
	m, err := ParseModel(data)
	require.NoError(t, err)
	require.Len(t, m.Rules, 2)
	assert.Equal(t, DefaultOrder(), m.Order)

	c := New(m)
	assert.Equal(t, model.StatusInterview, c.Predict("Final Round next week"))
	assert.Equal(t, model.StatusRejected, c.Predict("ghosted again"))
	assert.Equal(t, model.StatusInterview, c.Predict("a recruiter will call you"))
	assert.Equal(t, model.StatusApplied, c.Predict("nothing here"))
}

func TestParseModelErrors(t *testing.T) {
	t.Parallel()

	bad := map[string]string{
		"bad pattern":   "rules:\n  - name: x\n    patterns: [\"(unclosed\"]\n",
		"no patterns":   "rules:\n  - name: x\n",
		"bad mode":      "rules:\n  - name: x\n    mode: most\n    patterns: [a]\n",
		"bad guard":     "rules:\n  - name: x\n    patterns: [a]\n    guard: {class: ghosted}\n",
		"partial order": "order: [Offer, Applied]\n",
		"dup order":     "order: [Offer, Offer, Applied, Rejected]\n",
		"bad yaml":      "priors: [1, 2",
	}
	for name, data := range bad {
		_, err := ParseModel([]byte(data))
		assert.Error(t, err, name)
	}
}
