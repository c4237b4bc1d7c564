package narrate

import (
	"sort"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Fact is one piece of context offered to a model narrator.
type Fact struct {
	Key  string
	Text string
}

// TokenEstimator counts the tokens of a text.
type TokenEstimator func(text string) int

// RuneEstimator counts runes; used when no tokenizer is available.
func RuneEstimator(text string) int { return len([]rune(text)) }

// NewTikTokenEstimator returns an estimator backed by the tokenizer of model.
func NewTikTokenEstimator(model string) (TokenEstimator, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, err
	}
	return func(text string) int { return len(enc.Encode(text, nil, nil)) }, nil
}

// Budget selects facts deterministically under a token ceiling.
type Budget struct {
	estimate  TokenEstimator
	maxTokens int
}

// NewBudget returns a budget of maxTokens measured by est.
func NewBudget(est TokenEstimator, maxTokens int) Budget {
	if est == nil {
		est = RuneEstimator
	}
	return Budget{estimate: est, maxTokens: maxTokens}
}

// Cost returns the token count of text.
func (b Budget) Cost(text string) int { return b.estimate(text) }

// Fits reports whether text alone stays within the budget.
func (b Budget) Fits(text string) bool { return b.estimate(text) <= b.maxTokens }

// Select spends what remains after reserved tokens on facts. Facts are
// deduplicated by key; pinned keys go first, the rest follow in key order.
// It returns the chosen facts and the number dropped for lack of budget.
func (b Budget) Select(reserved int, facts []Fact, pinned ...string) ([]Fact, int) {
	seen := make(map[string]Fact, len(facts))
	for _, f := range facts {
		if _, dup := seen[f.Key]; !dup {
			seen[f.Key] = f
		}
	}
	isPinned := make(map[string]bool, len(pinned))
	for _, k := range pinned {
		isPinned[k] = true
	}
	var first, rest []Fact
	for k, f := range seen {
		if isPinned[k] {
			first = append(first, f)
		} else {
			rest = append(rest, f)
		}
	}
	byKey := func(s []Fact) { sort.Slice(s, func(i, j int) bool { return s[i].Key < s[j].Key }) }
	byKey(first)
	byKey(rest)

	left := b.maxTokens - reserved
	out := make([]Fact, 0, len(seen))
	dropped := 0
	for _, f := range append(first, rest...) {
		cost := b.estimate(f.Key + ": " + f.Text)
		if cost > left {
			dropped++
			continue
		}
		left -= cost
		out = append(out, f)
	}
	return out, dropped
}
