package meeting

import (
	"strings"
	"time"

	"github.com/antzucaro/matchr"
)

// Dedup defaults. Both are configurable per session.
const (
	DefaultDedupHorizon   = 30 * time.Second
	DefaultDedupThreshold = 0.80
)

// Similarity scores two question texts in [0, 1]. The guard treats scores
// strictly above its threshold as duplicates.
type Similarity func(a, b string) float64

// JaccardSimilarity is the default: intersection over union of lowercased
// whitespace-tokenized word sets. Empty inputs score 0 against everything.
func JaccardSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}

	setA := tokenSet(a)
	setB := tokenSet(b)

	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// JaroWinklerSimilarity is a fuzzy alternative for deployments that want
// rephrase suppression beyond word overlap. Empty inputs score 0.
func JaroWinklerSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return matchr.JaroWinkler(strings.ToLower(a), strings.ToLower(b), false)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}

// DedupGuard suppresses near-duplicate questions within a time horizon. It is
// scoped to one session and owned by that session's loop; it is not safe for
// concurrent use.
type DedupGuard struct {
	horizon   time.Duration
	threshold float64
	sim       Similarity

	// seen maps question text to its registration time.
	seen map[string]time.Time
}

// DedupOption is a functional option for DedupGuard.
type DedupOption func(*DedupGuard)

// WithHorizon overrides the purge horizon.
func WithHorizon(d time.Duration) DedupOption {
	return func(g *DedupGuard) {
		g.horizon = d
	}
}

// WithThreshold overrides the duplicate similarity threshold.
func WithThreshold(t float64) DedupOption {
	return func(g *DedupGuard) {
		g.threshold = t
	}
}

// WithSimilarity overrides the similarity function. Defaults to
// [JaccardSimilarity].
func WithSimilarity(s Similarity) DedupOption {
	return func(g *DedupGuard) {
		g.sim = s
	}
}

// NewDedupGuard creates a guard with the default horizon (30 s), threshold
// (0.80) and Jaccard similarity.
func NewDedupGuard(opts ...DedupOption) *DedupGuard {
	g := &DedupGuard{
		horizon:   DefaultDedupHorizon,
		threshold: DefaultDedupThreshold,
		sim:       JaccardSimilarity,
		seen:      make(map[string]time.Time),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// CheckAndRegister reports whether question is a near-duplicate of a question
// seen within the horizon. Records older than the horizon are purged first.
// A duplicate does not refresh the stored record's timestamp; a novel
// question is registered at now. Empty questions are never duplicates.
func (g *DedupGuard) CheckAndRegister(question string, now time.Time) bool {
	for q, seen := range g.seen {
		if now.Sub(seen) > g.horizon {
			delete(g.seen, q)
		}
	}

	if question == "" {
		return false
	}

	for q := range g.seen {
		if g.sim(question, q) > g.threshold {
			return true
		}
	}

	g.seen[question] = now
	return false
}

// Len returns the number of live dedup records, for tests and metrics.
func (g *DedupGuard) Len() int {
	return len(g.seen)
}
