// Package question detects question-bearing sentences in transcript lines and
// extracts their metadata.
//
// Detection is a two-pass process per sentence, in original sentence order:
// a rule-based pass (lead-verb prefix, WH-word prefix, trailing question mark)
// and an optional model-based pass through an injected [Classifier]. The first
// sentence passing either check wins.
package question

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// Type classifies a detected question by its lead word.
type Type string

const (
	TypeWhat    Type = "what"
	TypeWho     Type = "who"
	TypeWhere   Type = "where"
	TypeWhen    Type = "when"
	TypeWhy     Type = "why"
	TypeHow     Type = "how"
	TypeWhich   Type = "which"
	TypeYesNo   Type = "yes_no"
	TypeUnknown Type = "unknown"
)

// defaultModelThreshold is the minimum classifier probability for the
// model-based pass to accept a sentence.
const defaultModelThreshold = 0.70

var (
	// yesNoLeadRe matches sentences opening with an auxiliary or linking verb
	// followed by another word ("can you", "is this", ...).
	yesNoLeadRe = regexp.MustCompile(`^(?:can|could|would|will|should|do|does|did|is|are|was|were|have|has|had)\s+\w+`)

	// whLeadRe matches sentences opening with a WH-word.
	whLeadRe = regexp.MustCompile(`^(?:what|which|when|where|why|who|whom|whose|how)\s+`)

	// trailingMarkRe matches sentences ending with a question mark.
	trailingMarkRe = regexp.MustCompile(`\?\s*$`)
)

// questionStarters is the word list for the first-word fallback check. It is a
// superset of the regex prefixes (adds "may" and "might", which take no
// mandatory following word).
var questionStarters = map[string]struct{}{
	"what": {}, "which": {}, "when": {}, "where": {}, "why": {},
	"who": {}, "whom": {}, "whose": {}, "how": {},
	"can": {}, "could": {}, "would": {}, "will": {}, "should": {},
	"do": {}, "does": {}, "did": {},
	"is": {}, "are": {}, "was": {}, "were": {},
	"have": {}, "has": {}, "had": {}, "may": {}, "might": {},
}

// yesNoStarters are the lead verbs that classify a question as yes/no when no
// WH-prefix matches.
var yesNoStarters = []string{
	"can", "could", "would", "will", "should", "do", "does", "did",
	"is", "are", "was", "were", "have", "has", "had",
}

// rhetoricalPatterns are matched as substrings of the normalized question.
var rhetoricalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`isn't it obvious`),
	regexp.MustCompile(`don't you think`),
	regexp.MustCompile(`wouldn't you agree`),
	regexp.MustCompile(`who (would|wouldn't)`),
	regexp.MustCompile(`what's the point`),
	regexp.MustCompile(`why bother`),
}

// Detected is one question found in a transcript line, with its metadata.
type Detected struct {
	// Text is the question sentence, trimmed, original casing preserved.
	Text string

	// Type is the prefix-derived question type.
	Type Type

	// Rhetorical reports whether the question matches a known rhetorical
	// phrase and likely needs no answer.
	Rhetorical bool

	// WordCount is the whitespace-split word count of Text.
	WordCount int

	// HasQuestionMark reports whether Text contains a literal '?'.
	HasQuestionMark bool

	// Sequence is the sequence number of the transcript line the question was
	// found in. Filled by the caller.
	Sequence uint64
}

// Splitter breaks a transcript line into sentences. A nil Splitter makes the
// detector treat the whole text as a single sentence.
type Splitter interface {
	Split(text string) []string
}

// Classifier is an optional model-based question classification capability.
// Probability returns the likelihood in [0, 1] that sentence is a question.
type Classifier interface {
	Probability(ctx context.Context, sentence string) (float64, error)
}

// Detector finds the first question-bearing sentence in a transcript line.
//
// Detector is safe for concurrent use; it holds no mutable state.
type Detector struct {
	splitter   Splitter
	classifier Classifier
	threshold  float64
}

// Option is a functional option for Detector.
type Option func(*Detector)

// WithSplitter sets the sentence-boundary capability. Defaults to
// [SentenceSplitter].
func WithSplitter(s Splitter) Option {
	return func(d *Detector) {
		d.splitter = s
	}
}

// WithClassifier enables the model-based pass using c.
func WithClassifier(c Classifier) Option {
	return func(d *Detector) {
		d.classifier = c
	}
}

// WithModelThreshold overrides the classifier acceptance threshold.
func WithModelThreshold(t float64) Option {
	return func(d *Detector) {
		d.threshold = t
	}
}

// NewDetector creates a Detector. With no options it uses the built-in
// sentence splitter and the rule-based pass only.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		splitter:  SentenceSplitter{},
		threshold: defaultModelThreshold,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Detect returns the first question-bearing sentence of text, or nil when no
// sentence qualifies. Empty text never qualifies.
func (d *Detector) Detect(ctx context.Context, text string) *Detected {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	sentences := []string{text}
	if d.splitter != nil {
		if split := d.splitter.Split(text); len(split) > 0 {
			sentences = split
		}
	}

	for _, sentence := range sentences {
		if isQuestionRuleBased(sentence) {
			slog.Debug("detected question (rule-based)", "sentence", sentence)
			return newDetected(sentence)
		}
		if d.classifier != nil && d.isQuestionModelBased(ctx, sentence) {
			slog.Debug("detected question (model-based)", "sentence", sentence)
			return newDetected(sentence)
		}
	}
	return nil
}

// isQuestionModelBased runs the classifier and applies the probability
// threshold. Classifier errors count as "not a question".
func (d *Detector) isQuestionModelBased(ctx context.Context, sentence string) bool {
	p, err := d.classifier.Probability(ctx, sentence)
	if err != nil {
		slog.Debug("question classifier error", "err", err)
		return false
	}
	return p > d.threshold
}

// isQuestionRuleBased applies the rule-based pass to one sentence.
func isQuestionRuleBased(sentence string) bool {
	norm := strings.ToLower(strings.TrimSpace(sentence))
	if norm == "" {
		return false
	}

	if yesNoLeadRe.MatchString(norm) || whLeadRe.MatchString(norm) || trailingMarkRe.MatchString(norm) {
		return true
	}

	// First-word fallback catches single-word leads the regexes miss.
	if words := strings.Fields(norm); len(words) > 0 {
		if _, ok := questionStarters[words[0]]; ok {
			return true
		}
	}
	return false
}

// newDetected builds a Detected with metadata for the question sentence.
func newDetected(sentence string) *Detected {
	text := strings.TrimSpace(sentence)
	return &Detected{
		Text:            text,
		Type:            Classify(text),
		Rhetorical:      IsRhetorical(text),
		WordCount:       len(strings.Fields(text)),
		HasQuestionMark: strings.Contains(text, "?"),
	}
}

// Classify derives the question [Type] by ordered prefix lookup over the
// normalized text.
func Classify(question string) Type {
	q := strings.ToLower(strings.TrimSpace(question))

	switch {
	case strings.HasPrefix(q, "what"):
		return TypeWhat
	case strings.HasPrefix(q, "who"), strings.HasPrefix(q, "whom"), strings.HasPrefix(q, "whose"):
		return TypeWho
	case strings.HasPrefix(q, "where"):
		return TypeWhere
	case strings.HasPrefix(q, "when"):
		return TypeWhen
	case strings.HasPrefix(q, "why"):
		return TypeWhy
	case strings.HasPrefix(q, "how"):
		return TypeHow
	case strings.HasPrefix(q, "which"):
		return TypeWhich
	}

	for _, starter := range yesNoStarters {
		if strings.HasPrefix(q, starter) {
			return TypeYesNo
		}
	}
	return TypeUnknown
}

// IsRhetorical reports whether the normalized question matches any known
// rhetorical phrase.
func IsRhetorical(question string) bool {
	q := strings.ToLower(strings.TrimSpace(question))
	for _, re := range rhetoricalPatterns {
		if re.MatchString(q) {
			return true
		}
	}
	return false
}
