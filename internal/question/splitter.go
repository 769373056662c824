package question

import "strings"

// SentenceSplitter is the built-in sentence-boundary implementation. It splits
// on '.', '!' and '?' followed by whitespace and keeps the terminator on the
// preceding sentence.
//
// It is deliberately simple; deployments needing abbreviation-aware splitting
// can inject their own [Splitter].
type SentenceSplitter struct{}

var _ Splitter = SentenceSplitter{}

// Split implements [Splitter]. Whitespace-only input yields no sentences.
func (SentenceSplitter) Split(text string) []string {
	var (
		sentences []string
		start     int
	)
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		// Consume a run of terminators ("?!", "...").
		end := i
		for end+1 < len(runes) && isTerminator(runes[end+1]) {
			end++
		}
		if end+1 < len(runes) && !isSpace(runes[end+1]) {
			i = end
			continue
		}
		if s := strings.TrimSpace(string(runes[start : end+1])); s != "" {
			sentences = append(sentences, s)
		}
		start = end + 1
		i = end
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
