package sentence

import "strings"

// continuationMatcher recognizes connective words and phrases ("mas",
// "além disso") at a token position.
type continuationMatcher struct {
	phrases [][]string
}

func newContinuationMatcher(words []string) *continuationMatcher {
	m := &continuationMatcher{}
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		fields := strings.Fields(strings.ToLower(w))
		key := strings.Join(fields, " ")
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		m.phrases = append(m.phrases, fields)
	}
	return m
}

// matchAt returns the number of tokens of the longest phrase that starts at
// tokens[i], or 0.
func (m *continuationMatcher) matchAt(tokens []string, i int) int {
	best := 0
	for _, phrase := range m.phrases {
		if len(phrase) <= best || i+len(phrase) > len(tokens) {
			continue
		}
		ok := true
		for j, word := range phrase {
			if normalizeWord(tokens[i+j]) != word {
				ok = false
				break
			}
		}
		if ok {
			best = len(phrase)
		}
	}
	return best
}
