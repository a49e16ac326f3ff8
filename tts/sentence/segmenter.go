package sentence

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dgnsrekt/xtts-go/tts"
)

// Boundaries splits text into sentences. Parser is the default
// implementation.
type Boundaries interface {
	Sentences(text string) []string
}

// Segmenter splits input text into bounded segments for inference.
type Segmenter struct {
	boundaries   Boundaries
	continuation *continuationMatcher

	minLength  int
	maxLength  int
	preprocess bool
	// preserve keeps parts that open with a continuation word apart from
	// the preceding part during the merge.
	preserve bool
}

// NewSegmenter creates a segmenter from the segmenter configuration.
func NewSegmenter(cfg tts.SegmenterConfig) *Segmenter {
	words := cfg.ContinuationWords
	if len(words) == 0 {
		words = tts.DefaultContinuationWords()
	}
	maxLength := cfg.MaxLength
	if maxLength < 1 {
		maxLength = tts.DefaultSegmenterConfig().MaxLength
	}
	return &Segmenter{
		boundaries:   NewParser(),
		continuation: newContinuationMatcher(words),
		minLength:    cfg.MinLength,
		maxLength:    maxLength,
		preprocess:   cfg.Preprocess,
		preserve:     cfg.PreserveContinuationSplits,
	}
}

// WithBoundaries replaces the sentence boundary detector.
func (s *Segmenter) WithBoundaries(b Boundaries) *Segmenter {
	s.boundaries = b
	return s
}

// MaxLength returns the configured segment bound.
func (s *Segmenter) MaxLength() int {
	return s.maxLength
}

// Segment runs the configured pre-processing and splits text with the
// configured bounds. It fails with ErrInvalidInput when nothing is left to
// synthesize.
func (s *Segmenter) Segment(text string) ([]tts.TextSegment, error) {
	if s.preprocess {
		text = PreProcess(text)
	}
	return s.SplitRequired(text, s.minLength, s.maxLength)
}

// SplitRequired is Split for callers that need at least one segment.
func (s *Segmenter) SplitRequired(text string, minLength, maxLength int) ([]tts.TextSegment, error) {
	segments := s.Split(text, minLength, maxLength)
	if len(segments) == 0 {
		return nil, tts.NewTTSError(tts.ErrInvalidInput, "segmenter", "split").
			WithContext("reason", "text is empty")
	}
	return segments, nil
}

// Split divides text into ordered segments of at most maxLength runes.
//
// Text shorter than maxLength is returned unchanged as a single segment.
// Longer text is split on sentence boundaries; sentences over the bound are
// cut at clause boundaries, before continuation words, at the last comma or
// space, or hard at the bound. Cut points get a trailing comma. The parts are
// then greedily merged back up to maxLength, and a trailing period on any
// segment but the last becomes a comma.
func (s *Segmenter) Split(text string, minLength, maxLength int) []tts.TextSegment {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if maxLength < 1 {
		maxLength = s.maxLength
	}
	if runeLen(text) < maxLength {
		return []tts.TextSegment{tts.NewTextSegment(text)}
	}

	var parts []string
	for _, sent := range s.boundaries.Sentences(text) {
		if runeLen(sent) <= maxLength {
			parts = append(parts, sent)
			continue
		}
		parts = append(parts, s.splitSentence(sent, maxLength)...)
	}

	merged := s.merge(parts, minLength, maxLength)

	segments := make([]tts.TextSegment, 0, len(merged))
	for i, part := range merged {
		if i < len(merged)-1 && strings.HasSuffix(part, ".") && !strings.HasSuffix(part, "..") {
			part = strings.TrimSuffix(part, ".") + ","
		}
		segments = append(segments, tts.NewTextSegment(part))
	}
	return segments
}

// splitSentence cuts one over-long sentence into parts no longer than
// maxLength.
func (s *Segmenter) splitSentence(sentence string, maxLength int) []string {
	tokens := strings.Fields(sentence)

	var parts []string
	cur := ""
	for i, tok := range tokens {
		switch {
		case cur == "":
			cur = tok
		case runeLen(cur)+runeLen(tok)+1 <= maxLength:
			cur += " " + tok
		case s.continuation.matchAt(tokens, i) > 0:
			// Cut before the connective so it opens the next clause
			parts = append(parts, withComma(cur))
			cur = tok
		default:
			head, rest := cutAtPause(cur, maxLength)
			if head != "" {
				parts = append(parts, withComma(head))
			}
			if rest == "" {
				cur = tok
			} else {
				cur = rest + " " + tok
			}
		}
	}
	if cur != "" {
		if endsSentence(cur) {
			parts = append(parts, cur)
		} else {
			parts = append(parts, withComma(cur))
		}
	}

	return splitOverlong(parts, maxLength)
}

// merge greedily joins adjacent parts while the result fits maxLength.
func (s *Segmenter) merge(parts []string, minLength, maxLength int) []string {
	var out []string
	cur := ""
	for _, part := range parts {
		switch {
		case cur == "":
			cur = part
		case runeLen(cur)+runeLen(part)+1 <= maxLength && !s.keepApart(cur, part, minLength):
			cur += " " + part
		default:
			out = append(out, cur)
			cur = part
		}
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

// keepApart reports whether next must stay a separate segment from cur even
// though both would fit. Fragments shorter than minLength are always joined.
func (s *Segmenter) keepApart(cur, next string, minLength int) bool {
	if !s.preserve || runeLen(cur) < minLength {
		return false
	}
	return s.continuation.matchAt(strings.Fields(next), 0) > 0
}

// cutAtPause splits cur at its last comma, else its last space, else hard
// at maxLength. The separator itself is dropped.
func cutAtPause(cur string, maxLength int) (head, rest string) {
	r := []rune(cur)
	idx := lastRuneIndex(r, len(r), ',')
	if idx < 0 {
		idx = lastRuneIndex(r, len(r), ' ')
	}
	if idx < 0 {
		if maxLength >= len(r) {
			return cur, ""
		}
		return strings.TrimSpace(string(r[:maxLength])), strings.TrimSpace(string(r[maxLength:]))
	}
	return strings.TrimSpace(string(r[:idx])), strings.TrimSpace(string(r[idx+1:]))
}

// splitOverlong re-cuts any part still longer than maxLength at the last
// comma or space inside the bound, or hard at the bound.
func splitOverlong(parts []string, maxLength int) []string {
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		for runeLen(part) > maxLength {
			r := []rune(part)
			idx := lastRuneIndex(r, maxLength, ',')
			if idx <= 0 {
				idx = lastRuneIndex(r, maxLength, ' ')
			}
			if idx > 0 {
				out = append(out, withComma(string(r[:idx])))
				part = strings.TrimSpace(string(r[idx+1:]))
				continue
			}
			if maxLength < 2 {
				out = append(out, string(r[:maxLength]))
				part = string(r[maxLength:])
				continue
			}
			out = append(out, string(r[:maxLength-1])+",")
			part = string(r[maxLength-1:])
		}
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// withComma terminates a clause with a single comma.
func withComma(s string) string {
	s = strings.TrimRight(strings.TrimSpace(s), ",;:.")
	return s + ","
}

func endsSentence(s string) bool {
	s = strings.TrimRightFunc(s, isCloser)
	r, _ := utf8.DecodeLastRuneInString(s)
	return r == '.' || r == '?' || r == '!'
}

// lastRuneIndex returns the last index of target in r[:limit].
func lastRuneIndex(r []rune, limit int, target rune) int {
	if limit > len(r) {
		limit = len(r)
	}
	for i := limit - 1; i >= 0; i-- {
		if r[i] == target {
			return i
		}
	}
	return -1
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// normalizeWord lower-cases a token and strips surrounding punctuation.
func normalizeWord(tok string) string {
	return strings.ToLower(strings.TrimFunc(tok, unicode.IsPunct))
}
