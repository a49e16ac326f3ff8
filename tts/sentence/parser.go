// Package sentence provides sentence boundary detection and the text
// segmenter that feeds the synthesis pipeline.
package sentence

import (
	"strings"
	"unicode"
)

// Parser finds sentence boundaries in plain text. It treats '.', '!' and '?'
// as terminators unless they belong to an abbreviation, a decimal number or
// an ellipsis.
type Parser struct {
	// Common abbreviations that don't end sentences
	abbreviations map[string]bool
}

// NewParser creates a parser with English and Portuguese abbreviations.
func NewParser() *Parser {
	return &Parser{
		abbreviations: makeAbbreviationMap(),
	}
}

// Sentences splits text into trimmed sentences in order.
func (p *Parser) Sentences(text string) []string {
	boundaries := p.findSentenceBoundaries(text)

	sentences := make([]string, 0, len(boundaries))
	for _, b := range boundaries {
		s := strings.TrimSpace(text[b.start:b.end])
		if s == "" {
			continue
		}
		sentences = append(sentences, s)
	}
	return sentences
}

// findSentenceBoundaries returns byte ranges of sentences.
func (p *Parser) findSentenceBoundaries(text string) []boundary {
	var boundaries []boundary

	runes := []rune(text)
	lastStart := 0

	for i := 0; i < len(runes); i++ {
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}

		// Collect all punctuation
		punctEnd := i + 1
		for punctEnd < len(runes) && (runes[punctEnd] == '!' || runes[punctEnd] == '?' || runes[punctEnd] == '.') {
			punctEnd++
		}

		// Closing quotes/parens stay with the sentence
		for punctEnd < len(runes) && isCloser(runes[punctEnd]) {
			punctEnd++
		}

		if !p.isRealSentenceEndRunes(runes, punctEnd-1) {
			i = punctEnd - 1
			continue
		}

		boundaries = append(boundaries, boundary{start: lastStart, end: punctEnd})

		for punctEnd < len(runes) && unicode.IsSpace(runes[punctEnd]) {
			punctEnd++
		}
		lastStart = punctEnd
		i = punctEnd - 1
	}

	if lastStart < len(runes) && strings.TrimSpace(string(runes[lastStart:])) != "" {
		boundaries = append(boundaries, boundary{start: lastStart, end: len(runes)})
	}

	// Convert rune positions to byte positions
	for i := range boundaries {
		boundaries[i].start = len(string(runes[:boundaries[i].start]))
		boundaries[i].end = len(string(runes[:boundaries[i].end]))
	}

	return boundaries
}

// isRealSentenceEndRunes reports whether the terminator run ending at pos
// closes a sentence.
func (p *Parser) isRealSentenceEndRunes(runes []rune, pos int) bool {
	if pos < 0 || pos >= len(runes) {
		return false
	}

	// Step back over closers to the actual punctuation
	punctPos := pos
	for punctPos > 0 && isCloser(runes[punctPos]) {
		punctPos--
	}
	punct := runes[punctPos]

	// Ellipsis continues the sentence unless it is the end of text
	if punct == '.' && punctPos >= 2 && runes[punctPos-1] == '.' && runes[punctPos-2] == '.' {
		return pos+1 >= len(runes)
	}

	if punct == '.' {
		start := punctPos - 1
		for start >= 0 && !unicode.IsSpace(runes[start]) && !isOpener(runes[start]) {
			start--
		}
		word := strings.ToLower(string(runes[start+1 : punctPos]))

		if p.abbreviations[word] {
			return false
		}
		// Multi-part abbreviations like "U.S." or "Ph.D."
		if strings.Contains(word, ".") && len([]rune(word)) <= 5 && !strings.ContainsFunc(word, unicode.IsDigit) {
			return false
		}
		// Single upper-case initials ("J. Smith")
		if r := []rune(word); len(r) == 1 && punctPos > 0 && unicode.IsUpper(runes[punctPos-1]) {
			return false
		}
	}

	// Decimal numbers
	if punct == '.' && punctPos > 0 && punctPos+1 < len(runes) &&
		unicode.IsDigit(runes[punctPos-1]) && unicode.IsDigit(runes[punctPos+1]) {
		return false
	}

	if pos+1 >= len(runes) {
		return true // End of text
	}

	// Must have whitespace after punctuation
	if !unicode.IsSpace(runes[pos+1]) {
		return false
	}

	nextPos := pos + 1
	for nextPos < len(runes) && unicode.IsSpace(runes[nextPos]) {
		nextPos++
	}
	if nextPos >= len(runes) {
		return true
	}
	for nextPos < len(runes) && isOpener(runes[nextPos]) {
		nextPos++
	}

	if nextPos < len(runes) && (unicode.IsUpper(runes[nextPos]) || unicode.IsDigit(runes[nextPos])) {
		return true
	}

	// Exclamation and question marks end sentences even before lower case
	return punct == '!' || punct == '?'
}

func isCloser(r rune) bool {
	return r == '"' || r == '\'' || r == ')' || r == ']' || r == '»' || r == '”'
}

func isOpener(r rune) bool {
	return r == '"' || r == '\'' || r == '(' || r == '[' || r == '«' || r == '“' || r == '¿' || r == '¡'
}

// makeAbbreviationMap creates a map of common abbreviations.
func makeAbbreviationMap() map[string]bool {
	abbrevs := []string{
		"mr", "mrs", "ms", "dr", "prof", "sr", "jr",
		"inc", "ltd", "co", "corp", "etc", "vs", "cf", "al",
		"jan", "feb", "mar", "apr", "jun", "jul", "aug", "sep", "sept", "oct", "nov", "dec",
		"st", "ave", "blvd",
		// Portuguese
		"sra", "srta", "dra", "profa", "exmo", "exma", "av", "pág", "págs",
		"fev", "abr", "ago", "dez", "nº", "tel", "obs",
	}

	m := make(map[string]bool)
	for _, abbrev := range abbrevs {
		m[abbrev] = true
	}
	return m
}

// boundary represents a sentence boundary.
type boundary struct {
	start int
	end   int
}
