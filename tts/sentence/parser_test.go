package sentence

import (
	"strings"
	"testing"
)

func TestParserSentences(t *testing.T) {
	parser := NewParser()

	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:  "simple sentences",
			input: "Hello world. How are you? I'm fine!",
			expected: []string{
				"Hello world.",
				"How are you?",
				"I'm fine!",
			},
		},
		{
			name:  "sentences with newlines",
			input: "First sentence.\nSecond sentence.\nThird sentence.",
			expected: []string{
				"First sentence.",
				"Second sentence.",
				"Third sentence.",
			},
		},
		{
			name:  "sentences with multiple spaces",
			input: "First.  Second.   Third.",
			expected: []string{
				"First.",
				"Second.",
				"Third.",
			},
		},
		{
			name:  "sentence with ellipsis",
			input: "Wait... I'm thinking. Done!",
			expected: []string{
				"Wait... I'm thinking.",
				"Done!",
			},
		},
		{
			name:  "mixed punctuation",
			input: "Really? Yes! Of course. Why not?!",
			expected: []string{
				"Really?",
				"Yes!",
				"Of course.",
				"Why not?!",
			},
		},
		{
			name:  "quoted sentences",
			input: `She said "Hello." Then she left.`,
			expected: []string{
				`She said "Hello."`,
				"Then she left.",
			},
		},
		{
			name:  "parenthetical sentences",
			input: "Main point (see appendix). Next point.",
			expected: []string{
				"Main point (see appendix).",
				"Next point.",
			},
		},
		{
			name:     "no terminal punctuation",
			input:    "just some words",
			expected: []string{"just some words"},
		},
		{
			name:     "period before lower case",
			input:    "It costs 5 dollars. and more",
			expected: []string{"It costs 5 dollars. and more"},
		},
		{
			name:  "question before lower case",
			input: "Really? yes",
			expected: []string{
				"Really?",
				"yes",
			},
		},
		{
			name:  "portuguese",
			input: "A Sra. Silva chegou. Ela sentou perto da janela.",
			expected: []string{
				"A Sra. Silva chegou.",
				"Ela sentou perto da janela.",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertSentences(t, parser.Sentences(tt.input), tt.expected)
		})
	}
}

func TestParserAbbreviations(t *testing.T) {
	parser := NewParser()

	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:  "common titles",
			input: "Dr. Smith arrived. Mr. Jones left.",
			expected: []string{
				"Dr. Smith arrived.",
				"Mr. Jones left.",
			},
		},
		{
			name:  "academic degrees",
			input: "Jane Doe, Ph.D. teaches here. John has a B.S. degree.",
			expected: []string{
				"Jane Doe, Ph.D. teaches here.",
				"John has a B.S. degree.",
			},
		},
		{
			name:  "business abbreviations",
			input: "Apple Inc. is large. Microsoft Corp. too.",
			expected: []string{
				"Apple Inc. is large.",
				"Microsoft Corp. too.",
			},
		},
		{
			name:  "latin abbreviations",
			input: "Many reasons, e.g. cost. Also consider efficiency, i.e. speed.",
			expected: []string{
				"Many reasons, e.g. cost.",
				"Also consider efficiency, i.e. speed.",
			},
		},
		{
			name:  "months",
			input: "Meeting on Jan. 5th. Deadline is Dec. 31st.",
			expected: []string{
				"Meeting on Jan. 5th.",
				"Deadline is Dec. 31st.",
			},
		},
		{
			name:  "countries",
			input: "U.S. policy changed. U.K. followed suit.",
			expected: []string{
				"U.S. policy changed.",
				"U.K. followed suit.",
			},
		},
		{
			name:  "initials",
			input: "J. Smith wrote it. Nobody read it.",
			expected: []string{
				"J. Smith wrote it.",
				"Nobody read it.",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertSentences(t, parser.Sentences(tt.input), tt.expected)
		})
	}
}

func TestParserNumbers(t *testing.T) {
	parser := NewParser()

	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:  "decimal",
			input: "Pi is 3.14 today. Yes.",
			expected: []string{
				"Pi is 3.14 today.",
				"Yes.",
			},
		},
		{
			name:  "sentence ending in a number",
			input: "The answer is 42. The question is unknown.",
			expected: []string{
				"The answer is 42.",
				"The question is unknown.",
			},
		},
		{
			name:  "sentence starting with a number",
			input: "We waited. 10 minutes passed.",
			expected: []string{
				"We waited.",
				"10 minutes passed.",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertSentences(t, parser.Sentences(tt.input), tt.expected)
		})
	}
}

func TestParserEdgeCases(t *testing.T) {
	parser := NewParser()

	for _, input := range []string{"", "   ", "\n\t"} {
		if got := parser.Sentences(input); len(got) != 0 {
			t.Errorf("Sentences(%q): expected no sentences, got %q", input, got)
		}
	}

	// Multi-byte text keeps byte offsets aligned
	got := parser.Sentences("Ação rápida. Está ótimo.")
	assertSentences(t, got, []string{"Ação rápida.", "Está ótimo."})
}

func BenchmarkParserSentences(b *testing.B) {
	parser := NewParser()
	text := strings.Repeat("Dr. Smith went to Washington. He arrived at 3.30 p.m. and left! Why? ", 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		parser.Sentences(text)
	}
}

func assertSentences(t *testing.T, got, expected []string) {
	t.Helper()
	if len(got) != len(expected) {
		t.Errorf("Expected %d sentences, got %d", len(expected), len(got))
		for i, s := range got {
			t.Logf("  [%d]: %q", i, s)
		}
		return
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Sentence %d: expected %q, got %q", i, expected[i], got[i])
		}
	}
}
