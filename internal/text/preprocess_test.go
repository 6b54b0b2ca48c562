package text_test

import (
	"testing"

	"github.com/book-expert/narrator/internal/text"
)

// normalizeTestCase defines a standard test case for the preprocessor.
type normalizeTestCase struct {
	name     string
	input    string
	expected string
}

func runNormalizeTests(t *testing.T, tests []normalizeTestCase) {
	t.Helper()

	preprocessor := text.NewPreprocessor()

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			result := preprocessor.Normalize(testCase.input)
			if result != testCase.expected {
				t.Errorf("Expected %q, got %q", testCase.expected, result)
			}
		})
	}
}

func TestPreprocessor_Normalize_EmptyInput(t *testing.T) {
	t.Parallel()

	preprocessor := text.NewPreprocessor()

	if got := preprocessor.Normalize(""); got != "" {
		t.Errorf("Expected empty output, got %q", got)
	}
}

func TestPreprocessor_Normalize_Whitespace(t *testing.T) {
	t.Parallel()

	runNormalizeTests(t, []normalizeTestCase{
		{
			name:     "collapses runs of whitespace",
			input:    "hello   world\n\tagain",
			expected: "hello world again",
		},
		{
			name:     "trims surrounding whitespace",
			input:    "  hello  ",
			expected: "hello",
		},
	})
}

func TestPreprocessor_Normalize_Numbers(t *testing.T) {
	t.Parallel()

	runNormalizeTests(t, []normalizeTestCase{
		{
			name:     "integer to words",
			input:    "chapter 42",
			expected: "chapter forty two",
		},
		{
			name:     "decimal read digit by digit",
			input:    "pi is 3.14",
			expected: "pi is three point one four",
		},
		{
			name:     "currency",
			input:    "it costs $5",
			expected: "it costs five dollars",
		},
		{
			name:     "percent",
			input:    "42% done",
			expected: "forty two percent done",
		},
		{
			name:     "thousands",
			input:    "1250 pages",
			expected: "one thousand two hundred fifty pages",
		},
	})
}

func TestPreprocessor_Normalize_SpeechHostileConstructs(t *testing.T) {
	t.Parallel()

	runNormalizeTests(t, []normalizeTestCase{
		{
			name:     "repeated punctuation collapsed",
			input:    "wait!!! what???",
			expected: "wait! what?",
		},
		{
			name:     "acronym spelled out",
			input:    "the TTS engine",
			expected: "the T T S engine",
		},
		{
			name:     "url reduced to spoken host",
			input:    "see https://example.com/docs/page for details",
			expected: "see example dot com for details",
		},
		{
			name:     "email spoken",
			input:    "mail me at bob@example.com today",
			expected: "mail me at bob at example dot com today",
		},
		{
			name:     "abbreviation expanded",
			input:    "Dr. Jones",
			expected: "Doctor Jones",
		},
		{
			name:     "smart quotes and dashes normalized",
			input:    "“hello” — world",
			expected: `"hello" - world`,
		},
	})
}

func TestPreprocessor_Normalize_Deterministic(t *testing.T) {
	t.Parallel()

	preprocessor := text.NewPreprocessor()
	input := "Dr. Smith paid $12.50 for 3 copies of the TTS book!!!"

	first := preprocessor.Normalize(input)
	second := preprocessor.Normalize(input)

	if first != second {
		t.Errorf("Normalize is not deterministic: %q vs %q", first, second)
	}
}
