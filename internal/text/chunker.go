package text

import (
	"strings"

	"github.com/book-expert/narrator/internal/core"
)

// DefaultChunkSize is the target chunk size used when the caller does not
// specify one.
const DefaultChunkSize = 500

// realtimeBoundFactor widens the effective bound for realtime engines, which
// speak faster per character of internal pause markup than networked ones.
const realtimeBoundFactor = 2

// Chunker deterministically splits normalized text into bounded, speakable
// units. Splitting is hierarchical and greedy: sentence boundaries first,
// then clause boundaries, then word boundaries. A single word longer than the
// bound is emitted alone rather than split.
type Chunker struct {
	pre *Preprocessor
}

// NewChunker creates a chunker with its own preprocessor.
func NewChunker() *Chunker {
	return &Chunker{pre: NewPreprocessor()}
}

// Normalize exposes the preprocessing pipeline on its own; chunk output
// always concatenates back to this normalized form.
func (c *Chunker) Normalize(input string) string {
	return c.pre.Normalize(input)
}

// Chunk splits input into ordered chunks no longer than the effective bound.
// Identical inputs yield byte-identical output.
func (c *Chunker) Chunk(input string, targetSize int, engine core.EngineClass) []string {
	normalized := c.pre.Normalize(input)
	if normalized == "" {
		return nil
	}

	bound := effectiveBound(targetSize, engine)

	var (
		chunks  []string
		current string
	)

	flush := func() {
		if current != "" {
			chunks = append(chunks, current)
			current = ""
		}
	}

	for _, sentence := range splitAfter(normalized, isSentenceEnd) {
		for _, piece := range fitToBound(sentence, bound) {
			switch {
			case current == "":
				current = piece
			case len(current)+1+len(piece) <= bound:
				current += " " + piece
			default:
				flush()

				current = piece
			}
		}
	}

	flush()

	return chunks
}

func effectiveBound(targetSize int, engine core.EngineClass) int {
	if targetSize <= 0 {
		targetSize = DefaultChunkSize
	}

	if engine == core.EngineRealtime {
		return targetSize * realtimeBoundFactor
	}

	return targetSize
}

// fitToBound reduces one sentence to pieces that each fit the bound, first on
// clause boundaries, then on word boundaries.
func fitToBound(sentence string, bound int) []string {
	if len(sentence) <= bound {
		return []string{sentence}
	}

	var pieces []string

	for _, clause := range splitAfter(sentence, isClauseEnd) {
		if len(clause) <= bound {
			pieces = append(pieces, clause)

			continue
		}

		pieces = append(pieces, packWords(clause, bound)...)
	}

	return pieces
}

// packWords greedily joins words up to the bound. A single word longer than
// the bound is emitted alone; words are never split.
func packWords(clause string, bound int) []string {
	var (
		pieces  []string
		current string
	)

	for _, word := range strings.Fields(clause) {
		switch {
		case current == "":
			current = word
		case len(current)+1+len(word) <= bound:
			current += " " + word
		default:
			pieces = append(pieces, current)
			current = word
		}
	}

	if current != "" {
		pieces = append(pieces, current)
	}

	return pieces
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isClauseEnd(r rune) bool {
	return r == ',' || r == ';' || r == ':'
}

// splitAfter cuts text after any boundary rune that is followed by a space,
// keeping the boundary rune attached to the preceding piece. Joining the
// pieces with single spaces reconstructs the input exactly.
func splitAfter(text string, isBoundary func(rune) bool) []string {
	var (
		pieces []string
		start  int
	)

	runes := []rune(text)

	for i := range runes {
		if !isBoundary(runes[i]) {
			continue
		}

		if i+1 < len(runes) && runes[i+1] == ' ' {
			pieces = append(pieces, string(runes[start:i+1]))
			start = i + 2
		}
	}

	if start < len(runes) {
		pieces = append(pieces, string(runes[start:]))
	}

	return pieces
}
