// Package chunker splits transcripts into sentence-bounded chunks that fit a model's
// input budget.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CharsPerToken is the fixed character-per-token estimate.
const CharsPerToken = 4

// Chunk is an ordered slice of a transcript.
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// EstimateTokens returns ceil(runes / CharsPerToken).
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + CharsPerToken - 1) / CharsPerToken
}

// Split packs sentence segments greedily into chunks of at most maxTokens estimated
// tokens. A single segment larger than the budget gets a chunk of its own. Joining the
// chunk texts in order yields text exactly.
func Split(text string, maxTokens int) []Chunk {
	if text == "" {
		return nil
	}
	if maxTokens < 1 {
		maxTokens = 1
	}
	budget := maxTokens * CharsPerToken

	var (
		chunks  []Chunk
		current strings.Builder
		size    int
	)
	flush := func() {
		if size == 0 {
			return
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Text: current.String()})
		current.Reset()
		size = 0
	}

	for _, seg := range Segments(text) {
		n := utf8.RuneCountInString(seg)
		if size > 0 && size+n > budget {
			flush()
		}
		current.WriteString(seg)
		size += n
		if size > budget {
			// oversized segment, keep it alone
			flush()
		}
	}
	flush()
	return chunks
}

// Segments cuts text after each run of sentence terminators and the whitespace that
// follows it. The segments concatenate back to text.
func Segments(text string) []string {
	var segs []string
	start := 0
	i := 0
	for i < len(text) {
		r, w := utf8.DecodeRuneInString(text[i:])
		if !isTerminator(r) {
			i += w
			continue
		}
		// consume the whole terminator run ("?!", "...")
		for i < len(text) {
			r, w = utf8.DecodeRuneInString(text[i:])
			if !isTerminator(r) {
				break
			}
			i += w
		}
		for i < len(text) {
			r, w = utf8.DecodeRuneInString(text[i:])
			if !unicode.IsSpace(r) {
				break
			}
			i += w
		}
		segs = append(segs, text[start:i])
		start = i
	}
	if start < len(text) {
		segs = append(segs, text[start:])
	}
	return segs
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
