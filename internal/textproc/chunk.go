package textproc

import "strings"

// Default chunking parameters.
const (
	DefaultMaxChars = 900
	DefaultOverlap  = 150
)

// Chunk is a bounded slice of normalized text. Start and End are byte
// offsets of the window into the normalized text; Text is the window
// content trimmed of surrounding whitespace.
type Chunk struct {
	Index int
	Start int
	End   int
	Text  string
}

// Split cuts normalized text into overlapping windows of at most
// maxChars bytes, consecutive windows overlapping by overlap bytes.
// Windows that trim to nothing are dropped. Empty text produces no
// chunks. The result is deterministic for a given (text, maxChars,
// overlap) triple.
//
// overlap must be smaller than maxChars or the cursor cannot advance.
func Split(text string, maxChars, overlap int) []Chunk {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if overlap < 0 || overlap >= maxChars {
		overlap = 0
	}
	if text == "" {
		return nil
	}

	var chunks []Chunk
	n := len(text)
	start := 0
	for start < n {
		end := start + maxChars
		if end > n {
			end = n
		}
		if piece := strings.TrimSpace(text[start:end]); piece != "" {
			chunks = append(chunks, Chunk{
				Index: len(chunks),
				Start: start,
				End:   end,
				Text:  piece,
			})
		}
		if end == n {
			break
		}
		start = end - overlap
		if start < 0 {
			start = 0
		}
	}
	return chunks
}
