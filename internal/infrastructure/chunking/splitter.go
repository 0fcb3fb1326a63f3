package chunking

import (
	"strings"
	"unicode"

	"github.com/tmc/langchaingo/textsplitter"
)

// Splitter cuts text into rune windows with overlap. A window that would end
// mid-word is pulled back to the last whitespace in its final quarter.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

var _ textsplitter.TextSplitter = (*Splitter)(nil)

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 900
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{ChunkSize: chunkSize, Overlap: overlap}
}

func (s *Splitter) SplitText(text string) ([]string, error) {
	return s.Split(text), nil
}

func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var out []string
	for start := 0; start < n; {
		end := min(start+s.ChunkSize, n)
		if end < n {
			end = wordBoundary(runes, start+s.ChunkSize*3/4, end)
		}
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			out = append(out, chunk)
		}
		if end == n {
			break
		}
		next := end - s.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

func wordBoundary(runes []rune, floor, end int) int {
	for i := end; i > floor; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return end
}
