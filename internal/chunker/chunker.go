// Package chunker splits raw text and Markdown into bounded, overlapping
// segments suitable for independent embedding and retrieval.
//
// The splitter is a pure, synchronous computation over an in-memory string:
// no I/O, no shared state. A single Splitter is safe for concurrent use.
// All sizes and offsets are measured in runes, not bytes, for consistency
// with embedding token estimation.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const (
	// DefaultChunkSize is the default maximum runes per chunk.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the default number of runes repeated between
	// consecutive chunks.
	DefaultChunkOverlap = 200
	// DefaultSeparator is the preferred paragraph boundary.
	DefaultSeparator = "\n\n"
)

var (
	// ErrInvalidChunkSize indicates a non-positive chunk size.
	ErrInvalidChunkSize = errors.New("chunk size must be positive")

	// ErrInvalidOverlap indicates a negative overlap or an overlap that is
	// not smaller than the chunk size.
	ErrInvalidOverlap = errors.New("chunk overlap must be non-negative and smaller than chunk size")
)

// Chunk is a bounded text segment produced from a larger document.
//
// StartChar and EndChar are rune offsets into the original input string,
// with 0 <= StartChar < EndChar <= len(input in runes). They refer to the
// pre-trim text: Content may be a trimmed substring of the span they cover.
type Chunk struct {
	// Content is the extracted text segment; never empty or whitespace-only.
	Content string
	// Index is the 0-based position among chunks produced from one input.
	Index int
	// StartChar and EndChar delimit the source span in the input.
	StartChar int
	EndChar   int
	// HeaderPath maps heading level (1-6) to heading text for the nearest
	// enclosing Markdown headings. Nil for plain text or content with no
	// preceding headers.
	HeaderPath map[int]string
}

// Config controls how text is split.
type Config struct {
	// ChunkSize is the maximum runes per chunk. Defaults to DefaultChunkSize
	// when zero.
	ChunkSize int
	// ChunkOverlap is the number of runes of re-included context between
	// consecutive chunks. Defaults to DefaultChunkOverlap when ChunkSize is
	// also zero; otherwise used as given.
	ChunkOverlap int
	// Separator is the preferred paragraph boundary. Defaults to
	// DefaultSeparator when empty.
	Separator string
	// PreserveHeaders embeds Markdown header lineage in chunk content.
	PreserveHeaders bool
}

// Splitter splits text according to a validated Config.
type Splitter struct {
	cfg Config
	sep []rune
}

// New validates cfg and returns a Splitter. A zero ChunkSize (with zero
// overlap) selects the defaults; any other invalid combination is a
// configuration error, never silently clamped.
func New(cfg Config) (*Splitter, error) {
	if cfg.ChunkSize == 0 && cfg.ChunkOverlap == 0 {
		cfg.ChunkSize = DefaultChunkSize
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	if cfg.Separator == "" {
		cfg.Separator = DefaultSeparator
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidChunkSize, cfg.ChunkSize)
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("%w: overlap %d, chunk size %d", ErrInvalidOverlap, cfg.ChunkOverlap, cfg.ChunkSize)
	}
	return &Splitter{cfg: cfg, sep: []rune(cfg.Separator)}, nil
}

// Config returns the splitter's configuration.
func (s *Splitter) Config() Config {
	return s.cfg
}

// Split splits text into overlapping chunks of at most ChunkSize runes,
// preferring paragraph, then sentence, then word boundaries. Empty or
// all-whitespace input yields an empty result. Chunk indices are contiguous
// from 0 in emission order.
func (s *Splitter) Split(text string) []Chunk {
	runes := []rune(text)
	lo, hi := trimBounds(runes)
	if lo >= hi {
		return nil
	}

	body := runes[lo:hi]
	if len(body) <= s.cfg.ChunkSize {
		return []Chunk{{
			Content:   string(body),
			Index:     0,
			StartChar: lo,
			EndChar:   hi,
		}}
	}

	chunks := s.splitRunes(body, s.cfg.ChunkSize)
	for i := range chunks {
		chunks[i].StartChar += lo
		chunks[i].EndChar += lo
	}
	return chunks
}

// sentenceBreaks are tried in order; the first pattern present in the search
// window wins, at its rightmost occurrence.
var sentenceBreaks = [][]rune{
	{'.', ' '}, {'.', '\n'},
	{'!', ' '}, {'!', '\n'},
	{'?', ' '}, {'?', '\n'},
}

// splitRunes runs the sliding-window split over runes, which must be
// pre-trimmed and longer than budget. Offsets in the returned chunks are
// relative to the start of runes. budget must be larger than the configured
// overlap; callers that cannot guarantee that must not call splitRunes.
func (s *Splitter) splitRunes(runes []rune, budget int) []Chunk {
	overlap := s.cfg.ChunkOverlap
	n := len(runes)

	var chunks []Chunk
	start := 0
	prevEnd := 0
	index := 0

	for start < n {
		end := start + budget

		if end < n {
			// Search the tail of the window for the best break point.
			searchStart := start
			if end-overlap > start {
				searchStart = end - overlap
			}
			window := runes[searchStart:end]

			if p := lastIndexRunes(window, s.sep); p >= 0 {
				end = searchStart + p + len(s.sep)
			} else if p, plen := lastSentenceBreak(window); p >= 0 {
				end = searchStart + p + plen
			} else if p := lastIndexRune(window, ' '); p >= 0 {
				end = searchStart + p + 1
			}
		} else {
			end = n
		}

		// The window end must advance past the previous one; a stall would
		// loop forever when overlap is close to the chunk size and
		// delimiters are sparse. Fall back to a hard cut.
		if end <= prevEnd {
			end = start + budget
			if end > n {
				end = n
			}
		}

		content := strings.TrimSpace(string(runes[start:end]))
		if content != "" {
			chunks = append(chunks, Chunk{
				Content:   content,
				Index:     index,
				StartChar: start,
				EndChar:   end,
			})
			index++
		}

		prevEnd = end
		if end < n {
			start = end - overlap
			if start < 0 {
				start = 0
			}
		} else {
			start = end
		}
	}

	return chunks
}

// Estimate returns a fast closed-form approximation of the number of chunks
// Split would produce for an input of textLength runes. It is intended for
// progress reporting and is not exact: the boundary heuristics shift real
// chunk ends. Assumes 0 <= overlap < chunkSize.
func Estimate(textLength, chunkSize, overlap int) int {
	if textLength <= chunkSize {
		return 1
	}
	step := chunkSize - overlap
	est := (textLength - overlap + step - 1) / step
	if est < 1 {
		est = 1
	}
	return est
}

// trimBounds returns the half-open range of runes with surrounding
// whitespace removed. lo == hi means the input is empty or all whitespace.
func trimBounds(runes []rune) (lo, hi int) {
	hi = len(runes)
	for lo < hi && isSpace(runes[lo]) {
		lo++
	}
	for hi > lo && isSpace(runes[hi-1]) {
		hi--
	}
	return lo, hi
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r)
}

// lastIndexRunes returns the index of the last occurrence of needle in
// haystack, or -1.
func lastIndexRunes(haystack, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
outer:
	for i := len(haystack) - len(needle); i >= 0; i-- {
		for j := range needle {
			if haystack[i+j] != needle[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

func lastIndexRune(haystack []rune, r rune) int {
	for i := len(haystack) - 1; i >= 0; i-- {
		if haystack[i] == r {
			return i
		}
	}
	return -1
}

// lastSentenceBreak finds a sentence terminator in the window. Patterns are
// tried in a fixed order; the first pattern with any match wins at its
// rightmost position. Returns the match position and pattern length, or
// (-1, 0).
func lastSentenceBreak(window []rune) (int, int) {
	for _, pat := range sentenceBreaks {
		if p := lastIndexRunes(window, pat); p >= 0 {
			return p, len(pat)
		}
	}
	return -1, 0
}
