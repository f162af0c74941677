package chunker

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// headingPattern matches ATX-style heading lines (`#` through `######`
// followed by text).
var headingPattern = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

// section is a span of text between two headings, tagged with the stack of
// headings active at its location.
type section struct {
	headers map[int]string
	body    []rune
	// start and end are rune offsets of the trimmed body in the document.
	start, end int
}

// SplitMarkdown splits markdown into chunks, respecting headings. The
// document is partitioned into sections at ATX heading lines; a heading at
// level L clears all tracked headings at level L or deeper. Content before
// the first heading forms a section with no headers.
//
// When PreserveHeaders is set, each chunk is prefixed with the active
// heading lines (ascending level, blank-line separated from the body) and
// the per-chunk budget shrinks by the prefix length. Sections that fit the
// budget stay intact; larger sections are split with Split's boundary
// heuristics and every piece inherits the section's HeaderPath.
//
// When the header prefix leaves an effective budget no larger than the
// configured overlap, the section body is emitted as a single oversized
// chunk instead of risking a window that cannot advance.
func (s *Splitter) SplitMarkdown(markdown string) []Chunk {
	if strings.TrimSpace(markdown) == "" {
		return nil
	}

	sections := scanSections(markdown)

	var chunks []Chunk
	index := 0
	for _, sec := range sections {
		prefix := ""
		if s.cfg.PreserveHeaders && len(sec.headers) > 0 {
			prefix = renderHeaderPrefix(sec.headers)
		}

		var headerPath map[int]string
		if len(sec.headers) > 0 {
			headerPath = make(map[int]string, len(sec.headers))
			for level, text := range sec.headers {
				headerPath[level] = text
			}
		}

		budget := s.cfg.ChunkSize - utf8.RuneCountInString(prefix)

		if len(sec.body) <= budget || budget <= s.cfg.ChunkOverlap {
			chunks = append(chunks, Chunk{
				Content:    prefix + string(sec.body),
				Index:      index,
				StartChar:  sec.start,
				EndChar:    sec.end,
				HeaderPath: headerPath,
			})
			index++
			continue
		}

		for _, sub := range s.splitRunes(sec.body, budget) {
			chunks = append(chunks, Chunk{
				Content:    prefix + sub.Content,
				Index:      index,
				StartChar:  sec.start + sub.StartChar,
				EndChar:    sec.start + sub.EndChar,
				HeaderPath: headerPath,
			})
			index++
		}
	}

	return chunks
}

// scanSections partitions markdown into sections at ATX heading lines,
// tracking the active heading stack. Sections with whitespace-only bodies
// are dropped.
func scanSections(markdown string) []section {
	matches := headingPattern.FindAllStringSubmatchIndex(markdown, -1)

	// Byte offsets from the regexp are converted to rune offsets
	// incrementally, in document order.
	conv := newOffsetConverter(markdown)

	var sections []section
	current := map[int]string{}
	lastEnd := 0 // byte offset just past the previous heading line

	appendSection := func(startByte, endByte int) {
		body := markdown[startByte:endByte]
		if strings.TrimSpace(body) == "" {
			return
		}
		startRune := conv.runeOffset(startByte)
		runes := []rune(body)
		lo, hi := trimBounds(runes)

		headers := make(map[int]string, len(current))
		for level, text := range current {
			headers[level] = text
		}
		if len(headers) == 0 {
			headers = nil
		}
		sections = append(sections, section{
			headers: headers,
			body:    runes[lo:hi],
			start:   startRune + lo,
			end:     startRune + hi,
		})
	}

	for _, m := range matches {
		if lastEnd < m[0] {
			appendSection(lastEnd, m[0])
		}

		level := m[3] - m[2]
		text := strings.TrimSpace(markdown[m[4]:m[5]])

		// A new heading at level L closes any deeper or equal scope.
		for l := range current {
			if l >= level {
				delete(current, l)
			}
		}
		current[level] = text
		lastEnd = m[1]
	}

	if lastEnd < len(markdown) {
		appendSection(lastEnd, len(markdown))
	}

	return sections
}

// renderHeaderPrefix renders the active heading stack as heading lines in
// ascending level order, separated from the body by a blank line.
func renderHeaderPrefix(headers map[int]string) string {
	levels := make([]int, 0, len(headers))
	for level := range headers {
		levels = append(levels, level)
	}
	sort.Ints(levels)

	lines := make([]string, 0, len(levels))
	for _, level := range levels {
		lines = append(lines, strings.Repeat("#", level)+" "+headers[level])
	}
	return strings.Join(lines, "\n") + "\n\n"
}

// offsetConverter translates byte offsets into rune offsets for positions
// requested in ascending order.
type offsetConverter struct {
	s        string
	byteIdx  int
	runeIdx  int
}

func newOffsetConverter(s string) *offsetConverter {
	return &offsetConverter{s: s}
}

func (c *offsetConverter) runeOffset(byteOffset int) int {
	if byteOffset < c.byteIdx {
		// Restart for out-of-order requests; callers keep offsets sorted so
		// this is not hit in practice.
		c.byteIdx, c.runeIdx = 0, 0
	}
	c.runeIdx += utf8.RuneCountInString(c.s[c.byteIdx:byteOffset])
	c.byteIdx = byteOffset
	return c.runeIdx
}
