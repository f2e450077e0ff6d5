package ilo

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Span is a half-open byte range [Start, End) into the original source.
// Every tree node carries one; synthetic nodes use UnknownSpan.
type Span struct {
	Start int
	End   int
}

// UnknownSpan marks a synthetic node with no corresponding source text.
var UnknownSpan = Span{Start: -1, End: -1}

func (s Span) IsUnknown() bool {
	return s.Start < 0
}

func (s Span) String() string {
	if s.IsUnknown() {
		return "?"
	}
	if s.Start == s.End {
		return itoa(s.Start)
	}
	return itoa(s.Start) + ".." + itoa(s.End)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Location is a 1-based line/column position paired with its byte cursor.
type Location struct {
	Line   int
	Column int
	Cursor int
}

// SourceMap converts byte offsets into Locations and back to line slices. It
// caches the start offset of every line so lookup is a binary search rather
// than a rescan, since diagnostics routinely ask for the same region many
// times over the life of a compilation session.
type SourceMap struct {
	source    []byte
	lineStart []int
}

// NewSourceMap builds a SourceMap over source, which must remain alive (and
// unchanged) for the lifetime of the returned map and everything it produces.
func NewSourceMap(source []byte) *SourceMap {
	lineStart := make([]int, 1, 64)
	lineStart[0] = 0
	for i, b := range source {
		if b == '\n' {
			lineStart = append(lineStart, i+1)
		}
	}
	return &SourceMap{source: source, lineStart: lineStart}
}

func (sm *SourceMap) LineCount() int {
	return len(sm.lineStart)
}

// Locate returns the (line, col) for a byte cursor, clamped to the source
// bounds. Column is rune-counted and 1-based.
func (sm *SourceMap) Locate(cursor int) Location {
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(sm.source) {
		cursor = len(sm.source)
	}
	lineIdx := sort.Search(len(sm.lineStart), func(i int) bool {
		return sm.lineStart[i] > cursor
	}) - 1
	if lineIdx < 0 {
		lineIdx = 0
	}
	lineStart := sm.lineStart[lineIdx]
	col := utf8.RuneCount(sm.source[lineStart:cursor]) + 1
	return Location{Line: lineIdx + 1, Column: col, Cursor: cursor}
}

func (sm *SourceMap) SpanLocations(s Span) (Location, Location) {
	return sm.Locate(s.Start), sm.Locate(s.End)
}

// Line returns the text of the given 1-based line number, with a trailing
// "\r\n" or "\n" trimmed.
func (sm *SourceMap) Line(n int) string {
	if n < 1 || n > len(sm.lineStart) {
		return ""
	}
	start := sm.lineStart[n-1]
	var end int
	if n < len(sm.lineStart) {
		end = sm.lineStart[n] - 1
	} else {
		end = len(sm.source)
	}
	if end < start {
		end = start
	}
	return strings.TrimRight(string(sm.source[start:end]), "\r\n")
}
