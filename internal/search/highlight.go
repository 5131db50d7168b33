package search

import (
	"strings"
	"unicode/utf8"
)

// Segment is a run of a label that either matches the search term or not
type Segment struct {
	Text    string `json:"text"`
	Matched bool   `json:"matched"`
}

// Highlight splits text into alternating unmatched and matched runs for
// every case-insensitive occurrence of term. Concatenating the segments
// yields text.
func Highlight(text, term string) []Segment {
	needle := strings.TrimSpace(term)
	if needle == "" || text == "" {
		return []Segment{{Text: text}}
	}

	lowerText := strings.ToLower(text)
	lowerNeedle := strings.ToLower(needle)
	// Case folding can change byte lengths; fall back to no highlighting.
	if len(lowerText) != len(text) || len(lowerNeedle) != len(needle) || !utf8.ValidString(text) {
		return []Segment{{Text: text}}
	}

	segments := make([]Segment, 0)
	pos := 0
	for {
		i := strings.Index(lowerText[pos:], lowerNeedle)
		if i < 0 {
			break
		}
		start := pos + i
		end := start + len(lowerNeedle)
		if start > pos {
			segments = append(segments, Segment{Text: text[pos:start]})
		}
		segments = append(segments, Segment{Text: text[start:end], Matched: true})
		pos = end
	}
	if pos < len(text) {
		segments = append(segments, Segment{Text: text[pos:]})
	}
	return segments
}
