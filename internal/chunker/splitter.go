package chunker

import (
	"strings"
	"unicode/utf8"
)

// splitter is the synchronous core of the chunker: fragments in, finished
// messages out. It holds back a trailing partial fence marker so a marker
// split across fragments is still recognised.
type splitter struct {
	marker     string
	boundaries string
	minLen     int

	buf     strings.Builder
	fence   strings.Builder
	fenced  bool
	pending string
}

func newSplitter(marker, boundaries string, minLen int) *splitter {
	return &splitter{marker: marker, boundaries: boundaries, minLen: minLen}
}

// Feed consumes one fragment and returns the messages it completed.
func (sp *splitter) Feed(fragment string) []string {
	text := sp.pending + fragment
	sp.pending = ""

	var out []string
	for text != "" {
		i := strings.Index(text, sp.marker)

		if sp.fenced {
			if i < 0 {
				keep := partialSuffix(text, sp.marker)
				sp.fence.WriteString(text[:len(text)-keep])
				sp.pending = text[len(text)-keep:]
				return out
			}
			sp.fence.WriteString(text[:i+len(sp.marker)])
			out = append(out, sp.fence.String())
			sp.fence.Reset()
			sp.fenced = false
			text = text[i+len(sp.marker):]
			continue
		}

		if i < 0 {
			keep := partialSuffix(text, sp.marker)
			out = append(out, sp.feedNormal(text[:len(text)-keep])...)
			sp.pending = text[len(text)-keep:]
			return out
		}

		out = append(out, sp.feedNormal(text[:i])...)
		// text before a fence never shares a message with it
		if m := strings.TrimSpace(sp.buf.String()); m != "" {
			out = append(out, m)
		}
		sp.buf.Reset()
		sp.fenced = true
		sp.fence.WriteString(sp.marker)
		text = text[i+len(sp.marker):]
	}
	return out
}

// feedNormal appends s to the buffer, cutting a message at every boundary
// once the buffered text is long enough.
func (sp *splitter) feedNormal(s string) []string {
	var out []string
	for {
		i := strings.IndexAny(s, sp.boundaries)
		if i < 0 {
			sp.buf.WriteString(s)
			return out
		}
		_, w := utf8.DecodeRuneInString(s[i:])
		sp.buf.WriteString(s[:i+w])
		s = s[i+w:]

		m := strings.TrimSpace(sp.buf.String())
		if m != "" && utf8.RuneCountInString(m) >= sp.minLen {
			out = append(out, m)
			sp.buf.Reset()
		}
	}
}

// Flush returns whatever is left at end-of-stream, regardless of length.
// An unterminated fence is still emitted whole.
func (sp *splitter) Flush() []string {
	var rest string
	if sp.fenced {
		sp.fence.WriteString(sp.pending)
		rest = strings.TrimSpace(sp.fence.String())
	} else {
		sp.buf.WriteString(sp.pending)
		rest = strings.TrimSpace(sp.buf.String())
	}
	sp.buf.Reset()
	sp.fence.Reset()
	sp.fenced = false
	sp.pending = ""

	if rest == "" {
		return nil
	}
	return []string{rest}
}

// partialSuffix is the length of the longest suffix of text that is a proper
// prefix of marker.
func partialSuffix(text, marker string) int {
	for k := min(len(text), len(marker)-1); k > 0; k-- {
		if strings.HasSuffix(text, marker[:k]) {
			return k
		}
	}
	return 0
}
