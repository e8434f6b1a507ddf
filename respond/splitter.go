package respond

import "strings"

// sentenceTerminators covers Latin and CJK sentence-ending punctuation.
var sentenceTerminators = map[rune]bool{
	'.': true, '!': true, '?': true,
	'。': true, '！': true, '？': true,
	';': true, '；': true,
	'\n': true,
}

// minSentenceRunes avoids cutting at a bare terminator: a split needs at
// least one other rune before the punctuation.
const minSentenceRunes = 2

// Splitter turns a stream of text deltas into complete sentences. Feed
// may emit zero or more sentences per delta; Finish drains the remainder
// and always emits the turn-closing marker.
//
// Not safe for concurrent use; one turn owns one Splitter.
type Splitter struct {
	buf     []rune
	emitted bool
}

// NewSplitter creates a Splitter for one turn.
func NewSplitter() *Splitter {
	return &Splitter{}
}

// Feed appends a delta and emits any complete sentences it closes.
func (s *Splitter) Feed(delta string, emit EmitFunc) {
	s.buf = append(s.buf, []rune(delta)...)

	start := 0
	for i, r := range s.buf {
		if !sentenceTerminators[r] {
			continue
		}
		if i-start+1 < minSentenceRunes && r != '\n' {
			continue
		}
		sentence := strings.TrimSpace(string(s.buf[start : i+1]))
		if sentence != "" {
			emit(sentence, !s.emitted, false)
			s.emitted = true
		}
		start = i + 1
	}
	s.buf = s.buf[start:]
}

// Finish emits any remaining text and the closing marker. When the
// remainder is itself the final sentence it carries the last flag;
// otherwise an empty marker closes the turn.
func (s *Splitter) Finish(emit EmitFunc) {
	rest := strings.TrimSpace(string(s.buf))
	s.buf = nil

	emit(rest, !s.emitted, true)
	s.emitted = true
}
