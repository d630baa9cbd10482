package transcript

import (
	"strings"
	"unicode/utf8"
)

// DefaultFlushChars is the buffered length past which a LiveBuffer flushes
// even without sentence punctuation.
const DefaultFlushChars = 200

// LiveBuffer accumulates streamed agent text for the open agent turn and
// releases it in sentence-sized chunks. It is not safe for concurrent use;
// the owning session touches it from its event loop only.
type LiveBuffer struct {
	limit int
	buf   strings.Builder
	all   strings.Builder
}

// NewLiveBuffer returns a LiveBuffer flushing past limit characters. A limit
// of zero or less selects DefaultFlushChars.
func NewLiveBuffer(limit int) *LiveBuffer {
	if limit <= 0 {
		limit = DefaultFlushChars
	}
	return &LiveBuffer{limit: limit}
}

// Append adds a text delta. It returns the buffered chunk when the buffer now
// ends a sentence or exceeds the limit, or "" when nothing is due.
func (b *LiveBuffer) Append(delta string) string {
	if delta == "" {
		return ""
	}
	b.buf.WriteString(delta)
	b.all.WriteString(delta)
	if endsSentence(b.buf.String()) || utf8.RuneCountInString(b.buf.String()) > b.limit {
		return b.take()
	}
	return ""
}

// Flush returns whatever is buffered, possibly "".
func (b *LiveBuffer) Flush() string {
	return b.take()
}

// Text returns the full text appended since the last Reset.
func (b *LiveBuffer) Text() string {
	return strings.Join(strings.Fields(b.all.String()), " ")
}

// Reset clears both the pending chunk and the accumulated text.
func (b *LiveBuffer) Reset() {
	b.buf.Reset()
	b.all.Reset()
}

func (b *LiveBuffer) take() string {
	s := strings.Join(strings.Fields(b.buf.String()), " ")
	b.buf.Reset()
	return s
}
