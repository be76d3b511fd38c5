package run

import "strings"

// LogBuffer accumulates streamed log output. The stream mixes two event
// shapes without a discriminator: full snapshots of everything so far and
// incremental deltas. Append tells them apart with a prefix match.
type LogBuffer struct {
	content string
}

// NewLogBuffer returns a buffer seeded with previously accumulated content,
// used to preserve output across an explicit reconnect.
func NewLogBuffer(content string) *LogBuffer {
	return &LogBuffer{content: content}
}

// Append merges incoming content into the buffer: content that starts with
// the accumulated text replaces it (a fuller snapshot), anything else is
// appended after a newline (an incremental delta).
func (b *LogBuffer) Append(content string) {
	if content == "" {
		return
	}
	if b.content == "" {
		b.content = content
		return
	}
	if strings.HasPrefix(content, b.content) {
		b.content = content
		return
	}
	b.content += "\n" + content
}

// String returns the accumulated log text.
func (b *LogBuffer) String() string {
	return b.content
}
