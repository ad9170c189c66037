// Package trace provides leveled diagnostics channels for the analyses.
// Each channel has an independent verbosity level; a message is emitted
// when its level is at or below the channel's configured level. Channels
// are purely observational: no analysis decision may depend on them.
package trace

import (
	"io"
	"log"
)

// Channel names a diagnostics stream.
type Channel string

const (
	// Type is the type-analysis channel.
	Type Channel = "TYPE"

	// CG is the call-graph construction channel.
	CG Channel = "CG"

	// IODI is the debug-metadata channel.
	IODI Channel = "IODI"

	// Inline is the inline-candidate-selection channel.
	Inline Channel = "INLINE"
)

// Channels lists every known channel.
var Channels = []Channel{Type, CG, IODI, Inline}

// Tracer fans messages out per channel. Configure levels before handing the
// tracer to concurrent workers; the underlying loggers serialize writes.
type Tracer struct {
	levels  map[Channel]int
	loggers map[Channel]*log.Logger
}

// New creates a tracer writing to w with every channel at level 0 (silent).
func New(w io.Writer) *Tracer {
	t := &Tracer{
		levels:  make(map[Channel]int, len(Channels)),
		loggers: make(map[Channel]*log.Logger, len(Channels)),
	}
	for _, ch := range Channels {
		t.loggers[ch] = log.New(w, "["+string(ch)+"] ", 0)
	}
	return t
}

// Discard returns a tracer that drops everything.
func Discard() *Tracer {
	return New(io.Discard)
}

// SetLevel sets a channel's verbosity. Level 0 silences the channel.
func (t *Tracer) SetLevel(ch Channel, level int) {
	t.levels[ch] = level
}

// Enabled reports whether a message at the given level would be emitted.
func (t *Tracer) Enabled(ch Channel, level int) bool {
	return level <= t.levels[ch]
}

// Tracef emits a formatted message on a channel at a level.
func (t *Tracer) Tracef(ch Channel, level int, format string, args ...any) {
	if !t.Enabled(ch, level) {
		return
	}
	if l, ok := t.loggers[ch]; ok {
		l.Printf(format, args...)
	}
}
