package trace

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChannelLevels(t *testing.T) {
	var buf bytes.Buffer
	tr := New(&buf)
	tr.SetLevel(Type, 2)

	tr.Tracef(Type, 1, "visible %d", 1)
	tr.Tracef(Type, 2, "boundary")
	tr.Tracef(Type, 3, "hidden")
	tr.Tracef(CG, 1, "silent channel")

	out := buf.String()
	require.Contains(t, out, "[TYPE] visible 1")
	require.Contains(t, out, "[TYPE] boundary")
	require.NotContains(t, out, "hidden")
	require.NotContains(t, out, "silent channel")
}

func TestEnabled(t *testing.T) {
	tr := Discard()
	require.False(t, tr.Enabled(Type, 1))
	tr.SetLevel(Type, 1)
	require.True(t, tr.Enabled(Type, 1))
	require.False(t, tr.Enabled(Type, 2))
	require.False(t, tr.Enabled(Inline, 1))
}
