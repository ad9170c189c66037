package debugmeta

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/typeflow/pkg/ir"
)

func program(methods ...*ir.Method) *ir.Program {
	for _, m := range methods {
		if m.Code == nil {
			m.Code = &ir.Code{}
		}
	}
	return ir.NewProgram(&ir.Class{Name: "Lcom/app/Main;", Methods: methods})
}

func TestCollect(t *testing.T) {
	md := Collect(program(
		&ir.Method{Name: "run", Proto: "()V"},
		&ir.Method{Name: "stop", Proto: "()V"},
	), nil)

	require.Len(t, md.Entries(), 2)
	require.Zero(t, md.Collisions())
	require.Contains(t, md.Entries(), "com.app.Main.run")
	require.Contains(t, md.Entries(), "com.app.Main.stop")
}

func TestCollectDropsCollidingOverloads(t *testing.T) {
	md := Collect(program(
		&ir.Method{Name: "run", Proto: "()V"},
		&ir.Method{Name: "run", Proto: "(I)V"},
		&ir.Method{Name: "run", Proto: "(II)V"},
		&ir.Method{Name: "stop", Proto: "()V"},
	), nil)

	require.Equal(t, 1, md.Collisions(), "one distinct name collided")
	require.NotContains(t, md.Entries(), "com.app.Main.run")
	require.Contains(t, md.Entries(), "com.app.Main.stop")
}

func TestWriteReadRoundTrip(t *testing.T) {
	run := &ir.Method{Name: "run", Proto: "()V"}
	stop := &ir.Method{Name: "stop", Proto: "()V"}
	md := Collect(program(run, stop), nil)

	ids := map[*ir.Method]uint64{run: 7, stop: 42}
	var buf bytes.Buffer
	require.NoError(t, md.Write(&buf, func(m *ir.Method) uint64 { return ids[m] }))

	entries, err := Read(&buf)
	require.NoError(t, err)
	require.Equal(t, []Entry{
		{Key: "com.app.Main.run", MethodID: 7},
		{Key: "com.app.Main.stop", MethodID: 42},
	}, entries, "records come back in key order")
}

func TestWriteHeaderLayout(t *testing.T) {
	run := &ir.Method{Name: "run", Proto: "()V"}
	md := Collect(program(run), nil)

	var buf bytes.Buffer
	require.NoError(t, md.Write(&buf, func(*ir.Method) uint64 { return 1 }))

	raw := buf.Bytes()
	require.Equal(t, uint32(0xFACEB001), binary.LittleEndian.Uint32(raw[0:4]))
	require.Equal(t, uint32(1), binary.LittleEndian.Uint32(raw[4:8]), "version")
	require.Equal(t, uint32(1), binary.LittleEndian.Uint32(raw[8:12]), "count")
	require.Equal(t, uint32(0), binary.LittleEndian.Uint32(raw[12:16]), "reserved")
	require.Equal(t, uint16(len("com.app.Main.run")), binary.LittleEndian.Uint16(raw[16:18]))
}

func TestReadRejectsCorruptHeaders(t *testing.T) {
	t.Run("bad magic", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, []uint32{0xDEADBEEF, 1, 0, 0}))
		_, err := Read(&buf)
		require.ErrorContains(t, err, "magic")
	})

	t.Run("bad version", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, []uint32{0xFACEB001, 9, 0, 0}))
		_, err := Read(&buf)
		require.ErrorContains(t, err, "version")
	})

	t.Run("truncated record", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, []uint32{0xFACEB001, 1, 1, 0}))
		_, err := Read(&buf)
		require.Error(t, err)
	})
}
