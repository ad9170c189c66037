// Package debugmeta maps pretty-printed method names to method identities
// and serializes the mapping as a binary lookup table for symbolication.
package debugmeta

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/715d/typeflow/internal/trace"
	"github.com/715d/typeflow/pkg/ir"
)

const (
	tableMagic   uint32 = 0xFACEB001
	tableVersion uint32 = 1
)

// Metadata is the collision-free mapping from pretty names to methods.
type Metadata struct {
	entries    map[string]*ir.Method
	collisions int
}

// Collect builds the mapping over every internal method with a body. Two
// methods rendering to the same pretty name (overloads differing only in
// signature) are ambiguous for symbolication, so colliding names are
// dropped entirely.
func Collect(program *ir.Program, tracer *trace.Tracer) *Metadata {
	if tracer == nil {
		tracer = trace.Discard()
	}
	md := &Metadata{entries: make(map[string]*ir.Method)}
	collided := make(map[string]bool)
	program.WalkCode(func(m *ir.Method, _ *ir.Code) {
		name := m.PrettyName()
		if collided[name] {
			return
		}
		if _, dup := md.entries[name]; dup {
			delete(md.entries, name)
			collided[name] = true
			md.collisions++
			tracer.Tracef(trace.IODI, 2, "dropping ambiguous name %s", name)
			return
		}
		md.entries[name] = m
	})
	tracer.Tracef(trace.IODI, 1, "%d names mapped, %d dropped", len(md.entries), md.collisions)
	return md
}

// Entries returns the surviving name-to-method mapping.
func (md *Metadata) Entries() map[string]*ir.Method { return md.entries }

// Collisions returns how many distinct names were dropped as ambiguous.
func (md *Metadata) Collisions() int { return md.collisions }

// Entry is one record of the serialized table.
type Entry struct {
	Key      string
	MethodID uint64
}

// Write serializes the mapping in key order. The id function assigns each
// method its stable numeric identity. The table format caps the record
// count at 32 bits; exceeding it is a caller bug and panics.
func (md *Metadata) Write(w io.Writer, id func(*ir.Method) uint64) error {
	if len(md.entries) > math.MaxUint32 {
		panic(fmt.Sprintf("debugmeta: %d entries overflow the table count", len(md.entries)))
	}
	keys := make([]string, 0, len(md.entries))
	for k := range md.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	header := []uint32{tableMagic, tableVersion, uint32(len(keys)), 0}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("writing table header: %w", err)
	}
	for _, k := range keys {
		if len(k) > math.MaxUint16 {
			panic(fmt.Sprintf("debugmeta: key %q overflows the length field", k))
		}
		if err := binary.Write(w, binary.LittleEndian, uint16(len(k))); err != nil {
			return fmt.Errorf("writing record for %s: %w", k, err)
		}
		if err := binary.Write(w, binary.LittleEndian, id(md.entries[k])); err != nil {
			return fmt.Errorf("writing record for %s: %w", k, err)
		}
		if _, err := io.WriteString(w, k); err != nil {
			return fmt.Errorf("writing record for %s: %w", k, err)
		}
	}
	return nil
}

// Read parses a serialized table back into its entries, in file order.
func Read(r io.Reader) ([]Entry, error) {
	var header [4]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("reading table header: %w", err)
	}
	if header[0] != tableMagic {
		return nil, fmt.Errorf("bad table magic 0x%08X", header[0])
	}
	if header[1] != tableVersion {
		return nil, fmt.Errorf("unsupported table version %d", header[1])
	}
	entries := make([]Entry, 0, header[2])
	for i := uint32(0); i < header[2]; i++ {
		var keyLen uint16
		if err := binary.Read(r, binary.LittleEndian, &keyLen); err != nil {
			return nil, fmt.Errorf("reading record %d: %w", i, err)
		}
		var methodID uint64
		if err := binary.Read(r, binary.LittleEndian, &methodID); err != nil {
			return nil, fmt.Errorf("reading record %d: %w", i, err)
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, fmt.Errorf("reading record %d: %w", i, err)
		}
		entries = append(entries, Entry{Key: string(key), MethodID: methodID})
	}
	return entries, nil
}
