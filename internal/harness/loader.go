package harness

import (
	"os"
	"path/filepath"
	"testing"

	yaml "gopkg.in/yaml.v3"

	"github.com/stretchr/testify/require"

	"github.com/715d/typeflow/internal/progfile"
	"github.com/715d/typeflow/pkg/ir"
)

// LoadTestCase loads a fixture directory: program.yaml plus expected.yaml.
func LoadTestCase(t *testing.T, dir string) (*TestCase, *ir.Program) {
	t.Helper()

	program, err := progfile.Load(filepath.Join(dir, "program.yaml"))
	require.NoError(t, err, "loading program fixture")

	data, err := os.ReadFile(filepath.Join(dir, "expected.yaml"))
	require.NoError(t, err, "reading expectations")

	tc := &TestCase{Dir: filepath.Base(dir)}
	require.NoError(t, yaml.Unmarshal(data, tc), "parsing expectations")
	return tc, program
}

// DiscoverTestCases returns the fixture directories under root, in lexical
// order.
func DiscoverTestCases(t *testing.T, root string) []string {
	t.Helper()

	entries, err := os.ReadDir(root)
	require.NoError(t, err, "reading testdata root")

	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if _, err := os.Stat(filepath.Join(dir, "program.yaml")); err == nil {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}
