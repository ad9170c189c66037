package harness

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestAll runs every fixture under testdata.
func TestAll(t *testing.T) {
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "get current file path")

	testdataDir := filepath.Join(filepath.Dir(filename), "testdata")
	dirs := DiscoverTestCases(t, testdataDir)
	require.NotEmpty(t, dirs, "no fixtures found")

	h := NewHarness(testdataDir)
	for _, dir := range dirs {
		t.Run(filepath.Base(dir), func(t *testing.T) {
			t.Parallel()
			tc, program := LoadTestCase(t, dir)
			h.Run(t, tc, program)
		})
	}
}
