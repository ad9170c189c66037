// Package harness provides the fixture-driven test harness validating the
// whole-program analysis against small described programs.
package harness

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/typeflow/internal/progfile"
	"github.com/715d/typeflow/pkg/global"
	"github.com/715d/typeflow/pkg/ir"
	"github.com/715d/typeflow/pkg/lattice"
)

// TestCase is one fixture directory: a program description plus the
// expected analysis results.
type TestCase struct {
	// Dir is the fixture directory name.
	Dir string `yaml:"-"`

	// MaxIterations overrides the refinement cap; zero keeps the default.
	MaxIterations int `yaml:"max_iterations,omitempty"`

	// Expect holds the assertions to run against the analysis.
	Expect Expectations `yaml:"expect"`
}

// Expectations describe the analysis results a fixture must produce.
type Expectations struct {
	// Converged asserts the refinement loop stopped before the cap.
	Converged *bool `yaml:"converged,omitempty"`

	// Iterations pins the exact number of refinement rounds.
	Iterations *int `yaml:"iterations,omitempty"`

	// Reachable and Unreachable list methods by textual reference.
	Reachable   []string `yaml:"reachable,omitempty"`
	Unreachable []string `yaml:"unreachable,omitempty"`

	// AnyInitReachable lists methods flagged as reachable from initializers.
	AnyInitReachable []string `yaml:"any_init_reachable,omitempty"`

	// FieldTypes and ReturnTypes pin summarized abstract values.
	FieldTypes  []ValueExpectation `yaml:"field_types,omitempty"`
	ReturnTypes []ValueExpectation `yaml:"return_types,omitempty"`
}

// ValueExpectation pins the summary of one field or method return. An
// empty Type means the type component must be unconstrained.
type ValueExpectation struct {
	Field    string `yaml:"field,omitempty"`
	Method   string `yaml:"method,omitempty"`
	Type     string `yaml:"type,omitempty"`
	Nullness string `yaml:"nullness"`
}

// Harness runs test cases against fixture programs.
type Harness struct {
	root string
}

// NewHarness creates a harness rooted at a testdata directory.
func NewHarness(root string) *Harness {
	return &Harness{root: root}
}

// Run runs the analysis over the case's program and checks every
// expectation.
func (h *Harness) Run(t *testing.T, tc *TestCase, program *ir.Program) {
	t.Helper()

	analysis, err := global.Run(program, global.Config{
		MaxGlobalIterations: tc.MaxIterations,
	})
	require.NoError(t, err, "analysis failed for %s", h.fixturePath(tc))

	if tc.Expect.Converged != nil {
		require.Equal(t, *tc.Expect.Converged, analysis.Converged(), "convergence")
	}
	if tc.Expect.Iterations != nil {
		require.Equal(t, *tc.Expect.Iterations, analysis.Iterations(), "iteration count")
	}

	for _, ref := range tc.Expect.Reachable {
		m := h.method(t, program, ref)
		require.True(t, analysis.IsReachable(m), "method %s should be reachable", ref)
	}
	for _, ref := range tc.Expect.Unreachable {
		m := h.method(t, program, ref)
		require.False(t, analysis.IsReachable(m), "method %s should be unreachable", ref)
	}
	for _, ref := range tc.Expect.AnyInitReachable {
		m := h.method(t, program, ref)
		require.True(t, analysis.WholeProgramState().IsAnyInitReachable(m),
			"method %s should be flagged init-reachable", ref)
	}

	wps := analysis.WholeProgramState()
	for _, ve := range tc.Expect.FieldTypes {
		f, err := progfile.FindField(program, ve.Field)
		require.NoError(t, err)
		h.checkValue(t, fmt.Sprintf("field %s", ve.Field), wps.FieldType(f), ve)
	}
	for _, ve := range tc.Expect.ReturnTypes {
		m := h.method(t, program, ve.Method)
		h.checkValue(t, fmt.Sprintf("return of %s", ve.Method), wps.ReturnType(m), ve)
	}
}

// fixturePath names the fixture directory in failure output.
func (h *Harness) fixturePath(tc *TestCase) string {
	return filepath.Join(h.root, tc.Dir)
}

func (h *Harness) method(t *testing.T, program *ir.Program, ref string) *ir.Method {
	t.Helper()
	m, err := progfile.FindMethod(program, ref)
	require.NoError(t, err)
	return m
}

func (h *Harness) checkValue(t *testing.T, what string, got lattice.TypeDomain, want ValueExpectation) {
	t.Helper()
	require.Equal(t, want.Type, got.TypeName(), "%s: type component", what)
	wantNullness, err := ParseNullness(want.Nullness)
	require.NoError(t, err, "%s: expectation", what)
	require.Equal(t, wantNullness, got.GetNullness(), "%s: nullness", what)
}

// ParseNullness maps the textual nullness used in fixtures to the lattice
// element. The empty string means nullable.
func ParseNullness(s string) (lattice.Nullness, error) {
	switch s {
	case "null":
		return lattice.IsNull, nil
	case "not-null":
		return lattice.NotNull, nil
	case "nullable", "":
		return lattice.NullnessTop, nil
	case "bottom":
		return lattice.NullnessBottom, nil
	}
	return 0, fmt.Errorf("unknown nullness %q", s)
}
