// Package main implements the CLI driver for the typeflow analyzer.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/pprof"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/715d/typeflow/internal/config"
	"github.com/715d/typeflow/internal/progfile"
	"github.com/715d/typeflow/internal/trace"
	"github.com/715d/typeflow/pkg/callgraph"
	"github.com/715d/typeflow/pkg/debugmeta"
	"github.com/715d/typeflow/pkg/global"
	"github.com/715d/typeflow/pkg/inline"
	"github.com/715d/typeflow/pkg/ir"
)

// Config holds all command-line configuration options for the analyzer.
type Config struct {
	ConfigPath           string // optional YAML analysis configuration
	Verbose              bool   // enables detailed output and statistics
	JSON                 bool   // enables JSON output format
	Profile              bool   // enables CPU and memory profiling
	MaxIterations        int    // refinement loop cap
	BigOverrideThreshold int    // multiple-callee fan-out cap
	GraphKind            string // which call graph to report stats for
	TraceSpecs           []string
	DebugMetadataPath    string // write the symbolication table here
	Inline               bool   // run the inline-candidate pass
}

const (
	exitNotConverged = 1
	exitError        = 2
)

var (
	// Set via ldflags during build.
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var cfg Config

func main() {
	var rootCmd = &cobra.Command{
		Use:   "typeflow <program.yaml>",
		Short: "Whole-program type and call-graph analysis",
		Long: `typeflow runs an interprocedural type/nullness analysis over a
described program: it builds a call graph, iterates a global fixpoint, and
refines field and method-return types until nothing improves.`,
		Example: `  typeflow app.yaml                       # Analyze a program
  typeflow -v app.yaml                   # Verbose progress output
  typeflow --json app.yaml > report.json # JSON report
  typeflow --graph multiple app.yaml     # Also report the bounded graph`,
		Args:               cobra.ExactArgs(1),
		RunE:               runCommand,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
		SilenceUsage:       true,
		SilenceErrors:      true,
		Version:            version,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("typeflow version %s\n  commit: %s\n  built:  %s\n", version, gitCommit, buildTime))

	rootCmd.PersistentFlags().StringVarP(&cfg.ConfigPath, "config", "c", "", "Analysis configuration file")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&cfg.JSON, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&cfg.Profile, "profile", false, "Enable CPU and memory profiling (writes cpu.prof and mem.prof to current directory)")
	rootCmd.PersistentFlags().IntVar(&cfg.MaxIterations, "max-iterations", 0, "Cap on global refinement iterations (0 uses the configured default)")
	rootCmd.PersistentFlags().IntVar(&cfg.BigOverrideThreshold, "big-override-threshold", -1, "Virtual call-site fan-out cap for the multiple-callee graph (-1 uses the configured default)")
	rootCmd.PersistentFlags().StringVar(&cfg.GraphKind, "graph", "single", "Call graph to report stats for: single, complete or multiple")
	rootCmd.PersistentFlags().StringSliceVar(&cfg.TraceSpecs, "trace", nil, "Trace channel levels, e.g. TYPE=2,CG=1")
	rootCmd.PersistentFlags().StringVar(&cfg.DebugMetadataPath, "emit-debug-metadata", "", "Write the method symbolication table to this file")
	rootCmd.PersistentFlags().BoolVar(&cfg.Inline, "inline", false, "Run the inline-candidate pass and report its selection")

	if err := rootCmd.Execute(); err != nil {
		_ = teardown(nil, nil)
		if err.Error() != "" {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		var cErr *codedError
		if errors.As(err, &cErr) {
			os.Exit(cErr.code)
		}
		os.Exit(exitError)
	}
}

func runCommand(cmd *cobra.Command, args []string) error {
	fileCfg := config.Default()
	if cfg.ConfigPath != "" {
		loaded, err := config.Load(cfg.ConfigPath)
		if err != nil {
			return errWithCode(fmt.Errorf("configuration: %w", err), exitError)
		}
		fileCfg = loaded
	}
	if cfg.MaxIterations > 0 {
		fileCfg.MaxGlobalIterations = cfg.MaxIterations
	}
	if cfg.BigOverrideThreshold >= 0 {
		fileCfg.BigOverrideThreshold = cfg.BigOverrideThreshold
	}

	tracer := trace.New(os.Stderr)
	fileCfg.ApplyTrace(tracer)
	if err := applyTraceSpecs(tracer, cfg.TraceSpecs); err != nil {
		return errWithCode(err, exitError)
	}

	slog.Info("loading program", "path", args[0])
	program, err := progfile.Load(args[0])
	if err != nil {
		return errWithCode(fmt.Errorf("load program: %w", err), exitError)
	}

	result, err := runAnalysis(program, fileCfg, tracer)
	if err != nil {
		return errWithCode(fmt.Errorf("analyze: %w", err), exitError)
	}

	if err := writeResults(result, &cfg); err != nil {
		return errWithCode(fmt.Errorf("format results: %w", err), exitError)
	}

	if !result.Stats.Converged {
		return errWithCode(nil, exitNotConverged)
	}
	return nil
}

// Result represents the analysis output including summaries and execution
// statistics.
type Result struct {
	Fields  []Summary `json:"fields"`
	Returns []Summary `json:"returns"`
	Inline  []string  `json:"inline_candidates,omitempty"`
	Stats   struct {
		Classes          int             `json:"classes"`
		Methods          int             `json:"methods"`
		Reachable        int             `json:"reachable_methods"`
		Iterations       int             `json:"iterations"`
		Converged        bool            `json:"converged"`
		ResolvedFields   int             `json:"resolved_fields"`
		ResolvedReturns  int             `json:"resolved_returns"`
		Graph            callgraph.Stats `json:"graph"`
		AnalysisDuration time.Duration   `json:"analysis_duration"`
	} `json:"stats"`
}

// Summary is one refined field or method-return value.
type Summary struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Nullness string `json:"nullness"`
}

func runAnalysis(program *ir.Program, fileCfg *config.File, tracer *trace.Tracer) (*Result, error) {
	start := time.Now()

	slog.Info("running analysis", "max_iterations", fileCfg.MaxGlobalIterations)
	analysis, err := global.Run(program, global.Config{
		MaxGlobalIterations: fileCfg.MaxGlobalIterations,
		Tracer:              tracer,
	})
	if err != nil {
		return nil, err
	}
	duration := time.Since(start)
	slog.Info("analysis completed", "dur", duration, "iterations", analysis.Iterations())

	r := &Result{}
	r.Stats.AnalysisDuration = duration
	r.Stats.Classes = len(program.Classes)
	r.Stats.Methods = len(program.Methods())
	r.Stats.Iterations = analysis.Iterations()
	r.Stats.Converged = analysis.Converged()

	wps := analysis.WholeProgramState()
	r.Stats.ResolvedFields = wps.ResolvedFields()
	r.Stats.ResolvedReturns = wps.ResolvedReturns()

	for _, cls := range program.Classes {
		if cls.External {
			continue
		}
		for _, f := range cls.Fields {
			if v := wps.FieldType(f); !v.IsTop() {
				r.Fields = append(r.Fields, Summary{Name: f.String(), Type: v.TypeName(), Nullness: v.GetNullness().String()})
			}
		}
		for _, m := range cls.Methods {
			if m.Code == nil {
				continue
			}
			if analysis.IsReachable(m) {
				r.Stats.Reachable++
			}
			if v := wps.ReturnType(m); !v.IsTop() && !v.IsBottom() {
				r.Returns = append(r.Returns, Summary{Name: m.String(), Type: v.TypeName(), Nullness: v.GetNullness().String()})
			}
		}
	}
	sort.Slice(r.Fields, func(i, j int) bool { return r.Fields[i].Name < r.Fields[j].Name })
	sort.Slice(r.Returns, func(i, j int) bool { return r.Returns[i].Name < r.Returns[j].Name })

	graph, err := buildReportGraph(program, fileCfg)
	if err != nil {
		return nil, err
	}
	r.Stats.Graph = callgraph.ComputeStats(graph)

	if cfg.Inline {
		pass := inline.NewPass(fileCfg.Inline, tracer)
		for _, m := range pass.Candidates(program, graph) {
			r.Inline = append(r.Inline, m.String())
		}
	}

	if cfg.DebugMetadataPath != "" {
		if err := emitDebugMetadata(program, tracer); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func buildReportGraph(program *ir.Program, fileCfg *config.File) (*callgraph.Graph, error) {
	switch cfg.GraphKind {
	case "single":
		return callgraph.NewSingleCalleeGraph(program), nil
	case "complete":
		return callgraph.NewCompleteCallGraph(program), nil
	case "multiple":
		return callgraph.NewMultipleCalleeGraph(program, fileCfg.BigOverrideThreshold), nil
	}
	return nil, fmt.Errorf("unknown graph kind %q", cfg.GraphKind)
}

func emitDebugMetadata(program *ir.Program, tracer *trace.Tracer) error {
	md := debugmeta.Collect(program, tracer)

	ids := make(map[*ir.Method]uint64)
	for i, m := range program.Methods() {
		ids[m] = uint64(i)
	}

	f, err := os.Create(cfg.DebugMetadataPath)
	if err != nil {
		return fmt.Errorf("creating metadata file: %w", err)
	}
	defer f.Close()
	if err := md.Write(f, func(m *ir.Method) uint64 { return ids[m] }); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	slog.Info("debug metadata written", "path", cfg.DebugMetadataPath, "entries", len(md.Entries()))
	return nil
}

func applyTraceSpecs(tracer *trace.Tracer, specs []string) error {
	for _, spec := range specs {
		name, levelStr, ok := strings.Cut(spec, "=")
		if !ok {
			return fmt.Errorf("malformed trace spec %q, want CHANNEL=LEVEL", spec)
		}
		var level int
		if _, err := fmt.Sscanf(levelStr, "%d", &level); err != nil {
			return fmt.Errorf("malformed trace level in %q: %w", spec, err)
		}
		tracer.SetLevel(trace.Channel(name), level)
	}
	return nil
}

func writeResults(result *Result, cfg *Config) error {
	if cfg.JSON {
		output, err := formatJSONOutput(result)
		if err != nil {
			return err
		}
		fmt.Print(output)
		return nil
	}
	fmt.Print(formatTextOutput(result, cfg))
	return nil
}

func formatJSONOutput(result *Result) (string, error) {
	data, err := json.MarshalIndent(struct {
		*Result
		Version   string `json:"version"`
		Timestamp string `json:"timestamp"`
	}{
		Result:    result,
		Version:   version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling json output: %w", err)
	}
	return string(data), nil
}

func formatTextOutput(result *Result, cfg *Config) string {
	var output strings.Builder

	if cfg.Verbose {
		slog.Info("",
			"classes", result.Stats.Classes,
			"methods", result.Stats.Methods,
			"reachable", result.Stats.Reachable,
			"iterations", result.Stats.Iterations,
			"analysis_duration", result.Stats.AnalysisDuration.String())
	}

	fmt.Fprintf(&output, "graph: %d nodes, %d edges, %d call sites\n",
		result.Stats.Graph.Nodes, result.Stats.Graph.Edges, result.Stats.Graph.CallSites)
	fmt.Fprintf(&output, "resolved: %d fields, %d returns in %d iterations\n",
		result.Stats.ResolvedFields, result.Stats.ResolvedReturns, result.Stats.Iterations)
	if !result.Stats.Converged {
		output.WriteString("warning: analysis did not converge\n")
	}

	for _, s := range result.Fields {
		fmt.Fprintf(&output, "field  %s = %s (%s)\n", s.Name, orAny(s.Type), s.Nullness)
	}
	for _, s := range result.Returns {
		fmt.Fprintf(&output, "return %s = %s (%s)\n", s.Name, orAny(s.Type), s.Nullness)
	}
	for _, name := range result.Inline {
		fmt.Fprintf(&output, "inline %s\n", name)
	}
	return output.String()
}

func orAny(s string) string {
	if s == "" {
		return "<any>"
	}
	return s
}

var cpuProfile *os.File

func setup(_ *cobra.Command, _ []string) error {
	// Disable logger unless verbose flag is set.
	slog.SetDefault(slog.New(slog.DiscardHandler))
	if cfg.Verbose {
		opts := &slog.HandlerOptions{Level: slog.LevelDebug}
		var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
		if cfg.JSON {
			handler = slog.NewJSONHandler(os.Stderr, opts)
		}
		logger := slog.New(handler)
		slog.SetDefault(logger)
	}

	if !cfg.Profile {
		return nil
	}

	// Start CPU profiling.
	var err error
	cpuProfile, err = os.Create("cpu.prof")
	if err != nil {
		return fmt.Errorf("creating cpu.prof: %w", err)
	}
	if err := pprof.StartCPUProfile(cpuProfile); err != nil {
		_ = cpuProfile.Close()
		return fmt.Errorf("starting CPU profile: %w", err)
	}
	slog.Info("cpu profiling started", "file", "cpu.prof")
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	if !cfg.Profile || cpuProfile == nil {
		return nil
	}

	// Stop CPU profiling and close file.
	pprof.StopCPUProfile()
	defer cpuProfile.Close()
	slog.Info("cpu profiling stopped", "file", "cpu.prof")

	// Write memory profile.
	memFile, err := os.Create("mem.prof")
	if err != nil {
		return fmt.Errorf("creating mem.prof: %w", err)
	}
	defer memFile.Close()
	runtime.GC() // Get up-to-date statistics
	if err := pprof.WriteHeapProfile(memFile); err != nil {
		return fmt.Errorf("writing memory profile: %w", err)
	}
	slog.Info("memory profiling completed", "file", "mem.prof")
	return nil
}

func errWithCode(err error, code int) error {
	return &codedError{err: err, code: code}
}

type codedError struct {
	err  error
	code int
}

func (e codedError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}
