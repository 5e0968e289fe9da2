package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/statewire/internal/compiler"
	"github.com/roach88/statewire/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// MachineIndex is the compiled, indexed form of one machine.
type MachineIndex struct {
	Name        string              `json:"name"`
	Dispatch    string              `json:"dispatch"`
	Fingerprint string              `json:"fingerprint"`
	States      []string            `json:"states"`
	Signals     []string            `json:"signals"`
	Connections map[string][]string `json:"connections"` // category -> names
	Callbacks   []ir.Callback       `json:"callbacks,omitempty"`
	MainThread  bool                `json:"main_thread_work,omitempty"`
}

// CompilationResult holds every compiled machine.
type CompilationResult struct {
	Machines []MachineIndex `json:"machines"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <specs-dir>",
		Short: "Build and index every machine in a specs directory",
		Long: `Build every machine declared in a CUE specs directory.

Each connection is classified and placed in its dispatch index. Any
diagnostic fails the build; all of them are reported together.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the indices as JSON to this file")

	return cmd
}

func runCompile(opts *CompileOptions, specsDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loaded, err := loadSpecs(formatter, specsDir)
	if err != nil {
		return err
	}

	results := compiler.BuildAll(loaded.Specs)

	var diags []compiler.Diagnostic
	for _, res := range results {
		formatter.VerboseLog("Building machine: %s", res.Machine)
		diags = append(diags, res.Diagnostics...)
	}
	if len(diags) > 0 {
		return outputDiagnostics(formatter, ExitCommandError, "Compilation", diags)
	}

	result := &CompilationResult{Machines: make([]MachineIndex, 0, len(results))}
	for _, res := range results {
		result.Machines = append(result.Machines, indexOf(res))
	}

	if opts.Output != "" {
		if err := writeIndexFile(result, opts.Output); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

func indexOf(res *compiler.BuildResult) MachineIndex {
	m := res.Model
	idx := MachineIndex{
		Name:        m.Name(),
		Dispatch:    m.DispatchMode().String(),
		Fingerprint: res.Fingerprint,
		States:      m.States(),
		Signals:     m.Signals(),
		Connections: make(map[string][]string),
		Callbacks:   m.Callbacks(),
		MainThread:  m.HasMainThreadWork(),
	}
	for _, cat := range ir.AllCategories {
		ids := m.Raw(cat)
		if len(ids) == 0 {
			continue
		}
		names := make([]string, len(ids))
		for i, id := range ids {
			names[i] = m.Connection(id).Name
		}
		idx.Connections[cat.String()] = names
	}
	return idx
}

func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d machine(s)\n\n", len(result.Machines))
	for _, idx := range result.Machines {
		total := 0
		for _, names := range idx.Connections {
			total += len(names)
		}
		fmt.Fprintf(w, "%s [%s]: %d state(s), %d signal(s), %d connection(s)\n",
			idx.Name, idx.Dispatch, len(idx.States), len(idx.Signals), total)
		for _, cat := range ir.AllCategories {
			if names := idx.Connections[cat.String()]; len(names) > 0 {
				fmt.Fprintf(w, "  %-27s %v\n", cat.String(), names)
			}
		}
		fmt.Fprintf(w, "  fingerprint %s\n\n", idx.Fingerprint)
	}

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote indices to %s\n", outputFile)
	}
	return nil
}

// outputDiagnostics reports build diagnostics and returns an ExitError
// carrying exitCode.
func outputDiagnostics(formatter *OutputFormatter, exitCode int, what string, diags []compiler.Diagnostic) error {
	exitErr := NewExitError(exitCode, fmt.Sprintf("%s failed with %d diagnostic(s)", strings.ToLower(what), len(diags)))

	if formatter.JSON() {
		if err := formatter.Respond(CLIResponse{
			Status: "error",
			Data:   diags,
			Error:  &CLIError{Code: diags[0].Code, Message: diags[0].Message},
		}); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintf(formatter.Writer, "✗ %s failed\n\n", what)
	for _, d := range diags {
		fmt.Fprintf(formatter.Writer, "  %s\n", d.Error())
	}
	fmt.Fprintln(formatter.Writer)
	return exitErr
}

func writeIndexFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling indices: %w", err)
	}
	return os.WriteFile(filename, append(data, '\n'), 0o644)
}
