package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/statewire/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool                    `json:"valid"`
	Machines    []string                `json:"machines"`
	Diagnostics []compiler.Diagnostic   `json:"diagnostics,omitempty"`
	Warnings    []compiler.CycleWarning `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <specs-dir>",
		Short: "Check every machine for diagnostics and auto loops",
		Long: `Validate the machines in a CUE specs directory without writing output.

Reports every diagnostic (unknown states and signals, duplicate callbacks,
wildcard autos) and warns about chains of auto connections that can loop.
Loops are warnings only; they do not fail validation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, specsDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loaded, err := loadSpecs(formatter, specsDir)
	if err != nil {
		return err
	}
	result := validateLoaded(loaded)
	for _, name := range result.Machines {
		formatter.VerboseLog("Validated machine: %s", name)
	}

	if !result.Valid {
		if formatter.JSON() {
			if err := formatter.Respond(CLIResponse{
				Status: "error",
				Data:   result,
				Error:  &CLIError{Code: result.Diagnostics[0].Code, Message: result.Diagnostics[0].Message},
			}); err != nil {
				return err
			}
			return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d diagnostic(s)", len(result.Diagnostics)))
		}
		printWarnings(formatter, result.Warnings)
		return outputDiagnostics(formatter, ExitFailure, "Validation", result.Diagnostics)
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	printWarnings(formatter, result.Warnings)
	fmt.Fprintf(formatter.Writer, "✓ All %d machine(s) valid\n", len(result.Machines))
	return nil
}

func printWarnings(formatter *OutputFormatter, warnings []compiler.CycleWarning) {
	for _, w := range warnings {
		fmt.Fprintf(formatter.Writer, "⚠ %s: %s\n", w.Machine, w.Message)
	}
	if len(warnings) > 0 {
		fmt.Fprintln(formatter.Writer)
	}
}

// ValidateSpecsDir builds every machine in specsDir and analyzes the valid
// ones for auto loops. The error is non-nil only when the directory cannot
// be loaded.
func ValidateSpecsDir(specsDir string) (*ValidationResult, error) {
	loaded, err := compiler.LoadDir(specsDir)
	if err != nil {
		return nil, err
	}
	return validateLoaded(loaded), nil
}

func validateLoaded(loaded *compiler.LoadResult) *ValidationResult {
	result := &ValidationResult{Machines: loaded.Names()}
	for _, res := range compiler.BuildAll(loaded.Specs) {
		if !res.OK() {
			result.Diagnostics = append(result.Diagnostics, res.Diagnostics...)
			continue
		}
		result.Warnings = append(result.Warnings, compiler.AnalyzeAutoCycles(res.Model)...)
	}
	result.Valid = len(result.Diagnostics) == 0
	return result
}
