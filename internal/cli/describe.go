package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/statewire/internal/compiler"
	"github.com/roach88/statewire/internal/ir"
	"github.com/roach88/statewire/internal/report"
	"github.com/roach88/statewire/internal/store"
)

// DescribeOptions holds flags for the describe command.
type DescribeOptions struct {
	*RootOptions
	Machine  string
	As       string // text | mermaid | json
	DB       string // journal for the mermaid overlay
	Instance string
}

var describeRenderings = []string{"text", "mermaid", "json"}

// NewDescribeCommand creates the describe command.
func NewDescribeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DescribeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "describe <specs-dir>",
		Short: "Render a machine as text, a Mermaid graph or visualizer JSON",
		Long: `Render one compiled machine.

  text     every index: global connections, then per-state connections
  mermaid  flowchart of states and transitions
  json     visualizer document (states, edges, categories)

With --db and --instance the Mermaid graph highlights the states that
instance visited and the state it is in.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDescribe(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Machine, "machine", "m", "", "machine to describe (optional when the directory declares one)")
	cmd.Flags().StringVar(&opts.As, "as", "text", "rendering (text|mermaid|json)")
	cmd.Flags().StringVar(&opts.DB, "db", "", "SQLite journal to overlay (mermaid only)")
	cmd.Flags().StringVar(&opts.Instance, "instance", "", "instance to overlay (requires --db)")

	return cmd
}

func runDescribe(opts *DescribeOptions, specsDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if !slices.Contains(describeRenderings, opts.As) {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidFlag,
			fmt.Sprintf("invalid rendering %q: must be one of %v", opts.As, describeRenderings), nil)
	}
	if (opts.DB == "") != (opts.Instance == "") {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidFlag, "--db and --instance must be used together", nil)
	}

	res, err := buildMachine(formatter, specsDir, opts.Machine)
	if err != nil {
		return err
	}
	model := res.Model

	var out string
	switch opts.As {
	case "text":
		out = report.Describe(model)
	case "mermaid":
		var overlay *report.Overlay
		if opts.DB != "" {
			if overlay, err = journalOverlay(cmd.Context(), opts.DB, opts.Instance, model.Name()); err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
			}
		}
		out = report.Mermaid(model, overlay)
	case "json":
		data, err := report.VisualizerJSON(model)
		if err != nil {
			return formatter.Fail(ExitCommandError, compiler.ErrCodeGeneric, err.Error(), nil)
		}
		if formatter.JSON() {
			return formatter.Success(json.RawMessage(data))
		}
		out = string(data) + "\n"
	}

	if formatter.JSON() {
		return formatter.Success(map[string]string{
			"machine":   model.Name(),
			"rendering": opts.As,
			"output":    out,
		})
	}
	fmt.Fprint(formatter.Writer, out)
	return nil
}

// journalOverlay marks the states an instance of machine entered, in
// journal order.
func journalOverlay(ctx context.Context, dbPath, instance, machine string) (*report.Overlay, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	inst, err := st.GetInstance(ctx, instance)
	if err != nil {
		return nil, err
	}
	if inst.Machine != machine {
		return nil, fmt.Errorf("instance %s is a %s, not a %s", instance, inst.Machine, machine)
	}

	recs, err := st.ReadDispatches(ctx, instance)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("no dispatches journaled for instance %s", instance)
	}

	overlay := &report.Overlay{}
	for _, rec := range recs {
		entered := rec.Transitioned() || (rec.Kind == ir.RecordInit && rec.Error == "")
		if !entered {
			continue
		}
		if !slices.Contains(overlay.Visited, rec.NextState) {
			overlay.Visited = append(overlay.Visited, rec.NextState)
		}
		overlay.Current = rec.NextState
	}
	return overlay, nil
}
