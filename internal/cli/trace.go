package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/statewire/internal/ir"
	"github.com/roach88/statewire/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	JournalOptions
	Instance string
	Kind     string // optional - filter to init, signal or auto records
}

// TraceStats holds summary statistics for one instance.
type TraceStats struct {
	Records     int `json:"records"`
	Signals     int `json:"signals"`
	Autos       int `json:"autos"`
	Transitions int `json:"transitions"`
	SpiesFired  int `json:"spies_fired"`
	Errors      int `json:"errors"`
}

// TraceResult holds the journal of one instance.
type TraceResult struct {
	InstanceID string              `json:"instance_id"`
	Machine    string              `json:"machine"`
	Records    []ir.DispatchRecord `json:"records"`
	Stats      TraceStats          `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print journaled dispatch cycles",
		Long: `Print the dispatch journal of one machine instance.

Without --instance, lists every journaled instance with its machine,
fingerprint and record count.

Examples:
  statewire trace --db ./door.db
  statewire trace --db ./door.db --instance 0192...
  statewire trace --redis localhost:6379 --instance door-1 --kind signal
  statewire trace --db ./door.db --instance door-1 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	opts.JournalOptions.addFlags(cmd)
	cmd.Flags().StringVar(&opts.Instance, "instance", "", "instance to trace (default: list instances)")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter records by kind (init|signal|auto)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	switch ir.RecordKind(opts.Kind) {
	case "", ir.RecordInit, ir.RecordSignal, ir.RecordAuto:
	default:
		return formatter.Fail(ExitCommandError, ErrCodeInvalidFlag,
			fmt.Sprintf("invalid kind %q: must be init, signal or auto", opts.Kind), nil)
	}

	journal, err := opts.JournalOptions.open(ctx, false)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
	}
	defer journal.Close()

	if opts.Instance == "" {
		return listInstances(ctx, formatter, journal)
	}

	inst, err := findInstance(ctx, journal, opts.Instance)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
	}

	records, err := journal.ReadDispatches(ctx, opts.Instance)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
	}

	result := TraceResult{
		InstanceID: inst.ID,
		Machine:    inst.Machine,
		Records:    filterRecords(records, ir.RecordKind(opts.Kind)),
	}
	result.Stats = traceStats(result.Records)

	if formatter.JSON() {
		return formatter.Success(result)
	}
	return outputTraceText(formatter.Writer, result, opts.Verbose)
}

func listInstances(ctx context.Context, formatter *OutputFormatter, journal store.Journal) error {
	instances, err := journal.ListInstances(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
	}
	if instances == nil {
		instances = []store.InstanceSummary{}
	}

	if formatter.JSON() {
		return formatter.Success(instances)
	}

	w := formatter.Writer
	if len(instances) == 0 {
		fmt.Fprintln(w, "No instances journaled.")
		return nil
	}
	for _, inst := range instances {
		fmt.Fprintf(w, "%s  %s  %d record(s) [seq %d..%d]  %s\n",
			inst.ID, inst.Machine, inst.Dispatches, inst.FirstSeq, inst.LastSeq, truncateID(inst.Fingerprint))
	}
	return nil
}

func filterRecords(records []ir.DispatchRecord, kind ir.RecordKind) []ir.DispatchRecord {
	if kind == "" {
		return records
	}
	out := []ir.DispatchRecord{}
	for _, rec := range records {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out
}

func traceStats(records []ir.DispatchRecord) TraceStats {
	stats := TraceStats{Records: len(records)}
	for _, rec := range records {
		switch rec.Kind {
		case ir.RecordSignal:
			stats.Signals++
		case ir.RecordAuto:
			stats.Autos++
		}
		if rec.Kind != ir.RecordInit && rec.Transitioned() {
			stats.Transitions++
		}
		stats.SpiesFired += len(rec.Spies)
		if rec.Error != "" {
			stats.Errors++
		}
	}
	return stats
}

func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	fmt.Fprintf(w, "Trace for instance %s (%s)\n\n", result.InstanceID, result.Machine)

	if len(result.Records) == 0 {
		fmt.Fprintln(w, "  (no records)")
	}
	for _, rec := range result.Records {
		fmt.Fprintf(w, "  %s\n", formatRecord(rec))
		if verbose && len(rec.Payload) > 0 {
			fmt.Fprintf(w, "       Payload: %s\n", formatArgs(rec.Payload.ToGo()))
		}
	}
	fmt.Fprintln(w)

	s := result.Stats
	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Records:     %d\n", s.Records)
	fmt.Fprintf(w, "  Signals:     %d\n", s.Signals)
	fmt.Fprintf(w, "  Autos:       %d\n", s.Autos)
	fmt.Fprintf(w, "  Transitions: %d\n", s.Transitions)
	fmt.Fprintf(w, "  Spies fired: %d\n", s.SpiesFired)
	fmt.Fprintf(w, "  Errors:      %d\n", s.Errors)
	return nil
}

// formatRecord renders one record on a line:
//
//	[3] signal Push Closed -> Open via open spies [watch]
func formatRecord(rec ir.DispatchRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s", rec.Seq, rec.Kind)
	if rec.Signal != "" {
		fmt.Fprintf(&b, " %s", rec.Signal)
	}
	if rec.Kind == ir.RecordInit {
		fmt.Fprintf(&b, " %s", rec.NextState)
	} else {
		fmt.Fprintf(&b, " %s -> %s", rec.State, rec.NextState)
	}
	if rec.Connection != "" {
		fmt.Fprintf(&b, " via %s", rec.Connection)
	}
	if len(rec.Spies) > 0 {
		fmt.Fprintf(&b, " spies [%s]", strings.Join(rec.Spies, " "))
	}
	if rec.Error != "" {
		fmt.Fprintf(&b, " error %q", rec.Error)
	}
	return b.String()
}

// formatArgs formats a map for display with sorted keys.
func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, formatValue(args[k])))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func formatValue(v any) string {
	switch val := v.(type) {
	case map[string]any:
		return formatArgs(val)
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = formatValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case string:
		return val
	default:
		return fmt.Sprintf("%v", v)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
