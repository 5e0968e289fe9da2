package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/statewire/internal/compiler"
	"github.com/roach88/statewire/internal/engine"
	"github.com/roach88/statewire/internal/harness"
	"github.com/roach88/statewire/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	JournalOptions
	Instance string // optional - specific instance only
	Guards   string
}

// InstanceReplay holds the replay result for one instance.
type InstanceReplay struct {
	InstanceID       string              `json:"instance_id"`
	Machine          string              `json:"machine"`
	Records          int                 `json:"records"`
	FingerprintMatch bool                `json:"fingerprint_match"`
	Deterministic    bool                `json:"deterministic"`
	Divergences      []engine.Divergence `json:"divergences,omitempty"`
}

// ReplayReport holds the overall replay result.
type ReplayReport struct {
	Instances        []InstanceReplay `json:"instances"`
	Total            int              `json:"total"`
	AllDeterministic bool             `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <specs-dir>",
		Short: "Re-dispatch journaled signals and verify determinism",
		Long: `Replay journaled instances against the machines in a specs directory.

For each instance, a fresh machine is initialized at the journaled start
state and sent every journaled signal with its payload. Auto cycles are
regenerated by the machine. Every produced record must equal the
journaled one; differences are reported as divergences.

Guards are scripted with --guards as in "run". Replaying with different
stubs than the original run is expected to diverge.

Exit codes:
  0 - Every instance replayed identically
  1 - At least one instance diverged
  2 - Command error (journal not found, machine not declared, etc.)

Examples:
  statewire replay ./specs --db ./door.db
  statewire replay ./specs --db ./door.db --instance door-1 --guards stubs.yaml
  statewire replay ./specs --redis localhost:6379 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	opts.JournalOptions.addFlags(cmd)
	cmd.Flags().StringVar(&opts.Instance, "instance", "", "replay this instance only")
	cmd.Flags().StringVar(&opts.Guards, "guards", "", "YAML file of guard and callback stubs")

	return cmd
}

func runReplay(opts *ReplayOptions, specsDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	loaded, err := loadSpecs(formatter, specsDir)
	if err != nil {
		return err
	}

	var stubs *harness.Stubs
	if opts.Guards != "" {
		if stubs, err = harness.LoadStubs(opts.Guards); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInvalidFlag, err.Error(), nil)
		}
	}

	journal, err := opts.JournalOptions.open(ctx, false)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
	}
	defer journal.Close()

	var instances []store.InstanceSummary
	if opts.Instance != "" {
		inst, err := findInstance(ctx, journal, opts.Instance)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
		}
		instances = []store.InstanceSummary{inst}
	} else if instances, err = journal.ListInstances(ctx); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
	}

	report := ReplayReport{
		Instances:        make([]InstanceReplay, 0, len(instances)),
		Total:            len(instances),
		AllDeterministic: true,
	}

	r := &replayer{
		loaded:  loaded,
		stubs:   stubs,
		journal: journal,
		logger:  opts.logger(),
		built:   make(map[string]*compiler.BuildResult),
	}
	for _, inst := range instances {
		res, err := r.replay(ctx, inst)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeNondeterminism,
				fmt.Sprintf("failed to replay instance %s: %v", inst.ID, err), nil)
		}
		formatter.VerboseLog("Replayed %s: %d record(s), %d divergence(s)", inst.ID, res.Records, len(res.Divergences))
		report.Instances = append(report.Instances, res)
		if !res.Deterministic {
			report.AllDeterministic = false
		}
	}

	if formatter.JSON() {
		resp := CLIResponse{Status: "ok", Data: report}
		if !report.AllDeterministic {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeNondeterminism, Message: "replay diverged from the journal"}
		}
		if err := formatter.Respond(resp); err != nil {
			return err
		}
	} else {
		outputReplayText(formatter, report)
	}

	if !report.AllDeterministic {
		return NewExitError(ExitFailure, "replay diverged from the journal")
	}
	return nil
}

// replayer builds each machine once and replays instances against it.
type replayer struct {
	loaded  *compiler.LoadResult
	stubs   *harness.Stubs
	journal store.Journal
	logger  *slog.Logger
	built   map[string]*compiler.BuildResult
}

func (r *replayer) model(machine string) (*compiler.BuildResult, error) {
	if res, ok := r.built[machine]; ok {
		return res, nil
	}
	spec, ok := r.loaded.Find(machine)
	if !ok {
		return nil, fmt.Errorf("machine %q not declared (have %v)", machine, r.loaded.Names())
	}
	res := compiler.Build(spec)
	if !res.OK() {
		return nil, res.Err()
	}
	r.built[machine] = res
	return res, nil
}

func (r *replayer) replay(ctx context.Context, inst store.InstanceSummary) (InstanceReplay, error) {
	out := InstanceReplay{InstanceID: inst.ID, Machine: inst.Machine}

	built, err := r.model(inst.Machine)
	if err != nil {
		return out, err
	}
	out.FingerprintMatch = built.Fingerprint == inst.Fingerprint
	if !out.FingerprintMatch {
		r.logger.Debug("fingerprint changed since the journal was written",
			"instance", inst.ID, "journaled", inst.Fingerprint, "current", built.Fingerprint)
	}

	handlers, err := r.stubs.Bind(built.Model)
	if err != nil {
		return out, err
	}

	records, err := r.journal.ReadDispatches(ctx, inst.ID)
	if err != nil {
		return out, err
	}
	out.Records = len(records)

	res, err := engine.Replay(ctx, built.Model, handlers, records, engine.WithLogger(r.logger))
	if err != nil {
		return out, err
	}
	out.Deterministic = res.Deterministic()
	out.Divergences = res.Divergences
	return out, nil
}

func outputReplayText(formatter *OutputFormatter, report ReplayReport) {
	w := formatter.Writer

	if report.Total == 0 {
		fmt.Fprintln(w, "No instances journaled.")
		return
	}

	for _, inst := range report.Instances {
		mark := "✓"
		if !inst.Deterministic {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s (%s): %d record(s)", mark, inst.InstanceID, inst.Machine, inst.Records)
		if !inst.FingerprintMatch {
			fmt.Fprint(w, " [model changed since journaled]")
		}
		fmt.Fprintln(w)
		for _, d := range inst.Divergences {
			fmt.Fprintf(w, "    %s\n", d)
		}
	}

	fmt.Fprintln(w)
	if report.AllDeterministic {
		fmt.Fprintf(w, "✓ All %d instance(s) replayed deterministically\n", report.Total)
	} else {
		fmt.Fprintln(w, "✗ Replay diverged from the journal")
	}
}
