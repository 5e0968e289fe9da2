package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/statewire/internal/compiler"
	"github.com/roach88/statewire/internal/engine"
	"github.com/roach88/statewire/internal/harness"
	"github.com/roach88/statewire/internal/ir"
	"github.com/roach88/statewire/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	JournalOptions

	Machine      string
	Start        string
	Sends        []string
	Guards       string
	Instance     string
	MaxAutoSteps int
	MetricsAddr  string

	// IDGenerator overrides the instance id source (for testing).
	IDGenerator engine.InstanceIDGenerator

	// ready, when set, receives the metrics listener address once serving.
	ready func(addr string)
}

// RunResult is the outcome of one run.
type RunResult struct {
	InstanceID string              `json:"instance_id"`
	Machine    string              `json:"machine"`
	FinalState string              `json:"final_state"`
	Records    []ir.DispatchRecord `json:"records"`
	Errors     []string            `json:"errors,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <specs-dir>",
		Short: "Drive a machine with a sequence of signals",
		Long: `Create one instance of a machine, initialize it and send signals to it.

Signals are given in order with --send. A payload follows the signal name
after a colon as comma-separated key=value pairs; integers and booleans
are typed, everything else is a string.

Guards and callbacks are scripted with --guards, a YAML file holding the
guards, callbacks and default_guard keys of a test scenario. Unscripted
guards pass.

Every dispatch cycle is journaled: to --db or --redis when given, in
memory otherwise. With --metrics-addr the run exposes Prometheus metrics
and keeps serving until interrupted.

Example:
  statewire run ./specs -m Door --start Closed --send Push --send Lock:key=brass
  statewire run ./specs -m Door --start Closed --send Push --db door.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMachine(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Machine, "machine", "m", "", "machine to run (optional when the directory declares one)")
	cmd.Flags().StringVar(&opts.Start, "start", "", "initial state (required)")
	cmd.Flags().StringArrayVar(&opts.Sends, "send", nil, "signal to send, SIG or SIG:key=value,... (repeatable)")
	cmd.Flags().StringVar(&opts.Guards, "guards", "", "YAML file of guard and callback stubs")
	cmd.Flags().StringVar(&opts.Instance, "instance", "", "instance id (default: generated UUIDv7)")
	cmd.Flags().IntVar(&opts.MaxAutoSteps, "max-auto-steps", engine.DefaultMaxAutoSteps, "bound on chained auto transitions per entry")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address until interrupted")
	opts.JournalOptions.addFlags(cmd)
	_ = cmd.MarkFlagRequired("start")

	return cmd
}

func runMachine(opts *RunOptions, specsDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sends := make([]parsedSend, 0, len(opts.Sends))
	for _, raw := range opts.Sends {
		s, err := parseSend(raw)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInvalidFlag, err.Error(), nil)
		}
		sends = append(sends, s)
	}

	res, err := buildMachine(formatter, specsDir, opts.Machine)
	if err != nil {
		return err
	}
	model := res.Model

	var stubs *harness.Stubs
	if opts.Guards != "" {
		if stubs, err = harness.LoadStubs(opts.Guards); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInvalidFlag, err.Error(), nil)
		}
	}
	handlers, err := stubs.Bind(model)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidFlag, err.Error(), nil)
	}

	journal, err := opts.JournalOptions.open(ctx, true)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
	}
	defer journal.Close()

	errs := &runErrors{}
	engineOpts := []engine.Option{
		engine.WithRecorder(journal),
		engine.WithLogger(logger),
		engine.WithListener(engine.Listeners{
			engine.SlogListener{Logger: logger, Machine: model.Name()},
			errs,
		}),
		engine.WithMaxAutoSteps(opts.MaxAutoSteps),
	}
	if opts.Instance != "" {
		engineOpts = append(engineOpts, engine.WithInstanceID(opts.Instance))
	}
	if opts.IDGenerator != nil {
		engineOpts = append(engineOpts, engine.WithIDGenerator(opts.IDGenerator))
	}

	var reg *prometheus.Registry
	if opts.MetricsAddr != "" {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		engineOpts = append(engineOpts, engine.WithMetrics(engine.NewMetrics(reg)))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if model.DispatchMode().Affinity == ir.MainThread || model.HasMainThreadWork() {
		loop, stop := engine.StartMainLoop(runCtx, logger)
		defer stop()
		engineOpts = append(engineOpts, engine.WithMainLoop(loop))
	}
	if model.DispatchMode().Affinity == ir.SharedQueue {
		queues := engine.NewSharedQueues(logger)
		defer queues.Close()
		engineOpts = append(engineOpts, engine.WithSharedQueues(queues))
	}

	m, err := engine.New(model, handlers, engineOpts...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidFlag, err.Error(), nil)
	}

	// Journal writes keep the first record of a seq, so a reused id would
	// silently keep the old run.
	if last, err := journal.LatestSeq(ctx, m.InstanceID()); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
	} else if last > 0 {
		return formatter.Fail(ExitCommandError, ErrCodeJournal,
			fmt.Sprintf("instance %s is already journaled (%d record(s)); choose another --instance", m.InstanceID(), last), nil)
	}

	inst := store.NewInstance(m.InstanceID(), model.Name(), res.Fingerprint)
	if err := journal.RegisterInstance(ctx, inst); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
	}
	formatter.VerboseLog("Instance %s of %s (%s)", m.InstanceID(), model.Name(), model.DispatchMode())

	m.Init(ctx, opts.Start)
	if err := m.Drain(ctx); err != nil {
		return formatter.Fail(ExitCommandError, compiler.ErrCodeGeneric, err.Error(), nil)
	}
	for _, s := range sends {
		m.Send(ctx, s.signal, s.payload)
		if err := m.Drain(ctx); err != nil {
			return formatter.Fail(ExitCommandError, compiler.ErrCodeGeneric, err.Error(), nil)
		}
	}

	records, err := journal.ReadDispatches(ctx, m.InstanceID())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
	}

	result := RunResult{
		InstanceID: m.InstanceID(),
		Machine:    model.Name(),
		FinalState: m.State(),
		Records:    records,
		Errors:     errs.list(),
	}
	if err := outputRunResult(formatter, result); err != nil {
		return err
	}

	if reg != nil {
		if err := serveMetrics(ctx, opts, reg); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInvalidFlag, err.Error(), nil)
		}
	}

	if len(result.Errors) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("run finished with %d runtime error(s)", len(result.Errors)))
	}
	return nil
}

// runErrors collects runtime errors from the dispatch goroutine.
type runErrors struct {
	engine.NullListener
	mu   sync.Mutex
	errs []string
}

func (r *runErrors) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err.Error())
}

func (r *runErrors) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errs...)
}

type parsedSend struct {
	signal  string
	payload ir.Payload
}

// parseSend parses SIG or SIG:key=value,key=value.
func parseSend(raw string) (parsedSend, error) {
	signal, rest, hasPayload := strings.Cut(raw, ":")
	signal = strings.TrimSpace(signal)
	if signal == "" {
		return parsedSend{}, fmt.Errorf("--send %q: signal name is empty", raw)
	}

	values := map[string]any{}
	if hasPayload && rest != "" {
		for _, pair := range strings.Split(rest, ",") {
			k, v, ok := strings.Cut(pair, "=")
			k = strings.TrimSpace(k)
			if !ok || k == "" {
				return parsedSend{}, fmt.Errorf("--send %q: want key=value, got %q", raw, pair)
			}
			values[k] = parseScalar(strings.TrimSpace(v))
		}
	}

	payload, err := ir.PayloadFromGo(values)
	if err != nil {
		return parsedSend{}, fmt.Errorf("--send %q: %w", raw, err)
	}
	return parsedSend{signal: signal, payload: payload}, nil
}

func parseScalar(v string) any {
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	if v == "true" || v == "false" {
		return v == "true"
	}
	return v
}

func outputRunResult(formatter *OutputFormatter, result RunResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Instance %s of %s\n\n", result.InstanceID, result.Machine)
	for _, rec := range result.Records {
		fmt.Fprintf(w, "  %s\n", formatRecord(rec))
	}
	fmt.Fprintf(w, "\nFinal state: %s\n", result.FinalState)
	if len(result.Errors) > 0 {
		fmt.Fprintf(w, "\n✗ %d runtime error(s):\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	return nil
}

// serveMetrics exposes reg on opts.MetricsAddr until ctx is cancelled or
// the process is interrupted.
func serveMetrics(ctx context.Context, opts *RunOptions, reg *prometheus.Registry) error {
	ln, err := net.Listen("tcp", opts.MetricsAddr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := opts.logger()
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()
	logger.Info("serving metrics", "addr", ln.Addr().String())
	if opts.ready != nil {
		opts.ready(ln.Addr().String())
	}

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-sigCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("stopping metrics server")
	return srv.Shutdown(shutdownCtx)
}
