package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/statewire/internal/compiler"
	"github.com/roach88/statewire/internal/ir"
)

// Divergence is one difference between a journaled cycle and its replay.
type Divergence struct {
	Seq   int64  `json:"seq"`
	Field string `json:"field"`
	Want  string `json:"want"`
	Got   string `json:"got"`
}

func (d Divergence) String() string {
	return fmt.Sprintf("seq %d: %s: want %q, got %q", d.Seq, d.Field, d.Want, d.Got)
}

// ReplayResult reports how a replay compared with its journal.
type ReplayResult struct {
	InstanceID  string              `json:"instance_id"`
	Replayed    []ir.DispatchRecord `json:"replayed"`
	Divergences []Divergence        `json:"divergences"`
}

// Deterministic reports whether the replay matched the journal exactly.
func (r *ReplayResult) Deterministic() bool { return len(r.Divergences) == 0 }

// memoryRecorder collects records in memory.
type memoryRecorder struct {
	mu      sync.Mutex
	records []ir.DispatchRecord
}

func (r *memoryRecorder) Record(_ context.Context, rec ir.DispatchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

// Replay re-drives a fresh instance of model with the init and signal
// records of a journal and compares every produced cycle against the
// journal. Auto records are regenerated by the machine, not fed in.
//
// Records must belong to one instance and be ordered by seq.
func Replay(ctx context.Context, model *compiler.Model, h *Handlers, records []ir.DispatchRecord, opts ...Option) (*ReplayResult, error) {
	if len(records) == 0 {
		return &ReplayResult{Divergences: []Divergence{}}, nil
	}

	instanceID := records[0].InstanceID

	var given machineConfig
	for _, opt := range opts {
		opt(&given)
	}
	if given.loop == nil && model.HasMainThreadWork() {
		loop, stop := StartMainLoop(ctx, given.logger)
		defer stop()
		opts = append(opts, WithMainLoop(loop))
	}

	rec := &memoryRecorder{}
	opts = append(opts,
		WithRecorder(rec),
		WithExecutor(CallingThread{}),
		WithInstanceID(instanceID),
		WithClock(NewClockAt(records[0].Seq-1)),
	)
	m, err := New(model, h, opts...)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", instanceID, err)
	}

	for _, r := range records {
		if r.InstanceID != instanceID {
			return nil, fmt.Errorf("replay %s: record seq %d belongs to instance %s", instanceID, r.Seq, r.InstanceID)
		}
		switch r.Kind {
		case ir.RecordInit:
			m.Init(ctx, r.State)
		case ir.RecordSignal:
			m.Send(ctx, r.Signal, r.Payload)
		}
	}

	res := &ReplayResult{
		InstanceID:  instanceID,
		Replayed:    rec.records,
		Divergences: compareRecords(records, rec.records),
	}
	return res, nil
}

func compareRecords(want, got []ir.DispatchRecord) []Divergence {
	divs := []Divergence{}
	n := max(len(want), len(got))
	for i := range n {
		switch {
		case i >= len(got):
			divs = append(divs, Divergence{Seq: want[i].Seq, Field: "record", Want: string(want[i].Kind), Got: "missing"})
			continue
		case i >= len(want):
			divs = append(divs, Divergence{Seq: got[i].Seq, Field: "record", Want: "missing", Got: string(got[i].Kind)})
			continue
		}

		w, g := want[i], got[i]
		check := func(field, a, b string) {
			if a != b {
				divs = append(divs, Divergence{Seq: w.Seq, Field: field, Want: a, Got: b})
			}
		}
		check("kind", string(w.Kind), string(g.Kind))
		check("state", w.State, g.State)
		check("signal", w.Signal, g.Signal)
		check("connection", w.Connection, g.Connection)
		check("next_state", w.NextState, g.NextState)
		check("failed", fmt.Sprint(w.Error != ""), fmt.Sprint(g.Error != ""))
	}
	return divs
}
