package store

import (
	"context"
	"fmt"

	"github.com/roach88/statewire/internal/ir"
)

// RegisterInstance records the machine and model identity of an instance.
// Uses ON CONFLICT(id) DO NOTHING: the first registration wins.
func (s *Store) RegisterInstance(ctx context.Context, inst Instance) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO instances (id, machine, fingerprint, model_version, engine_version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		inst.ID,
		inst.Machine,
		inst.Fingerprint,
		inst.ModelVersion,
		inst.EngineVersion,
	)
	if err != nil {
		return fmt.Errorf("register instance: %w", err)
	}
	return nil
}

// WriteDispatch inserts one dispatch record. Uses
// ON CONFLICT(instance_id, seq) DO NOTHING for idempotency: rewriting a seq
// is silently ignored.
func (s *Store) WriteDispatch(ctx context.Context, rec ir.DispatchRecord) error {
	payloadJSON, err := marshalPayload(rec.Payload)
	if err != nil {
		return fmt.Errorf("write dispatch: %w", err)
	}
	spiesJSON, err := marshalSpies(rec.Spies)
	if err != nil {
		return fmt.Errorf("write dispatch: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dispatches
		(instance_id, seq, machine, kind, state, signal, payload, connection, next_state, spies, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(instance_id, seq) DO NOTHING
	`,
		rec.InstanceID,
		rec.Seq,
		rec.Machine,
		string(rec.Kind),
		rec.State,
		rec.Signal,
		payloadJSON,
		rec.Connection,
		rec.NextState,
		spiesJSON,
		rec.Error,
	)
	if err != nil {
		return fmt.Errorf("write dispatch: %w", err)
	}
	return nil
}

// Record implements engine.Recorder.
func (s *Store) Record(ctx context.Context, rec ir.DispatchRecord) error {
	return s.WriteDispatch(ctx, rec)
}
