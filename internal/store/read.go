package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/statewire/internal/ir"
)

// ErrInstanceNotFound is returned when an instance has no registration.
var ErrInstanceNotFound = errors.New("instance not found")

// ReadDispatches returns every record of an instance ordered by seq.
// Returns an empty slice (not nil) if the instance has no records.
func (s *Store) ReadDispatches(ctx context.Context, instanceID string) ([]ir.DispatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instance_id, seq, machine, kind, state, signal, payload, connection, next_state, spies, error
		FROM dispatches
		WHERE instance_id = ?
		ORDER BY seq ASC
	`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}
	defer rows.Close()

	records := []ir.DispatchRecord{}
	for rows.Next() {
		rec, err := scanDispatch(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatches: %w", err)
	}
	return records, nil
}

// LatestSeq returns the highest seq journaled for an instance, or 0.
func (s *Store) LatestSeq(ctx context.Context, instanceID string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM dispatches WHERE instance_id = ?`, instanceID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("latest seq: %w", err)
	}
	return seq.Int64, nil
}

// GetInstance returns a registered instance.
func (s *Store) GetInstance(ctx context.Context, id string) (Instance, error) {
	var inst Instance
	err := s.db.QueryRowContext(ctx, `
		SELECT id, machine, fingerprint, model_version, engine_version
		FROM instances WHERE id = ?
	`, id).Scan(&inst.ID, &inst.Machine, &inst.Fingerprint, &inst.ModelVersion, &inst.EngineVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return Instance{}, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	if err != nil {
		return Instance{}, fmt.Errorf("get instance: %w", err)
	}
	return inst, nil
}

// ListInstances returns every instance that has a registration or at least
// one record, ordered by id. Instances journaled without registration have
// empty identity fields apart from Machine.
func (s *Store) ListInstances(ctx context.Context) ([]InstanceSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ids.id,
		       COALESCE(i.machine, d.machine, ''),
		       COALESCE(i.fingerprint, ''),
		       COALESCE(i.model_version, ''),
		       COALESCE(i.engine_version, ''),
		       COALESCE(d.n, 0),
		       COALESCE(d.first_seq, 0),
		       COALESCE(d.last_seq, 0)
		FROM (
			SELECT id FROM instances
			UNION
			SELECT DISTINCT instance_id FROM dispatches
		) ids
		LEFT JOIN instances i ON i.id = ids.id
		LEFT JOIN (
			SELECT instance_id, MIN(machine) AS machine, COUNT(*) AS n,
			       MIN(seq) AS first_seq, MAX(seq) AS last_seq
			FROM dispatches
			GROUP BY instance_id
		) d ON d.instance_id = ids.id
		ORDER BY ids.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query instances: %w", err)
	}
	defer rows.Close()

	out := []InstanceSummary{}
	for rows.Next() {
		var sum InstanceSummary
		if err := rows.Scan(
			&sum.ID, &sum.Machine, &sum.Fingerprint, &sum.ModelVersion, &sum.EngineVersion,
			&sum.Dispatches, &sum.FirstSeq, &sum.LastSeq,
		); err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instances: %w", err)
	}
	return out, nil
}

func scanDispatch(rows *sql.Rows) (ir.DispatchRecord, error) {
	var (
		rec         ir.DispatchRecord
		kind        string
		payloadJSON string
		spiesJSON   string
	)
	if err := rows.Scan(
		&rec.InstanceID, &rec.Seq, &rec.Machine, &kind, &rec.State, &rec.Signal,
		&payloadJSON, &rec.Connection, &rec.NextState, &spiesJSON, &rec.Error,
	); err != nil {
		return ir.DispatchRecord{}, fmt.Errorf("scan dispatch: %w", err)
	}
	rec.Kind = ir.RecordKind(kind)

	var err error
	if rec.Payload, err = unmarshalPayload(payloadJSON); err != nil {
		return ir.DispatchRecord{}, err
	}
	if rec.Spies, err = unmarshalSpies(spiesJSON); err != nil {
		return ir.DispatchRecord{}, err
	}
	return rec, nil
}
