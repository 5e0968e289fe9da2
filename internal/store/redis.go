package store

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	backend "github.com/redis/go-redis/v9"

	"github.com/roach88/statewire/internal/ir"
)

// RedisJournal is a Journal backed by Redis.
//
// Keys, under a configurable prefix:
//
//	<prefix>instances          set of instance ids
//	<prefix>instance:<id>      hash of instance identity fields
//	<prefix>dispatches:<id>    hash of seq -> record JSON
//
// Writes use HSETNX, so the first write of a seq wins.
type RedisJournal struct {
	client *backend.Client
	prefix string
	owned  bool
}

var _ Journal = (*RedisJournal)(nil)

// RedisOption configures a RedisJournal.
type RedisOption func(*RedisJournal)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(j *RedisJournal) {
		j.prefix = prefix
	}
}

// NewRedisJournal connects to the Redis server at address. Close releases
// the connection.
func NewRedisJournal(address, password string, db int, opts ...RedisOption) *RedisJournal {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	j := NewRedisJournalFromClient(rdb, opts...)
	j.owned = true
	return j
}

// NewRedisJournalFromClient wraps an existing client. Close leaves the
// client open.
func NewRedisJournalFromClient(client *backend.Client, opts ...RedisOption) *RedisJournal {
	j := &RedisJournal{
		client: client,
		prefix: "statewire:",
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *RedisJournal) indexKey() string            { return j.prefix + "instances" }
func (j *RedisJournal) instanceKey(id string) string { return j.prefix + "instance:" + id }
func (j *RedisJournal) dispatchKey(id string) string { return j.prefix + "dispatches:" + id }

// Ping checks connectivity.
func (j *RedisJournal) Ping(ctx context.Context) error {
	if err := j.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// RegisterInstance records the identity of an instance. Existing fields are
// kept.
func (j *RedisJournal) RegisterInstance(ctx context.Context, inst Instance) error {
	key := j.instanceKey(inst.ID)
	pipe := j.client.Pipeline()
	pipe.HSetNX(ctx, key, "machine", inst.Machine)
	pipe.HSetNX(ctx, key, "fingerprint", inst.Fingerprint)
	pipe.HSetNX(ctx, key, "model_version", inst.ModelVersion)
	pipe.HSetNX(ctx, key, "engine_version", inst.EngineVersion)
	pipe.SAdd(ctx, j.indexKey(), inst.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("register instance: %w", err)
	}
	return nil
}

// Record implements engine.Recorder.
func (j *RedisJournal) Record(ctx context.Context, rec ir.DispatchRecord) error {
	data, err := marshalRecord(rec)
	if err != nil {
		return fmt.Errorf("write dispatch: %w", err)
	}

	pipe := j.client.Pipeline()
	pipe.HSetNX(ctx, j.dispatchKey(rec.InstanceID), strconv.FormatInt(rec.Seq, 10), data)
	pipe.SAdd(ctx, j.indexKey(), rec.InstanceID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write dispatch: %w", err)
	}
	return nil
}

// ReadDispatches returns every record of an instance ordered by seq.
func (j *RedisJournal) ReadDispatches(ctx context.Context, instanceID string) ([]ir.DispatchRecord, error) {
	entries, err := j.client.HGetAll(ctx, j.dispatchKey(instanceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read dispatches: %w", err)
	}

	records := make([]ir.DispatchRecord, 0, len(entries))
	for _, data := range entries {
		rec, err := unmarshalRecord([]byte(data))
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	slices.SortFunc(records, func(a, b ir.DispatchRecord) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
	return records, nil
}

// GetInstance returns a registered instance.
func (j *RedisJournal) GetInstance(ctx context.Context, id string) (Instance, error) {
	fields, err := j.client.HGetAll(ctx, j.instanceKey(id)).Result()
	if err != nil {
		return Instance{}, fmt.Errorf("get instance: %w", err)
	}
	if len(fields) == 0 {
		return Instance{}, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	return Instance{
		ID:            id,
		Machine:       fields["machine"],
		Fingerprint:   fields["fingerprint"],
		ModelVersion:  fields["model_version"],
		EngineVersion: fields["engine_version"],
	}, nil
}

// LatestSeq returns the highest seq journaled for an instance, or 0.
func (j *RedisJournal) LatestSeq(ctx context.Context, instanceID string) (int64, error) {
	seqs, err := j.client.HKeys(ctx, j.dispatchKey(instanceID)).Result()
	if err != nil {
		return 0, fmt.Errorf("latest seq: %w", err)
	}
	var latest int64
	for _, field := range seqs {
		seq, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("latest seq: bad field %q: %w", field, err)
		}
		latest = max(latest, seq)
	}
	return latest, nil
}

// ListInstances returns every known instance ordered by id.
func (j *RedisJournal) ListInstances(ctx context.Context) ([]InstanceSummary, error) {
	ids, err := j.client.SMembers(ctx, j.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	slices.Sort(ids)

	out := make([]InstanceSummary, 0, len(ids))
	for _, id := range ids {
		fields, err := j.client.HGetAll(ctx, j.instanceKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("get instance %s: %w", id, err)
		}
		records, err := j.ReadDispatches(ctx, id)
		if err != nil {
			return nil, err
		}

		sum := InstanceSummary{
			Instance: Instance{
				ID:            id,
				Machine:       fields["machine"],
				Fingerprint:   fields["fingerprint"],
				ModelVersion:  fields["model_version"],
				EngineVersion: fields["engine_version"],
			},
			Dispatches: len(records),
		}
		if len(records) > 0 {
			sum.FirstSeq = records[0].Seq
			sum.LastSeq = records[len(records)-1].Seq
			if sum.Machine == "" {
				sum.Machine = records[0].Machine
			}
		}
		out = append(out, sum)
	}
	return out, nil
}

// Close closes the client if the journal created it.
func (j *RedisJournal) Close() error {
	if !j.owned {
		return nil
	}
	return j.client.Close()
}
