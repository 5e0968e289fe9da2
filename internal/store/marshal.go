package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/statewire/internal/ir"
)

// marshalPayload converts a payload to canonical JSON TEXT for storage.
func marshalPayload(p ir.Payload) (string, error) {
	if p == nil {
		p = ir.Payload{}
	}
	data, err := ir.MarshalCanonical(p)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

// unmarshalPayload parses stored JSON TEXT. Integers are kept exact; floats
// are rejected.
func unmarshalPayload(data string) (ir.Payload, error) {
	if data == "" || data == "{}" {
		return ir.Payload{}, nil
	}
	p, err := ir.UnmarshalPayload([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return p, nil
}

func marshalSpies(spies []string) (string, error) {
	if len(spies) == 0 {
		return "[]", nil
	}
	arr := make(ir.Array, len(spies))
	for i, s := range spies {
		arr[i] = ir.String(s)
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal spies: %w", err)
	}
	return string(data), nil
}

func unmarshalSpies(data string) ([]string, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var spies []string
	if err := json.Unmarshal([]byte(data), &spies); err != nil {
		return nil, fmt.Errorf("unmarshal spies: %w", err)
	}
	return spies, nil
}

// marshalRecord encodes a whole record for the Redis journal.
func marshalRecord(rec ir.DispatchRecord) ([]byte, error) {
	if rec.Payload == nil {
		rec.Payload = ir.Payload{}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return data, nil
}

func unmarshalRecord(data []byte) (ir.DispatchRecord, error) {
	var rec ir.DispatchRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return ir.DispatchRecord{}, fmt.Errorf("unmarshal record: %w", err)
	}
	if rec.Payload == nil {
		rec.Payload = ir.Payload{}
	}
	return rec, nil
}
