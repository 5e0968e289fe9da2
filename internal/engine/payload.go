package engine

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/roach88/statewire/internal/ir"
)

// DecodePayload copies p into the struct pointed to by out. Field names
// match `mapstructure` tags, falling back to case-insensitive names.
//
//	var req struct {
//		User     string `mapstructure:"user"`
//		Attempts int    `mapstructure:"attempts"`
//	}
//	err := DecodePayload(p, &req)
func DecodePayload(p ir.Payload, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: false,
		ErrorUnused:      false,
	})
	if err != nil {
		return fmt.Errorf("payload decoder: %w", err)
	}
	if err := dec.Decode(p.ToGo()); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
