package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity. The version suffix leaves
// room for algorithm migration.
const (
	DomainMachine = "statewire/machine/v1"
	DomainPayload = "statewire/payload/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint computes a stable identity for a machine declaration. Two
// specs with the same name, dispatch mode and declarations in the same order
// produce the same fingerprint.
func Fingerprint(spec MachineSpec) (string, error) {
	obj := Object{
		"name":        String(spec.Name),
		"dispatch":    String(spec.Dispatch.String()),
		"states":      stringArray(spec.States),
		"signals":     stringArray(spec.Signals),
		"connections": connectionArray(spec.Connections),
		"callbacks":   callbackArray(spec.Callbacks),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("Fingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainMachine, canonical), nil
}

// PayloadHash computes a stable identity for a payload, used to compare
// journaled and replayed dispatches.
func PayloadHash(p Payload) (string, error) {
	if p == nil {
		p = Payload{}
	}
	canonical, err := MarshalCanonical(p)
	if err != nil {
		return "", fmt.Errorf("PayloadHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainPayload, canonical), nil
}

// MustFingerprint is like Fingerprint but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFingerprint(spec MachineSpec) string {
	fp, err := Fingerprint(spec)
	if err != nil {
		panic(err)
	}
	return fp
}

func stringArray(ss []string) Array {
	arr := make(Array, len(ss))
	for i, s := range ss {
		arr[i] = String(s)
	}
	return arr
}

func connectionArray(cs []Connection) Array {
	arr := make(Array, len(cs))
	for i, c := range cs {
		arr[i] = Object{
			"name":        String(c.Name),
			"from":        String(c.From),
			"to":          String(c.To),
			"signals":     stringArray(c.Signals),
			"guard":       String(c.GuardRef()),
			"main_thread": Bool(c.RunOnMainThread),
		}
	}
	return arr
}

func callbackArray(cbs []Callback) Array {
	arr := make(Array, len(cbs))
	for i, cb := range cbs {
		arr[i] = Object{
			"kind":        String(cb.Kind),
			"name":        String(cb.Name),
			"state":       String(cb.State),
			"main_thread": Bool(cb.RunOnMainThread),
		}
	}
	return arr
}
