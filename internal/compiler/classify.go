package compiler

import (
	"fmt"

	"github.com/roach88/statewire/internal/ir"
)

// Classify derives the category of a connection. It is total over valid
// connections: every connection maps to exactly one category.
//
//	from == *    → GLOBAL, else LOCAL
//	to == *      → SPY, else TRANSITION
//	signals == * → ANY, else SPECIFIC
//	signals == ! → AUTO (requires concrete from and to)
//
// The signal set must be non-empty, and a sentinel must be its only member.
func Classify(c ir.Connection) (ir.Category, error) {
	if err := checkSignalSet(c); err != nil {
		return 0, err
	}
	if c.IsAuto() {
		if c.IsWildcardFrom() || c.IsWildcardTo() {
			return 0, &InvalidAutoConnectionError{Connection: c.Name, From: c.From, To: c.To}
		}
		return ir.CategoryAuto, nil
	}

	global := c.IsWildcardFrom()
	spy := c.IsWildcardTo()
	anySignal := c.IsWildcardSignal()

	switch {
	case global && spy && anySignal:
		return ir.CategoryGlobalSpyAny, nil
	case global && spy:
		return ir.CategoryGlobalSpySpecific, nil
	case global && anySignal:
		return ir.CategoryGlobalTransitionAny, nil
	case global:
		return ir.CategoryGlobalTransitionSpecific, nil
	case spy && anySignal:
		return ir.CategoryLocalSpyAny, nil
	case spy:
		return ir.CategoryLocalSpySpecific, nil
	case anySignal:
		return ir.CategoryLocalTransitionAny, nil
	default:
		return ir.CategoryLocalTransitionSpecific, nil
	}
}

func checkSignalSet(c ir.Connection) error {
	if len(c.Signals) == 0 {
		return &InvalidSignalSetError{Connection: c.Name, Reason: "no signals"}
	}
	if len(c.Signals) == 1 {
		return nil
	}
	for _, sig := range c.Signals {
		if sig == ir.Wildcard || sig == ir.Auto {
			return &InvalidSignalSetError{
				Connection: c.Name,
				Reason:     fmt.Sprintf("%q cannot be combined with other signals", sig),
			}
		}
	}
	return nil
}
