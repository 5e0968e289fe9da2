package ir

// Category is the derived kind of a connection. It is computed once when a
// connection enters a model and cached there.
type Category int

const (
	CategoryAuto Category = iota + 1
	CategoryGlobalSpyAny
	CategoryGlobalSpySpecific
	CategoryGlobalTransitionAny
	CategoryGlobalTransitionSpecific
	CategoryLocalSpyAny
	CategoryLocalSpySpecific
	CategoryLocalTransitionAny
	CategoryLocalTransitionSpecific
)

// AllCategories lists every category in declaration order of the enum.
var AllCategories = []Category{
	CategoryAuto,
	CategoryGlobalSpyAny,
	CategoryGlobalSpySpecific,
	CategoryGlobalTransitionAny,
	CategoryGlobalTransitionSpecific,
	CategoryLocalSpyAny,
	CategoryLocalSpySpecific,
	CategoryLocalTransitionAny,
	CategoryLocalTransitionSpecific,
}

func (c Category) String() string {
	switch c {
	case CategoryAuto:
		return "AUTO"
	case CategoryGlobalSpyAny:
		return "GLOBAL_SPY_ANY"
	case CategoryGlobalSpySpecific:
		return "GLOBAL_SPY_SPECIFIC"
	case CategoryGlobalTransitionAny:
		return "GLOBAL_TRANSITION_ANY"
	case CategoryGlobalTransitionSpecific:
		return "GLOBAL_TRANSITION_SPECIFIC"
	case CategoryLocalSpyAny:
		return "LOCAL_SPY_ANY"
	case CategoryLocalSpySpecific:
		return "LOCAL_SPY_SPECIFIC"
	case CategoryLocalTransitionAny:
		return "LOCAL_TRANSITION_ANY"
	case CategoryLocalTransitionSpecific:
		return "LOCAL_TRANSITION_SPECIFIC"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the category name in JSON and YAML output.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// IsGlobal reports whether the category applies from every state.
func (c Category) IsGlobal() bool {
	switch c {
	case CategoryGlobalSpyAny, CategoryGlobalSpySpecific,
		CategoryGlobalTransitionAny, CategoryGlobalTransitionSpecific:
		return true
	}
	return false
}

// IsSpy reports whether the category observes without changing state.
func (c Category) IsSpy() bool {
	switch c {
	case CategoryGlobalSpyAny, CategoryGlobalSpySpecific,
		CategoryLocalSpyAny, CategoryLocalSpySpecific:
		return true
	}
	return false
}

// IsAnySignal reports whether the category matches every signal.
func (c Category) IsAnySignal() bool {
	switch c {
	case CategoryGlobalSpyAny, CategoryGlobalTransitionAny,
		CategoryLocalSpyAny, CategoryLocalTransitionAny:
		return true
	}
	return false
}
