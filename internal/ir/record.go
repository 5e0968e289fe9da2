package ir

// RecordKind distinguishes what started a dispatch cycle.
type RecordKind string

const (
	RecordInit   RecordKind = "init"
	RecordSignal RecordKind = "signal"
	RecordAuto   RecordKind = "auto"
)

// DispatchRecord is one dispatch cycle of one machine instance, as written to
// a journal. Seq is the logical clock and orders records within an instance.
type DispatchRecord struct {
	InstanceID string     `json:"instance_id"`
	Machine    string     `json:"machine"`
	Seq        int64      `json:"seq"`
	Kind       RecordKind `json:"kind"`
	State      string     `json:"state"`             // state when the cycle started
	Signal     string     `json:"signal,omitempty"`  // empty for init and auto
	Payload    Payload    `json:"payload,omitempty"` // never contains floats
	Connection string     `json:"connection,omitempty"`
	NextState  string     `json:"next_state"`
	Spies      []string   `json:"spies,omitempty"` // spy connections that fired
	Error      string     `json:"error,omitempty"`
}

// Transitioned reports whether the cycle changed state.
func (r DispatchRecord) Transitioned() bool {
	return r.NextState != r.State
}
