package ir

// Version constants for the model format and engine.
const (
	// ModelVersion is the compiled model format version.
	ModelVersion = "1"

	// EngineVersion is the statewire engine version.
	EngineVersion = "0.1.0"
)
