package ir

// Version constants for the IR model and the tool.
const (
	// IRVersion is bumped whenever rendering or fingerprinting changes.
	IRVersion = "1"

	// ToolVersion is the binderscan release.
	ToolVersion = "0.1.0"
)
