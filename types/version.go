package types

// Version is the canonical project version, shared by the CLI, the capture
// format writer, and persisted metrics records.
const Version = "0.3.0"
