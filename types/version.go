package types

// Version is the canonical project version.
// The CLI, the journal frame format, and the boundary outcome encoding
// share this version under the lockstep versioning policy.
const Version = "0.3.0"
