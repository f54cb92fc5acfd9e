// Package types defines the shared Go types used by the scoring engine, the
// CLI and the HTTP API. They are the canonical in-memory representations of a
// scoring policy and of the events observed for an asset.
//
// Policy files may be written in JSON or YAML; every type here decodes from
// both. Params keeps its keys in document order because the decay formula
// binds parameters positionally.
package types
