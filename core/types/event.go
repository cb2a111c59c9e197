package types

// Event represents a typed event emitted during state transitions. Events are
// consumed by off-chain indexers and observability tooling only; no core
// component reads them back.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
