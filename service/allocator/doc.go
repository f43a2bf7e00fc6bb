// Package allocator implements the open-and-discover sequence: it snapshots
// the currently opened chains, requests a new chain from the factory
// application, polls until exactly one unseen chain id appears and resolves
// the application created on it.
package allocator
