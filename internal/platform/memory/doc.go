// Package memory provides in-process implementations of the artifact ledger,
// the voice vector index and the dead-letter store. They back the memory
// database driver and the dispatcher tests.
package memory
