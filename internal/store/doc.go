// Package store defines the persistence contracts of the processing ledger:
// the artifact status ledger with its compare-and-set transitions and retry
// bookkeeping, and the shared error vocabulary of every backend.
//
// Backends live under internal/platform (postgres and memory).
package store
