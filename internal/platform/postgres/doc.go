// Package postgres implements the artifact ledger, the voice vector index
// and the dead-letter store on PostgreSQL through the pgx stdlib driver.
// Schema migrations are embedded and applied with goose.
package postgres
