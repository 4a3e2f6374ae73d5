// Package storage provides the persistence layer behind engagement decisions.
//
// It stores:
//   - Per-profile decision flags (a small string key/value map per visitor profile)
//   - An append-only audit trail of decision writes
//
// Drivers: "memory", "file" (JSON Lines journal + snapshot) and "sqlite".
package storage
