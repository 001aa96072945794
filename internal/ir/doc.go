// Package ir defines the ledger's record types and value model.
//
// This package contains type definitions, validation and identity helpers
// only. All other internal packages import ir; ir imports nothing internal.
//
// Key constraints:
//   - Timestamps are epoch milliseconds (int64) from a Clock, never time.Time
//   - Ids are UUIDv7 strings generated at write time
//   - Dynamic payloads use Value; floats are not representable
//   - All JSON tags use snake_case, matching the backup file format
package ir
