// Package postgres implements the credential store on PostgreSQL via pgx.
//
// Handle uniqueness is enforced by a unique index on lower(handle), and the
// consume-and-chain rotation runs in a single transaction: a conditional
// UPDATE that takes the session row lock followed by the successor INSERT.
// Concurrent rotations of the same session therefore serialize on the row
// and exactly one wins. Lineage revocation is a single UPDATE over the
// lineage_id column.
//
// Schema migrations are embedded goose SQL files applied by [Migrate].
package postgres
