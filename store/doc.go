// Package store defines the credential persistence abstraction: account and
// session records, the operations the engine composes, and the sentinel
// errors implementations must surface.
//
// # Guarantees implementations must provide
//
//   - Account handle uniqueness enforced at the storage layer, not by a
//     check-then-insert at the application layer.
//   - ConsumeAndChain is atomic and linearizable per session lineage: two
//     concurrent rotations of the same session yield exactly one success.
//   - NotFound, consumed, and revoked are surfaced distinctly so the engine
//     can tell compromise signals from ordinary misses.
//
// Implementations live in the redisstore and postgres subpackages.
package store
