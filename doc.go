// Package identity is a session and credential engine built around
// refresh-token rotation with reuse detection.
//
// An [Engine] issues short-lived signed access tokens and long-lived
// opaque refresh tokens. Refresh tokens rotate on every use: the old
// session is atomically consumed and chained to its successor, so a
// replayed refresh token identifies a stolen credential and revokes the
// whole rotation lineage. Secrets at rest are sealed by an AEAD vault
// and passwords are stored as Argon2id hashes.
//
// Engines are constructed once through [Builder] and are safe for
// concurrent use. Storage is pluggable through [store.Store], with Redis
// and PostgreSQL backends provided.
package identity
