// Package password implements one-way password hashing and verification
// with Argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<digest>
//
// The embedded parameters make stored hashes self-describing, so cost
// parameters can be raised without invalidating existing records. When a
// stored hash was produced with weaker parameters, [Hasher.NeedsRehash]
// returns true and the caller re-hashes on the next successful login.
//
// Verification compares digests with a constant-time primitive; running
// time does not depend on the position of the first differing byte.
package password
