// Package redisstore implements the credential store on Redis.
//
// Records are JSON blobs keyed by generated identifiers, with secondary
// indexes for the handle lookup, per-account session sets, and per-lineage
// session sets. Every multi-step mutation — account creation with handle
// reservation, consume-and-chain rotation, session revocation — executes as
// a server-side Lua script, so each is a single atomic Redis operation and
// concurrent rotations of the same session have exactly one winner.
//
// Session keys carry a TTL of the session expiry plus a retention window;
// consumed rows outlive their expiry so a replayed refresh token is still
// classified as reuse instead of an ordinary miss.
package redisstore
