// Package admission provides load shedding, concurrency limiting, and
// per-request deadlines for the identity engine's public operations.
//
// The stages compose from the outside in: a request is first shed if all
// concurrency slots are busy, otherwise it holds a slot and runs under a
// context deadline. Shedding is non-blocking, so callers get an immediate
// ErrCapacity instead of queueing behind saturated work.
package admission
