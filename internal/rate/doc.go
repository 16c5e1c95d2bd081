// Package rate implements fixed-window Redis counters used to throttle
// login attempts per handle and per client IP.
//
// Counters are INCR with a TTL set on the first hit of each window, so a
// window starts at the first failure and expires on its own. The package
// carries no policy beyond the attempt budget; what counts as a failure
// is the engine's call.
package rate
