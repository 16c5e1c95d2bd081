// Package httpapi exposes the identity engine over HTTP.
//
// It translates HTTP semantics into engine calls and engine errors into
// status codes; no authentication decision is made here. Mutating routes
// run under the admission pipeline, so saturation surfaces as 503 and
// slow backends as 504 instead of queueing.
package httpapi
