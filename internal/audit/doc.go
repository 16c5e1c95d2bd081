// Package audit defines the audit event model and an asynchronous
// dispatcher that decouples the identity engine from sink latency.
package audit
