// Package dedup coalesces identical in-flight requests.
//
// A Cache keeps one entry per fingerprint (method, URL, body digest) while
// the underlying operation is running. Callers that arrive with the same
// fingerprint wait on that entry instead of starting a new operation, and
// all of them observe the same settlement: the same *Response or the same
// error.
//
// # Entry lifecycle
//
// Lookup and registration happen in one critical section, so two callers
// can never both miss and both start an operation. The entry is removed
// when the operation settles, before any waiter is released. An entry older
// than the TTL (30s by default) is evicted by the next Execute, PendingCount,
// IsPending or DebugInfo even if its operation is still running; the next
// caller with that fingerprint then starts a fresh operation. A late
// settlement never removes the entry that replaced it.
//
// Cancel and CancelAll only stop future coalescing. The operation keeps
// running and still settles for the callers already waiting on it.
//
// # Failures
//
// Non-2xx responses become *apierr.Error: 401 is always
// apierr.KindAuthRequired, anything else apierr.KindRequest with the
// server's "error" or "message" field. Transport failures are
// apierr.KindNetwork. Nothing is retried.
package dedup
