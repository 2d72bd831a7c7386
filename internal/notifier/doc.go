// Package notifier delivers reminder payloads to the push endpoints of a
// user.
//
// # Endpoint lifecycle
//
// A user keeps at most one endpoint in steady state. Deliver collapses a
// multi-endpoint set to the most recently added token before sending, and
// drops the token when the gateway reports it as invalid. Transient and
// rate-limited failures keep the token for the next run.
//
// # Concurrency
//
// Deliveries for the same user are serialized; different users proceed in
// parallel.
package notifier
