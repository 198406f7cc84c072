// Package dispatch relays accepted hook events to their destinations.
//
// Every destination of an event is delivered concurrently and the caller
// waits for all of them. For each destination the dispatcher:
//   - keeps only the allow-listed inbound headers
//   - rewords the body when the destination has a template
//   - signs the final body when the destination has a secret
//   - POSTs the result without following redirects
//
// Failures are isolated per destination. They are logged and reported to
// Recorders but never returned, so one broken destination cannot affect
// its siblings or the response sent to the original caller.
//
// There are no retries and nothing is queued.
package dispatch
