// Package session owns the timing and failure contract of one data stream
// connection.
//
// Ownership boundary:
// - connection timeouts and frame limits
// - the shared read deadline and the watchdog that enforces it
// - protocol / transport / timeout error classification
//
// The read loop extends a *Deadline before every read; Watchdog waits on the
// same *Deadline and fires once it has passed without being extended.
package session
