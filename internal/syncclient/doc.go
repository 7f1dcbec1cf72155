// Package syncclient maintains the realtime websocket link to the
// HavenSync backend.
//
// The client tracks three states: Disconnected, Connecting, Connected.
// An unexpected drop triggers automatic reconnection with exponential
// backoff, capped at five attempts; after that a one-shot
// persistent-disconnect notification fires and the client stays down
// until Connect is called again, which also resets the attempt counter.
// A deliberate Close sends a normal-closure frame and never reconnects.
//
// Commands issued while disconnected are held in a bounded FIFO queue.
// On overflow the oldest command is dropped with a warning; a stale
// toggle replayed minutes later is worse than a lost one. On
// reconnection the queue is flushed in order, then every active device
// subscription is re-sent.
//
// Inbound messages are dispatched by type into the state cache from a
// single goroutine, so cache updates never race each other.
package syncclient
