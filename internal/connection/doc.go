// Package connection implements the shared push-channel manager.
//
// Exactly one WebSocket transport exists per Manager; every consumer
// multiplexes through it. The connection state machine is
//
//	Unattempted → Probing → Connecting → Connected
//
// where Probing, Connecting, and Connected can all fall to Failed.
// Failed is sticky: it persists until an explicit Reconnect, never
// self-heals. A health probe gates the first handshake so an absent
// streaming tier is detected without paying for repeated handshakes,
// and a liveness watchdog distinguishes "connected but silent" from
// "never connected".
package connection
