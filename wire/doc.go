// Package wire contains the PostgreSQL wire-protocol transport engine.
//
// The engine is split into focused subpackages:
//
//   - common: connection configuration and the logging facade
//   - buffer: pooled byte buffers and the chunked output stream
//   - frame: backend message framing and the incremental parser
//   - loop: the readiness-driven event loop over non-blocking sockets
//   - conn: the per-connection reactor tying queue, parser and stream together
//   - param: query parameter values and their binary wire encoding
//   - startup: the session handshake, password answer and terminate actions
//
// A connection is driven entirely from the event loop: user goroutines only
// ever enqueue actions, everything else (serialization, socket I/O, response
// routing) happens on the loop's dispatch goroutine for that connection.
package wire
