// Package chat provides the relay core shared by the server and the client:
// connection buffers with framing, the peer table, delivery queues and the
// error taxonomy.
package chat

// Conn abstracts one non-blocking stream socket.
// This interface isolates descriptor handling from relay logic.
type Conn interface {
	// Read performs a single non-blocking read.
	// Returns io.EOF when the remote side closed the stream.
	Read(p []byte) (int, error)

	// Write performs a single non-blocking write. It may accept fewer
	// bytes than offered without returning an error.
	Write(p []byte) (int, error)

	// Close releases the descriptor.
	Close() error

	// Fd returns the descriptor to register with the multiplexer.
	Fd() int

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}
