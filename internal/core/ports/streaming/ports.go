// Package streaming defines the transport capability the connection
// manager depends on, so a test double or a non-browser implementation
// can be substituted without touching lifecycle logic.
package streaming

import "context"

// Connection is one open transport instance delivering raw wire frames.
type Connection interface {
	// Frames returns the raw frame channel. The channel is closed when
	// the server ends the stream.
	Frames() <-chan string

	// Errors returns the terminal error channel. At most one error is
	// delivered per connection.
	Errors() <-chan error

	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// Transport opens stream connections. Open blocks until the stream is
// established or fails with a classifiable error; a successful return is
// the transport "open" signal.
type Transport interface {
	Open(ctx context.Context, url string) (Connection, error)
}
