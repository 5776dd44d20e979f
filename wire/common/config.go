package common

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Connection configuration structs
// --------------------------------------------------------------------------

const (
	// DefaultReadBufferSize is the size of the scratch buffer used for a
	// single socket read inside the reactor.
	DefaultReadBufferSize = 1024

	// DefaultWriteChunkSize is the capacity of the pooled buffers the
	// output stream serializes requests into.
	DefaultWriteChunkSize = 4096
)

// SocketConfig holds the buffer sizing knobs of a single connection.
type SocketConfig struct {
	// ReadBufferSize is the size of the per-read scratch buffer (bytes).
	ReadBufferSize int
	// WriteChunkSize is the capacity of each pooled write buffer (bytes).
	WriteChunkSize int
}

// ConnectionConfig holds all properties of a single backend connection.
// It is read-only from the transport engine's perspective: the engine never
// mutates it after the connection is constructed.
type ConnectionConfig struct {
	Host     string
	Port     int
	User     string
	Database string
	Password string

	// ApplicationName is reported to the server during startup (optional).
	ApplicationName string

	Socket SocketConfig
}

// Endpoint returns the host:port pair of the backend.
func (c *ConnectionConfig) Endpoint() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ReadBufferSize returns the configured scratch buffer size or the default.
func (c *ConnectionConfig) ReadBufferSize() int {
	if c.Socket.ReadBufferSize > 0 {
		return c.Socket.ReadBufferSize
	}
	return DefaultReadBufferSize
}

// WriteChunkSize returns the configured write chunk size or the default.
func (c *ConnectionConfig) WriteChunkSize() int {
	if c.Socket.WriteChunkSize > 0 {
		return c.Socket.WriteChunkSize
	}
	return DefaultWriteChunkSize
}

// String returns a formatted string representation of the configuration.
// The password is redacted.
func (c *ConnectionConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Backend")
	addField("Endpoint", c.Endpoint())
	addField("User", c.User)
	addField("Database", c.Database)
	if c.Password != "" {
		addField("Password", "********")
	}
	if c.ApplicationName != "" {
		addField("Application Name", c.ApplicationName)
	}

	addSection("Socket")
	addField("Read Buffer", fmt.Sprintf("%d bytes", c.ReadBufferSize()))
	addField("Write Chunk", fmt.Sprintf("%d bytes", c.WriteChunkSize()))

	return sb.String()
}
