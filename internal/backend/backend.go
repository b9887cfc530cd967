package backend

// StreamChunk represents a single chunk in a streaming response.
type StreamChunk struct {
	// Error if something went wrong. Only set on the final chunk.
	Error error

	// Data is the chunk content, exactly as the process emitted it.
	Data []byte

	// ExitCode is the process exit code. Only meaningful when Done is set; -1 when
	// the process was killed or never produced a status.
	ExitCode int

	// Done indicates if this is the final chunk.
	Done bool
}
