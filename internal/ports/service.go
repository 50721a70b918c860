package ports

// Service defines a long-running component of the daemon
type Service interface {
	// Start starts the service without blocking
	Start() error

	// Stop stops the service and waits for in-flight work
	Stop() error
}
