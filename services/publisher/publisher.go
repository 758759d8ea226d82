package publisher

// Publisher fans new-listing events out to downstream consumers
type Publisher interface {
	// Publish publishes a listing event keyed by its source
	Publish(source string, message []byte) error

	// TrimStreams trims all streams to the configured maximum length
	TrimStreams() error

	// Close closes the publisher connection
	Close() error
}
