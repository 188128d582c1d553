package queue

import "context"

// Queue names for the lookup pipeline.
const (
	// LookupQueue is the single work queue for BIN lookup tasks.
	LookupQueue = "bin.lookups"
	// LookupDLQ receives lookup messages rejected as unprocessable.
	LookupDLQ = "dlq.bin.lookups"

	dlxExchangeName = "binlookup.dlx"
	dlxRoutingKey   = "bin.lookups"
)

// Publisher publishes lookup messages to the work queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg LookupMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg LookupMessage) error

// Consumer consumes lookup messages from the work queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}
