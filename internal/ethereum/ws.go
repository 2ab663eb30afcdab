package ethereum

import "context"

// WSClient defines the Ethereum WebSocket subscription interface.
type WSClient interface {
	// SubscribeLogs subscribes to contract logs matching the filter.
	SubscribeLogs(ctx context.Context, filter LogFilter) (*LogSubscription, error)

	// Close closes the WebSocket connection.
	Close() error
}

// LogSubscription is a live eth_subscribe("logs") stream.
// Logs survive reconnects: the client resubscribes under a new server id.
type LogSubscription struct {
	key    uint64
	filter LogFilter
	ch     chan Log
	done   chan struct{}
	client *WSClientImpl

	// resubscribed receives a value after each successful resubscribe.
	resubscribed chan struct{}
}

// Logs returns the log stream. It is closed when the client closes.
func (s *LogSubscription) Logs() <-chan Log {
	return s.ch
}

// Resubscribed signals that the stream was re-established after a reconnect.
// Logs emitted while the connection was down are not replayed by the node.
func (s *LogSubscription) Resubscribed() <-chan struct{} {
	return s.resubscribed
}

// Done is closed once the subscription is cancelled.
func (s *LogSubscription) Done() <-chan struct{} {
	return s.done
}

// Unsubscribe cancels the subscription. Safe to call more than once.
func (s *LogSubscription) Unsubscribe(ctx context.Context) error {
	return s.client.unsubscribe(ctx, s)
}
