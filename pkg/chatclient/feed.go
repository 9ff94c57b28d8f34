package chatclient

import "context"

// Feed is one live event source. A feed may be connected again after Done
// is closed; each Connect starts a new session.
type Feed interface {
	Transport() Transport
	// Connect blocks until the feed is established, then delivers events on
	// a background goroutine until Disconnect or failure.
	Connect(ctx context.Context, deliver func(Event)) error
	Disconnect() error
	Join(ctx context.Context, chatID int64) error
	Leave(ctx context.Context, chatID int64) error
	Typing(ctx context.Context, chatID int64) error
	// Done is closed when the current session ends.
	Done() <-chan struct{}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
