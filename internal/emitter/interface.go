package emitter

import "context"

// IEmitter publishes transfer lifecycle events. Publishing is best effort;
// callers log failures and carry on.
type IEmitter interface {
	Emit(ctx context.Context, event Event) error
	Close() error
}
