package queue

import "context"

// Client sends pipeline jobs to a queue backend. Delivery is at-least-once;
// consumers must tolerate duplicates.
type Client interface {
	Send(ctx context.Context, msg Message) error
}
