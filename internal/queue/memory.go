package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryClient is an in-process queue for dev and tests. Messages become
// visible after their delay elapses.
type MemoryClient struct {
	mu      sync.Mutex
	pending []delayedMessage
	now     func() time.Time
}

type delayedMessage struct {
	msg     Message
	visible time.Time
}

// NewMemoryClient constructs a MemoryClient.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{now: time.Now}
}

// NewMemoryClientAt constructs a MemoryClient with a custom clock for tests.
func NewMemoryClientAt(now func() time.Time) *MemoryClient {
	if now == nil {
		now = time.Now
	}
	return &MemoryClient{now: now}
}

// Send enqueues a message.
func (m *MemoryClient) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, delayedMessage{
		msg:     msg,
		visible: m.now().Add(time.Duration(msg.DelaySeconds) * time.Second),
	})
	return nil
}

// Receive pops the oldest visible message, if any.
func (m *MemoryClient) Receive() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for i, dm := range m.pending {
		if dm.visible.After(now) {
			continue
		}
		m.pending = append(m.pending[:i], m.pending[i+1:]...)
		return dm.msg, true
	}
	return Message{}, false
}

// ReceiveAny pops the oldest message regardless of delay. Test helper.
func (m *MemoryClient) ReceiveAny() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return Message{}, false
	}
	dm := m.pending[0]
	m.pending = m.pending[1:]
	return dm.msg, true
}

// Len reports the number of queued messages.
func (m *MemoryClient) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

var _ Client = (*MemoryClient)(nil)
