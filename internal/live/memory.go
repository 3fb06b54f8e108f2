package live

import (
	"context"
	"sync"
)

// Memory is an in-process hub for a single instance.
type Memory struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

// NewMemory creates an in-process hub.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[chan struct{}]struct{})}
}

func (m *Memory) Publish(_ context.Context, topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subs[topic] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (m *Memory) Subscribe(_ context.Context, topic string) (*Subscription, error) {
	ch := make(chan struct{}, 1)
	m.mu.Lock()
	if m.subs[topic] == nil {
		m.subs[topic] = make(map[chan struct{}]struct{})
	}
	m.subs[topic][ch] = struct{}{}
	m.mu.Unlock()
	return &Subscription{C: ch, close: func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs[topic], ch)
		if len(m.subs[topic]) == 0 {
			delete(m.subs, topic)
		}
		close(ch)
	}}, nil
}

// Subscribers returns the number of open subscriptions on topic.
func (m *Memory) Subscribers(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[topic])
}
