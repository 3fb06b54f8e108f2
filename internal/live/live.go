package live

import (
	"context"
	"log"
	"sync"
)

// Topics published by the directory and the learning log.
const (
	TopicStudents = "students"
	TopicStaff    = "staff"
)

// EntriesTopic is the change topic for one student's learning log.
func EntriesTopic(studentID string) string {
	return "entries:" + studentID
}

// Hub fans change signals out to subscribers. A signal carries no payload;
// subscribers reload the data they watch.
type Hub interface {
	Publish(ctx context.Context, topic string) error
	Subscribe(ctx context.Context, topic string) (*Subscription, error)
}

// Subscription delivers change signals on C until Close is called. Signals
// that arrive while one is pending are coalesced.
type Subscription struct {
	C     <-chan struct{}
	once  sync.Once
	close func()
}

// Close stops delivery. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.close)
}

// Snapshots streams the result of load once immediately and again after
// every change signal on topic. The returned cancel func must be called;
// it stops the stream and closes the channel.
func Snapshots[T any](ctx context.Context, hub Hub, topic string, load func(context.Context) (T, error)) (<-chan T, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	sub, err := hub.Subscribe(ctx, topic)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	first, err := load(ctx)
	if err != nil {
		sub.Close()
		cancel()
		return nil, nil, err
	}

	out := make(chan T, 1)
	out <- first
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.C:
				if !ok {
					return
				}
				snap, err := load(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					log.Printf("live: reload %s failed: %v", topic, err)
					continue
				}
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, cancel, nil
}
