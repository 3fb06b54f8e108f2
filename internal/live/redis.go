package live

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis fans signals out through Redis pub/sub so every API instance sees
// changes made by the others.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis builds a hub; channels are named <prefix><topic>.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "academy:live:"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Publish(ctx context.Context, topic string) error {
	return r.client.Publish(ctx, r.prefix+topic, "changed").Err()
}

func (r *Redis) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	ps := r.client.Subscribe(ctx, r.prefix+topic)
	// Wait for the subscription confirmation so no publish is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("live: subscribe %s: %w", topic, err)
	}
	ch := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(ch)
		msgs := ps.Channel()
		for {
			select {
			case <-done:
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()
	return &Subscription{C: ch, close: func() {
		close(done)
		_ = ps.Close()
	}}, nil
}
