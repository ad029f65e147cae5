package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "pw:feed:"

// Publisher is the write side of the change feed. Mutating services publish
// after every successful row change.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Broker fans change events out through Redis pub/sub, one channel per
// table. Subscribers only ever see events published after they attached.
type Broker struct {
	client *redis.Client
	logger *slog.Logger
}

// NewBroker constructs a Broker.
func NewBroker(client *redis.Client, logger *slog.Logger) *Broker {
	return &Broker{client: client, logger: logger}
}

// Publish sends one event to the table's channel. Failures are returned but
// callers treat publishing as best-effort: the row change has already
// committed.
func (b *Broker) Publish(ctx context.Context, event Event) error {
	if !IsWatched(event.Table) {
		return fmt.Errorf("feed: table %q is not watched", event.Table)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("feed: marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, channelPrefix+event.Table, payload).Err(); err != nil {
		return fmt.Errorf("feed: publish %s: %w", event.Table, err)
	}
	return nil
}

// Subscribe attaches to one or more table channels and returns a stream of
// decoded events. The stream closes when ctx is cancelled.
func (b *Broker) Subscribe(ctx context.Context, tables ...string) (<-chan Event, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("feed: at least one table required")
	}
	channels := make([]string, 0, len(tables))
	for _, table := range tables {
		if !IsWatched(table) {
			return nil, fmt.Errorf("feed: table %q is not watched", table)
		}
		channels = append(channels, channelPrefix+table)
	}

	sub := b.client.Subscribe(ctx, channels...)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("feed: subscribe: %w", err)
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		defer func() {
			if err := sub.Close(); err != nil && b.logger != nil {
				b.logger.Warn("close feed subscription", slog.Any("error", err))
			}
		}()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					if b.logger != nil {
						b.logger.Warn("drop malformed feed event", slog.Any("error", err))
					}
					continue
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events, nil
}

var _ Publisher = (*Broker)(nil)
