package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix = "vsms:notify:"
	eventTTL      = 5 * time.Second
)

// Event is the message published to a tenant's Redis channel.
type Event struct {
	UserID uuid.UUID       `json:"user_id"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
	At     int64           `json:"at"`
}

// RedisPubSub bridges per-tenant events between worker and web processes.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for tenant events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger}
}

// PublishToUser publishes an event for one user of a tenant. It reports how many
// web instances were subscribed; zero means nobody is listening right now.
func (r *RedisPubSub) PublishToUser(ctx context.Context, schema string, userID uuid.UUID, event string, payload any) (int64, error) {
	data, err := encode(payload)
	if err != nil {
		return 0, err
	}
	body, err := json.Marshal(Event{UserID: userID, Event: event, Data: data, At: time.Now().Unix()})
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, eventTTL)
	defer cancel()
	return r.client.Publish(ctx, channelPrefix+schema, body).Result()
}

// SubscribeTenant subscribes to a tenant's channel and calls handler for each event.
// Returns a cancel function to stop the subscription.
func (r *RedisPubSub) SubscribeTenant(schema string, handler func(Event)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, channelPrefix+schema)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					r.logger.Debug("drop malformed tenant event", zap.String("channel", msg.Channel))
					continue
				}
				handler(e)
			}
		}
	}()
	return func() {
		cancelCtx()
		<-done
	}, nil
}
