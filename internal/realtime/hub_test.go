package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newPubSub(t *testing.T) *RedisPubSub {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisPubSub(client, nil)
}

func fakeClient(schema string, user uuid.UUID) *Client {
	return &Client{ID: uuid.NewString(), Schema: schema, UserID: user, send: make(chan WSMessage, 8)}
}

func TestEventsReachOnlyTheirTenantAndUser(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ps := NewRedisPubSub(client, nil)
	hub := NewHub(nil, ps)
	alice, bob := uuid.New(), uuid.New()

	acmeAlice := fakeClient("acme", alice)
	acmeBob := fakeClient("acme", bob)
	betaAlice := fakeClient("beta", alice)
	for _, c := range []*Client{acmeAlice, acmeBob, betaAlice} {
		hub.Register(c)
	}

	n, err := ps.PublishToUser(context.Background(), "acme", alice, "notification", map[string]string{"title": "Payment due"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "one web instance subscribed to acme")

	select {
	case msg := <-acmeAlice.send:
		assert.Equal(t, "notification", msg.Event)
		var body map[string]string
		require.NoError(t, json.Unmarshal(msg.Data, &body))
		assert.Equal(t, "Payment due", body["title"])
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
	assert.Empty(t, acmeBob.send)
	assert.Empty(t, betaAlice.send)

	for _, c := range []*Client{acmeAlice, acmeBob, betaAlice} {
		hub.Unregister(c)
	}
	hub.Close()
}

func TestUnregisterLastClientDropsSubscription(t *testing.T) {
	ps := newPubSub(t)
	hub := NewHub(nil, ps)
	user := uuid.New()

	first, second := fakeClient("acme", user), fakeClient("acme", user)
	hub.Register(first)
	hub.Register(second)
	assert.Equal(t, 2, hub.Connections("acme", user))

	hub.Unregister(first)
	_, open := <-first.send
	assert.False(t, open, "send channel closed on unregister")
	assert.Equal(t, 1, hub.Connections("acme", user))

	hub.Unregister(second)
	assert.Zero(t, hub.Connections("acme", user))
	hub.mu.RLock()
	assert.Empty(t, hub.subs)
	hub.mu.RUnlock()

	n, err := ps.PublishToUser(context.Background(), "acme", user, "notification", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
