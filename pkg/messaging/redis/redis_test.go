package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-settings/pkg/messaging"
)

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), Config{URL: "redis://" + mr.Addr() + "/0"})
	require.NoError(t, err)
	defer client.Close()

	_, err = Connect(context.Background(), Config{URL: "://bad"})
	assert.Error(t, err)
}

func TestPublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	broker := NewRedisBroker(client, nil)
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := broker.Subscribe(ctx, "clinic-settings")
	require.NoError(t, err)

	require.NoError(t, broker.Publish(ctx, "clinic-settings", messaging.Message{
		ID:   "1",
		Type: "settings.saved",
	}))

	select {
	case raw := <-msgs:
		var got messaging.Message
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, "settings.saved", got.Type)
		assert.Equal(t, "1", got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, ok := <-msgs
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}
