package bus

import (
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestRedisMirror_ChannelAndClose(t *testing.T) {
	// Nothing listens on this address; publishes fail and are logged.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	m := newRedisMirror(client, RedisMirrorConfig{Buffer: 1})

	if got, want := m.Channel("42"), "pairlink:pairing:42"; got != want {
		t.Errorf("Channel = %q, want %q", got, want)
	}
	for range 10 {
		m.Publish("42", map[string]int{"id": 42})
	}
	if err := m.Close(); err != nil {
		t.Logf("close: %v", err)
	}
	m.Publish("42", "after close")
	if err := m.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}
