package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func recv[V any](t *testing.T, sub *Subscription[V]) (V, bool) {
	t.Helper()
	select {
	case v, ok := <-sub.C():
		return v, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero V
	return zero, false
}

func drain[V any](t *testing.T, sub *Subscription[V]) []V {
	t.Helper()
	var got []V
	for {
		v, ok := recv(t, sub)
		if !ok {
			return got
		}
		got = append(got, v)
	}
}

func TestBroadcaster_CurrentValueFirst(t *testing.T) {
	b := New[int, int](4)
	if err := b.Open(1, 10); err != nil {
		t.Fatal(err)
	}
	b.Publish(1, 60, false)

	sub, err := b.Subscribe(context.Background(), 1)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if v, _ := recv(t, sub); v != 60 {
		t.Errorf("first value = %d, want 60", v)
	}
	b.Publish(1, 80, false)
	b.Publish(1, 100, true)

	got := drain(t, sub)
	if len(got) != 2 || got[0] != 80 || got[1] != 100 {
		t.Errorf("rest = %v, want [80 100]", got)
	}
}

func TestBroadcaster_FinalRetiresTopic(t *testing.T) {
	b := New[string, string](0)
	b.Open("a", "start")
	b.Publish("a", "done", true)

	if _, err := b.Subscribe(context.Background(), "a"); !errors.Is(err, ErrNoTopic) {
		t.Errorf("err = %v, want ErrNoTopic", err)
	}
	if _, ok := b.Current("a"); ok {
		t.Error("Current should report no value after final publish")
	}
}

func TestBroadcaster_SlowSubscriberKeepsLatest(t *testing.T) {
	b := New[int, int](2)
	b.Open(1, 0)
	sub, err := b.Subscribe(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	// Nothing is read while publishing, so the queue overflows.
	for i := 1; i <= 50; i++ {
		b.Publish(1, i, i == 50)
	}

	got := drain(t, sub)
	if len(got) == 0 || got[len(got)-1] != 50 {
		t.Fatalf("got %v, want last value 50", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Errorf("values out of order: %v", got)
			break
		}
	}
	if sub.Dropped() == 0 {
		t.Error("expected some values to be dropped")
	}
}

func TestBroadcaster_PublishNeverBlocks(t *testing.T) {
	b := New[int, int](1)
	b.Open(1, 0)
	for range 5 {
		if _, err := b.Subscribe(context.Background(), 1); err != nil {
			t.Fatal(err)
		}
	}

	done := make(chan struct{})
	go func() {
		for i := range 10000 {
			b.Publish(1, i, false)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked on unread subscribers")
	}
}

func TestBroadcaster_ManySubscribersSeeFinal(t *testing.T) {
	b := New[int, int](4)
	b.Open(7, 0)

	const n = 20
	var finals atomic.Int32
	var wg sync.WaitGroup
	for range n {
		sub, err := b.Subscribe(context.Background(), 7)
		if err != nil {
			t.Fatal(err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last int
			for v := range sub.All() {
				last = v
			}
			if last == 100 {
				finals.Add(1)
			}
		}()
	}
	for p := 10; p <= 100; p += 10 {
		b.Publish(7, p, p == 100)
	}
	wg.Wait()
	if got := finals.Load(); got != n {
		t.Errorf("subscribers that saw final = %d, want %d", got, n)
	}
}

func TestSubscription_Unsubscribe(t *testing.T) {
	b := New[int, int](4)
	b.Open(1, 0)
	sub, _ := b.Subscribe(context.Background(), 1)
	recv(t, sub)

	sub.Unsubscribe()
	sub.Unsubscribe()
	if _, ok := recv(t, sub); ok {
		t.Error("channel should be closed after Unsubscribe")
	}
	if n := b.Subscribers(1); n != 0 {
		t.Errorf("Subscribers = %d, want 0", n)
	}
}

func TestSubscription_ContextCancel(t *testing.T) {
	b := New[int, int](4)
	b.Open(1, 0)
	ctx, cancel := context.WithCancel(context.Background())
	sub, _ := b.Subscribe(ctx, 1)
	recv(t, sub)

	cancel()
	if _, ok := recv(t, sub); ok {
		t.Error("channel should be closed after ctx cancel")
	}
}

func TestBroadcaster_Close(t *testing.T) {
	b := New[int, int](4)
	b.Open(1, 0)
	sub, _ := b.Subscribe(context.Background(), 1)
	recv(t, sub)

	b.Close()
	if _, ok := recv(t, sub); ok {
		t.Error("channel should be closed after Close")
	}
	if _, err := b.Subscribe(context.Background(), 1); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
	if err := b.Open(2, 0); !errors.Is(err, ErrClosed) {
		t.Errorf("Open err = %v, want ErrClosed", err)
	}
	b.Publish(1, 5, false)
}
