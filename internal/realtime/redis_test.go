package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedisSource(t *testing.T) (*miniredis.Miniredis, *RedisSource) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisSource(client, "", discardLogger())
}

func TestRedisSource_SubscribeDeliverUnsubscribe(t *testing.T) {
	mr, src := newTestRedisSource(t)

	got := make(chan string, 4)
	unsubscribe, err := src.Subscribe(context.Background(), func(b []byte) { got <- string(b) })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	payload := `{"type":"new_jobs","jobs":[{"id":"1"}]}`
	if n := mr.Publish(DefaultRedisChannel, payload); n != 1 {
		t.Fatalf("published to %d subscribers, want 1", n)
	}
	select {
	case p := <-got:
		if p != payload {
			t.Errorf("payload = %q, want %q", p, payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("published event not delivered")
	}

	unsubscribe()
	deadline := time.Now().Add(2 * time.Second)
	for mr.PubSubNumSub(DefaultRedisChannel)[DefaultRedisChannel] != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription still registered after unsubscribe")
		}
		time.Sleep(5 * time.Millisecond)
	}

	mr.Publish(DefaultRedisChannel, payload)
	select {
	case p := <-got:
		t.Errorf("delivered %q after unsubscribe", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRedisSource_FeedsChannel(t *testing.T) {
	mr, src := newTestRedisSource(t)

	ch, st, _, _ := newTestChannel(&fakeSource{})
	ch.source = src

	counted := make(chan int, 1)
	ch.OnNewJobs(func(n int) { counted <- n })

	if _, err := ch.Subscribe(context.Background()); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer ch.Close()

	mr.Publish(DefaultRedisChannel, `{"type":"new_jobs","jobs":[{"id":"7","title":"Welder"}]}`)
	select {
	case n := <-counted:
		if n != 1 {
			t.Errorf("new jobs = %d, want 1", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event applied")
	}
	if st.Count() != 1 {
		t.Errorf("store count = %d, want 1", st.Count())
	}
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewRedisClient(ctx, "redis://"+addr); err == nil {
		t.Fatal("expected ping error for a stopped server")
	}
}

func TestNewRedisClient_BadURL(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), "http://not-redis"); err == nil {
		t.Fatal("expected parse error")
	}
}
