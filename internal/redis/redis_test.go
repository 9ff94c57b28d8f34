package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRateLimiterFixedWindow(t *testing.T) {
	mr, client := newTestClient(t)
	rl := NewRateLimiter(client, RateLimitConfig{MessageLimit: 2, MessageWindow: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := rl.AllowMessage(ctx, 7)
		if err != nil {
			t.Fatalf("AllowMessage: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("message %d should be allowed", i+1)
		}
	}
	res, err := rl.AllowMessage(ctx, 7)
	if err != nil {
		t.Fatalf("AllowMessage: %v", err)
	}
	if res.Allowed || res.Remaining != 0 {
		t.Fatalf("third message allowed: %+v", res)
	}

	other, _ := rl.AllowMessage(ctx, 8)
	if !other.Allowed {
		t.Fatal("limit leaked across users")
	}

	mr.FastForward(61 * time.Second)
	res, _ = rl.AllowMessage(ctx, 7)
	if !res.Allowed {
		t.Fatal("window did not reset")
	}
}

func TestRateLimiterResetUser(t *testing.T) {
	_, client := newTestClient(t)
	rl := NewRateLimiter(client, RateLimitConfig{MessageLimit: 1, MessageWindow: time.Minute})
	ctx := context.Background()

	_, _ = rl.AllowMessage(ctx, 1)
	if err := rl.ResetUser(ctx, 1); err != nil {
		t.Fatalf("ResetUser: %v", err)
	}
	res, _ := rl.AllowMessage(ctx, 1)
	if !res.Allowed {
		t.Fatal("reset did not clear the window")
	}
}

func TestTypingTracker(t *testing.T) {
	_, client := newTestClient(t)
	tt := NewTypingTracker(client, 10*time.Second)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tt.now = func() time.Time { return now }
	ctx := context.Background()

	fresh, err := tt.Track(ctx, 42, 3)
	if err != nil || !fresh {
		t.Fatalf("first Track: fresh=%v err=%v", fresh, err)
	}
	fresh, err = tt.Track(ctx, 42, 3)
	if err != nil || fresh {
		t.Fatalf("repeat Track: fresh=%v err=%v", fresh, err)
	}
	_, _ = tt.Track(ctx, 42, 5)

	users, err := tt.Typing(ctx, 42)
	if err != nil || len(users) != 2 {
		t.Fatalf("Typing = %v err %v", users, err)
	}

	now = now.Add(11 * time.Second)
	users, _ = tt.Typing(ctx, 42)
	if len(users) != 0 {
		t.Fatalf("expired marks still listed: %v", users)
	}
	fresh, _ = tt.Track(ctx, 42, 3)
	if !fresh {
		t.Fatal("Track after expiry should be fresh")
	}

	if err := tt.Stop(ctx, 42, 3); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	users, _ = tt.Typing(ctx, 42)
	if len(users) != 0 {
		t.Fatalf("stopped user still typing: %v", users)
	}
}

func TestMemberCache(t *testing.T) {
	_, client := newTestClient(t)
	mc := NewMemberCache(client, time.Minute)
	ctx := context.Background()

	loads := 0
	answer := true
	load := func(context.Context) (bool, error) {
		loads++
		return answer, nil
	}

	for i := 0; i < 3; i++ {
		ok, err := mc.IsMember(ctx, 1, 2, load)
		if err != nil || !ok {
			t.Fatalf("IsMember: %v %v", ok, err)
		}
	}
	if loads != 1 {
		t.Fatalf("loader called %d times", loads)
	}

	answer = false
	if err := mc.InvalidateChat(ctx, 1); err != nil {
		t.Fatalf("InvalidateChat: %v", err)
	}
	ok, _ := mc.IsMember(ctx, 1, 2, load)
	if ok || loads != 2 {
		t.Fatalf("stale answer after invalidation: ok=%v loads=%d", ok, loads)
	}

	if err := mc.Invalidate(ctx, 1, 2); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	boom := errors.New("db down")
	if _, err := mc.IsMember(ctx, 1, 2, func(context.Context) (bool, error) { return false, boom }); !errors.Is(err, boom) {
		t.Fatalf("loader error not returned: %v", err)
	}
}

func TestPresenceStoreConnections(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewPresenceStore(client, time.Minute)
	ctx := context.Background()

	if err := store.TrackConnection(ctx, 4, "a"); err != nil {
		t.Fatal(err)
	}
	if err := store.TrackConnection(ctx, 4, "b"); err != nil {
		t.Fatal(err)
	}
	conns, err := store.Connections(ctx, 4)
	if err != nil || len(conns) != 2 {
		t.Fatalf("connections: %v %v", conns, err)
	}

	_ = store.RemoveConnection(ctx, 4, "a")
	_ = store.RemoveConnection(ctx, 4, "b")
	if online, _ := store.IsOnline(ctx, 4); online {
		t.Fatal("user should be offline")
	}

	_ = store.TrackConnection(ctx, 5, "c")
	mr.FastForward(2 * time.Minute)
	if online, _ := store.IsOnline(ctx, 5); online {
		t.Fatal("stale connections should expire")
	}
}
