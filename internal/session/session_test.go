package session

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMenuStep_Digit(t *testing.T) {
	cases := []struct {
		action string
		press  bool
		digit  string
	}{
		{"press 1", true, "1"},
		{"press #", true, "#"},
		{"  press 9 ", true, "9"},
		{"say representative", false, ""},
		{"", false, ""},
	}
	for _, tc := range cases {
		m := MenuStep{Action: tc.action}
		if m.IsPress() != tc.press || m.Digit() != tc.digit {
			t.Fatalf("%q: got press=%v digit=%q", tc.action, m.IsPress(), m.Digit())
		}
	}
}

func TestMemoryStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, ok, err := s.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("expected absent, got ok=%v err=%v", ok, err)
	}

	in := Session{Script: "hello", MenuSteps: []MenuStep{{WaitFor: "main menu", Action: "press 1"}}}
	if err := s.Put(ctx, "c1", in); err != nil {
		t.Fatalf("put: %v", err)
	}
	in.MenuSteps[0].Action = "mutated"

	got, ok, err := s.Get(ctx, "c1")
	if err != nil || !ok {
		t.Fatalf("expected session, ok=%v err=%v", ok, err)
	}
	if got.Script != "hello" || got.MenuSteps[0].Action != "press 1" {
		t.Fatalf("stored session aliased caller slice: %+v", got)
	}

	if err := s.Delete(ctx, "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "c1"); err != nil {
		t.Fatalf("second delete should be a no-op, got %v", err)
	}
	if _, ok, _ := s.Get(ctx, "c1"); ok {
		t.Fatalf("expected session gone")
	}
}

func TestMemoryStore_PutOverwrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Put(ctx, "c1", Session{Script: "one"})
	_ = s.Put(ctx, "c1", Session{Script: "two"})
	got, _, _ := s.Get(ctx, "c1")
	if got.Script != "two" {
		t.Fatalf("expected overwrite, got %q", got.Script)
	}
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	s := NewMemoryStore(WithTTL(time.Minute), WithClock(func() time.Time { return now }))

	_ = s.Put(ctx, "c1", Session{Script: "x"})
	_ = s.Put(ctx, "c2", Session{Script: "y"})

	now = now.Add(30 * time.Second)
	if _, ok, _ := s.Get(ctx, "c1"); !ok {
		t.Fatalf("expected live session before ttl")
	}

	now = now.Add(time.Minute)
	if _, ok, _ := s.Get(ctx, "c1"); ok {
		t.Fatalf("expected expired session")
	}
	if n := s.Sweep(); n != 1 {
		t.Fatalf("expected sweep to drop 1 entry, dropped %d", n)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store")
	}
}

func TestMemoryStore_ZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	s := NewMemoryStore(WithClock(func() time.Time { return now }))
	_ = s.Put(ctx, "c1", Session{Script: "x"})
	now = now.Add(1000 * time.Hour)
	if _, ok, _ := s.Get(ctx, "c1"); !ok {
		t.Fatalf("expected session without ttl to remain")
	}
}

func TestStoresImplementStore(t *testing.T) {
	var _ Store = (*RedisStore)(nil)
	var _ Store = (*MemoryStore)(nil)
	if got := redisKey("abc"); got != "callrep:flow:abc" {
		t.Fatalf("unexpected key %q", got)
	}
}

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, ttl), mr
}

func TestRedisStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedisStore(t, 0)

	in := Session{
		Script: "Hello Jane Doe.",
		MenuSteps: []MenuStep{
			{WaitFor: "main menu", Action: "press 1"},
			{WaitFor: "leave message", Action: "say hello"},
		},
	}
	if err := s.Put(ctx, "c1", in); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if mr.TTL(redisKey("c1")) != 0 {
		t.Fatalf("zero ttl should store without expiry")
	}

	got, ok, err := s.Get(ctx, "c1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if err := s.Delete(ctx, "c1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, err := s.Get(ctx, "c1"); ok || err != nil {
		t.Fatalf("expected absent after delete, ok=%v err=%v", ok, err)
	}
	if err := s.Delete(ctx, "never-stored"); err != nil {
		t.Fatalf("delete of absent key should be a no-op: %v", err)
	}
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedisStore(t, time.Minute)

	if err := s.Put(ctx, "c1", Session{Script: "x"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if mr.TTL(redisKey("c1")) != time.Minute {
		t.Fatalf("ttl=%s", mr.TTL(redisKey("c1")))
	}
	mr.FastForward(61 * time.Second)
	if _, ok, err := s.Get(ctx, "c1"); ok || err != nil {
		t.Fatalf("expected expired session, ok=%v err=%v", ok, err)
	}
}

func TestRedisStore_CorruptValue(t *testing.T) {
	s, mr := newTestRedisStore(t, 0)
	if err := mr.Set(redisKey("c1"), "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, ok, err := s.Get(context.Background(), "c1"); ok || err == nil {
		t.Fatalf("expected decode error, ok=%v err=%v", ok, err)
	}
}

func TestRedisStore_NilClient(t *testing.T) {
	s := NewRedisStore(nil, 0)
	if err := s.Put(context.Background(), "c1", Session{}); err == nil {
		t.Fatal("expected error")
	}
}
