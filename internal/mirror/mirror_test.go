package mirror

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/kapu/chess-arena-go/internal/match"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewWithClient(rdb), mr
}

func snap(roomID string) match.RoomSnapshot {
	return match.RoomSnapshot{
		RoomID:    roomID,
		WhiteID:   "w-conn",
		WhiteName: "White",
		BlackID:   "b-conn",
		BlackName: "Black",
		CreatedAt: time.Now().UTC(),
	}
}

func TestRoomUpDown(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	s.RoomUp(ctx, snap("room-1"))
	s.RoomUp(ctx, snap("room-2"))

	rooms, err := s.LiveRooms(ctx)
	if err != nil {
		t.Fatalf("LiveRooms: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("expected 2 live rooms, got %d", len(rooms))
	}

	s.RoomDown(ctx, "room-1")
	rooms, err = s.LiveRooms(ctx)
	if err != nil {
		t.Fatalf("LiveRooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].RoomID != "room-2" {
		t.Fatalf("unexpected live rooms after RoomDown: %+v", rooms)
	}
}

func TestRoomDownIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	s.RoomUp(ctx, snap("room-1"))
	s.RoomDown(ctx, "room-1")
	s.RoomDown(ctx, "room-1")

	rooms, err := s.LiveRooms(ctx)
	if err != nil {
		t.Fatalf("LiveRooms: %v", err)
	}
	if len(rooms) != 0 {
		t.Fatalf("expected no live rooms, got %+v", rooms)
	}
}

func TestLiveRoomsPrunesExpiredDocs(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	s.RoomUp(ctx, snap("room-1"))
	mr.FastForward(ttlRoom + time.Minute)

	rooms, err := s.LiveRooms(ctx)
	if err != nil {
		t.Fatalf("LiveRooms: %v", err)
	}
	if len(rooms) != 0 {
		t.Fatalf("expired room still listed: %+v", rooms)
	}
}

func TestParseRedisURL(t *testing.T) {
	opts, err := parseRedisURL("redis://:secret@localhost:6379/2")
	if err != nil {
		t.Fatalf("parseRedisURL: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if _, err := parseRedisURL("http://localhost"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}
