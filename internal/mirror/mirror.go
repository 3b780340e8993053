// Package mirror keeps a best-effort copy of live room metadata in Redis
// for operational visibility (redis-cli inspection, dashboards). The
// in-memory registry stays authoritative; mirror writes never gate
// pairing or teardown.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kapu/chess-arena-go/internal/match"
	"github.com/kapu/chess-arena-go/internal/obslog"
)

// ttlRoom caps how long a stale entry can survive a crashed process.
const ttlRoom = 24 * time.Hour

type Store struct {
	rdb *redis.Client
}

func New(redisURL string) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for room mirror")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

// NewWithClient wraps an existing client; used by tests.
func NewWithClient(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *Store) keyRoom(id string) string { return "arena:room:" + strings.TrimSpace(id) }
func (s *Store) keyIndex() string         { return "arena:rooms" }

// RoomUp records a freshly paired room.
func (s *Store) RoomUp(ctx context.Context, snap match.RoomSnapshot) {
	if s == nil || s.rdb == nil {
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, s.keyRoom(snap.RoomID), raw, ttlRoom)
	pipe.SAdd(ctx, s.keyIndex(), snap.RoomID)
	pipe.Expire(ctx, s.keyIndex(), ttlRoom)
	if _, err := pipe.Exec(ctx); err != nil {
		obslog.L().Warn("mirror_room_up_error", zap.String("room_id", snap.RoomID), zap.Error(err))
	}
}

// RoomDown drops a torn-down room.
func (s *Store) RoomDown(ctx context.Context, roomID string) {
	if s == nil || s.rdb == nil {
		return
	}
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, s.keyRoom(roomID))
	pipe.SRem(ctx, s.keyIndex(), roomID)
	if _, err := pipe.Exec(ctx); err != nil {
		obslog.L().Warn("mirror_room_down_error", zap.String("room_id", roomID), zap.Error(err))
	}
}

// LiveRooms lists the mirrored rooms. Entries whose document expired are
// skipped and pruned from the index.
func (s *Store) LiveRooms(ctx context.Context) ([]match.RoomSnapshot, error) {
	if s == nil || s.rdb == nil {
		return nil, nil
	}
	ids, err := s.rdb.SMembers(ctx, s.keyIndex()).Result()
	if err != nil {
		return nil, err
	}
	var out []match.RoomSnapshot
	for _, id := range ids {
		raw, err := s.rdb.Get(ctx, s.keyRoom(id)).Bytes()
		if err == redis.Nil {
			_ = s.rdb.SRem(ctx, s.keyIndex(), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		var snap match.RoomSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
