package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps presence entries in Redis so every service instance sees
// the same state. Keys expire server-side after the TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "presence"
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}, nil
}

func (s *RedisStore) key(userID int) string {
	return fmt.Sprintf("%s:user:%d", s.prefix, userID)
}

func (s *RedisStore) set(ctx context.Context, userID int, online bool) error {
	payload, err := json.Marshal(Entry{Online: online, LastUpdate: time.Now().UTC()})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(userID), payload, s.ttl).Err()
}

// SetOnline marks the user online with the store's TTL.
func (s *RedisStore) SetOnline(ctx context.Context, userID int) error {
	return s.set(ctx, userID, true)
}

// SetOffline overwrites the entry as offline, still TTL-bounded.
func (s *RedisStore) SetOffline(ctx context.Context, userID int) error {
	return s.set(ctx, userID, false)
}

// Refresh re-arms the TTL; heartbeats call this every interval.
func (s *RedisStore) Refresh(ctx context.Context, userID int) error {
	return s.set(ctx, userID, true)
}

func (s *RedisStore) get(ctx context.Context, userID int) (Entry, bool, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// IsOnline reports whether a live entry marks the user online.
func (s *RedisStore) IsOnline(ctx context.Context, userID int) (bool, error) {
	e, ok, err := s.get(ctx, userID)
	if err != nil {
		return false, err
	}
	return ok && e.Online, nil
}

// LastUpdate returns the entry's timestamp, or false when the entry expired.
func (s *RedisStore) LastUpdate(ctx context.Context, userID int) (time.Time, bool, error) {
	e, ok, err := s.get(ctx, userID)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return e.LastUpdate, true, nil
}

// Close releases the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
