package redis

import (
	"context"
	"strings"
	"time"

	"github.com/arefin-aareef/talksy/internal/core/contracts"

	"github.com/redis/go-redis/v9"
)

const (
	socketKeyPrefix = "user:"
	socketKeySuffix = ":socket"
	scanBatch       = 200
)

func socketKey(userID string) string {
	return socketKeyPrefix + userID + socketKeySuffix
}

// clearIfOwner deletes the key only while it still names this connection.
var clearIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisPresenceStore mirrors the local directory as user:<id>:socket keys
// holding the current connection id. Keys expire unless refreshed.
type RedisPresenceStore struct {
	rdb redis.UniversalClient
}

var _ contracts.PresenceStore = (*RedisPresenceStore)(nil)

func NewRedisPresenceStore(rdb redis.UniversalClient) *RedisPresenceStore {
	return &RedisPresenceStore{
		rdb: rdb,
	}
}

func (p *RedisPresenceStore) SetOnline(ctx context.Context, userID, connID string, ttl time.Duration) error {
	return p.rdb.Set(ctx, socketKey(userID), connID, ttl).Err()
}

func (p *RedisPresenceStore) ClearIfOwner(ctx context.Context, userID, connID string) error {
	return clearIfOwner.Run(ctx, p.rdb, []string{socketKey(userID)}, connID).Err()
}

// Refresh sets every owner's key again in one round trip. EXPIRE alone
// would not bring back a key that already expired or was flushed.
func (p *RedisPresenceStore) Refresh(ctx context.Context, owners map[string]string, ttl time.Duration) error {
	if len(owners) == 0 {
		return nil
	}
	_, err := p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for userID, connID := range owners {
			pipe.Set(ctx, socketKey(userID), connID, ttl)
		}
		return nil
	})
	return err
}

func (p *RedisPresenceStore) OnlineUsers(ctx context.Context) ([]string, error) {
	var (
		ids    []string
		cursor uint64
	)
	for {
		keys, next, err := p.rdb.Scan(ctx, cursor, socketKeyPrefix+"*"+socketKeySuffix, scanBatch).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(k, socketKeyPrefix), socketKeySuffix))
		}
		if next == 0 {
			return ids, nil
		}
		cursor = next
	}
}
