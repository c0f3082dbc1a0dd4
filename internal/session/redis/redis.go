package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-ordering/internal/logger"
)

const (
	tableLockPrefix      = "table_lock:"
	pendingSessionPrefix = "session_pending:"

	// TableLockTTL bounds how long a crashed registration can hold a table.
	TableLockTTL = 5 * time.Second
)

// unlockScript deletes the lock only when it still holds the caller's token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Redis struct {
	Client *redis.Client
	Logger *logger.Logger
}

func NewRedis(client *redis.Client, log *logger.Logger) *Redis {
	return &Redis{Client: client, Logger: log}
}

// LockTable takes the registration lock of a table for owner.
func (r *Redis) LockTable(ctx context.Context, tableID, owner string) (bool, error) {
	return r.Client.SetNX(ctx, tableLockPrefix+tableID, owner, TableLockTTL).Result()
}

// UnlockTable releases the lock if owner still holds it.
func (r *Redis) UnlockTable(ctx context.Context, tableID, owner string) error {
	return unlockScript.Run(ctx, r.Client, []string{tableLockPrefix + tableID}, owner).Err()
}

// MarkPending starts the approval countdown of a session.
func (r *Redis) MarkPending(ctx context.Context, sessionID string, ttl time.Duration) error {
	return r.Client.Set(ctx, pendingSessionPrefix+sessionID, time.Now().Unix(), ttl).Err()
}

// ClearPending stops the countdown once staff reviewed the session.
func (r *Redis) ClearPending(ctx context.Context, sessionID string) error {
	return r.Client.Del(ctx, pendingSessionPrefix+sessionID).Err()
}

// PendingSessionID extracts the session id from an expired pending key.
func PendingSessionID(key string) (string, bool) {
	if !strings.HasPrefix(key, pendingSessionPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(key, pendingSessionPrefix)
	return id, id != ""
}

// SubscribePendingExpiry calls onExpired for every pending key that expires,
// until ctx is done. Redis must run with keyspace notifications for expired
// events (notify-keyspace-events containing "Ex").
func (r *Redis) SubscribePendingExpiry(ctx context.Context, onExpired func(ctx context.Context, sessionID string)) {
	val, err := r.Client.ConfigGet(ctx, "notify-keyspace-events").Result()
	if err != nil {
		r.Logger.Error("REDIS", fmt.Sprintf("Failed to get keyspace config: %v", err))
	} else if len(val) < 2 || !strings.Contains(fmt.Sprint(val[1]), "x") || !strings.Contains(fmt.Sprint(val[1]), "E") {
		r.Logger.Warn("REDIS", "Keyspace notifications not configured for expiry events, pending sessions rely on the sweeper")
	}

	channel := fmt.Sprintf("__keyevent@%d__:expired", r.Client.Options().DB)
	pubsub := r.Client.PSubscribe(ctx, channel)
	r.Logger.Info("REDIS", fmt.Sprintf("Subscribed to %s", channel))

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if id, ok := PendingSessionID(msg.Payload); ok {
					r.Logger.LogSession("PENDING_EXPIRED", id, "Approval window elapsed")
					onExpired(ctx, id)
				}
			}
		}
	}()
}
