package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// saveScript atomically writes the checkpoint into the thread's history
// list (overwriting the entry with the same step, or appending), writes
// it as the thread's "latest" key, increments the thread's sequence
// counter, and refreshes TTLs on all three keys. Using a
// single script avoids a read-modify-write race between concurrent savers
// on the same thread (the engine already serializes writes per thread,
// but the script makes the backend itself safe against misuse).
//
// KEYS[1] = latest key, KEYS[2] = history key, KEYS[3] = seq key
// ARGV[1] = checkpoint JSON, ARGV[2] = TTL seconds (0 disables expiry)
const saveScript = `
local step = cjson.decode(ARGV[1]).step
local replaced = false
for i, item in ipairs(redis.call("LRANGE", KEYS[2], 0, -1)) do
	if cjson.decode(item).step == step then
		redis.call("LSET", KEYS[2], i - 1, ARGV[1])
		replaced = true
		break
	end
end
if not replaced then
	redis.call("RPUSH", KEYS[2], ARGV[1])
end
local seq = redis.call("INCR", KEYS[3])
redis.call("SET", KEYS[1], ARGV[1])
if tonumber(ARGV[2]) > 0 then
	redis.call("EXPIRE", KEYS[1], ARGV[2])
	redis.call("EXPIRE", KEYS[2], ARGV[2])
	redis.call("EXPIRE", KEYS[3], ARGV[2])
end
return seq
`

// RedisStore is a Redis-backed Checkpointer. Each thread occupies a
// tagged hash slot (keys share a "{thread_id}" hash tag) so a Redis
// Cluster deployment can serve all of a thread's keys from one node,
// which the Lua script in saveScript depends on for atomicity.
type RedisStore[S any] struct {
	client *redis.Client
	ttl    time.Duration
	save   *redis.Script
}

// NewRedisStore wraps an existing go-redis client. ttl of zero disables
// key expiry.
func NewRedisStore[S any](client *redis.Client, ttl time.Duration) *RedisStore[S] {
	return &RedisStore[S]{client: client, ttl: ttl, save: redis.NewScript(saveScript)}
}

func keys(threadID string) (latest, history, seq string) {
	tag := fmt.Sprintf("{%s}", threadID)
	return "cp:" + tag + ":latest", "cp:" + tag + ":history", "cp:" + tag + ":seq"
}

// Save implements Checkpointer, persisting cp via the atomic Lua script.
func (r *RedisStore[S]) Save(ctx context.Context, cp Checkpoint[S]) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return wrap(KindSerialization, "marshal checkpoint", err)
	}
	latest, history, seq := keys(cp.ThreadID)
	ttlSeconds := int(r.ttl.Seconds())
	if err := r.save.Run(ctx, r.client, []string{latest, history, seq}, string(payload), ttlSeconds).Err(); err != nil {
		return wrap(KindQuery, "save checkpoint", err)
	}
	return nil
}

// Load implements Checkpointer, returning the thread's latest key.
func (r *RedisStore[S]) Load(ctx context.Context, threadID string) (Checkpoint[S], error) {
	var zero Checkpoint[S]
	latest, _, _ := keys(threadID)
	payload, err := r.client.Get(ctx, latest).Result()
	if err == redis.Nil {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, wrap(KindConnection, "get latest", err)
	}
	var cp Checkpoint[S]
	if err := json.Unmarshal([]byte(payload), &cp); err != nil {
		return zero, wrap(KindSerialization, "unmarshal checkpoint", err)
	}
	return cp, nil
}

// List implements Checkpointer by reading the thread's history list.
func (r *RedisStore[S]) List(ctx context.Context, threadID string) ([]Metadata, error) {
	_, history, _ := keys(threadID)
	payloads, err := r.client.LRange(ctx, history, 0, -1).Result()
	if err != nil {
		return nil, wrap(KindConnection, "list history", err)
	}
	out := make([]Metadata, 0, len(payloads))
	for _, p := range payloads {
		var cp Checkpoint[S]
		if err := json.Unmarshal([]byte(p), &cp); err != nil {
			return nil, wrap(KindSerialization, "unmarshal checkpoint", err)
		}
		out = append(out, Metadata{ThreadID: cp.ThreadID, Step: cp.Step, Node: cp.Node, CreatedAt: cp.CreatedAt})
	}
	return out, nil
}
