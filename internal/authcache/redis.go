package authcache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "crm:authcache:"

type RedisOptions struct {
	Prefix string
	TTL    time.Duration
	Log    *slog.Logger
	// OnError is called for every backend failure, which the cache treats as a miss.
	OnError func(op string, err error)
}

// Redis is a Cache shared by every API process. Entries are JSON under
// <prefix>cred:<digest>; <prefix>acct:<accountID> indexes an account's digests.
// <prefix>epoch:<accountID> and <prefix>epoch hold the unix-nano time of the
// last account and full invalidation for one ttl.
//
// No command touches more than one key, so the layout works on a cluster.
type Redis struct {
	client  redis.UniversalClient
	prefix  string
	ttl     time.Duration
	log     *slog.Logger
	onError func(op string, err error)
}

func NewRedis(client redis.UniversalClient, opts RedisOptions) *Redis {
	if opts.Prefix == "" {
		opts.Prefix = defaultRedisPrefix
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Redis{
		client:  client,
		prefix:  opts.Prefix,
		ttl:     opts.TTL,
		log:     opts.Log,
		onError: opts.OnError,
	}
}

func (r *Redis) credKey(digest string) string    { return r.prefix + "cred:" + digest }
func (r *Redis) acctKey(accountID string) string { return r.prefix + "acct:" + accountID }
func (r *Redis) epochKey(accountID string) string {
	if accountID == "" {
		return r.prefix + "epoch"
	}
	return r.prefix + "epoch:" + accountID
}

func (r *Redis) fail(ctx context.Context, op string, err error) {
	r.log.WarnContext(ctx, "auth cache backend error", slog.String("op", op), slog.Any("err", err))
	if r.onError != nil {
		r.onError(op, err)
	}
}

func (r *Redis) Lookup(ctx context.Context, credential string) (Entry, bool) {
	key := r.credKey(Key(credential))
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false
	}
	if err != nil {
		r.fail(ctx, "lookup", err)
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		r.fail(ctx, "decode", err)
		_ = r.client.Del(ctx, key).Err()
		return Entry{}, false
	}
	return e, true
}

// Store writes the entry and its index first and checks the invalidation
// epochs after. InvalidateAccount writes the epoch before reading the index,
// so whichever side runs second removes a stale entry.
func (r *Redis) Store(ctx context.Context, credential string, e Entry, ttl time.Duration) {
	if ttl <= 0 {
		ttl = r.ttl
	}
	if !e.ResolvedAt.IsZero() && time.Since(e.ResolvedAt) >= r.ttl {
		return
	}
	raw, err := json.Marshal(e)
	if err != nil {
		r.fail(ctx, "encode", err)
		return
	}
	digest := Key(credential)
	id := e.Account.ID
	_, err = r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.credKey(digest), raw, ttl)
		if id != "" {
			p.SAdd(ctx, r.acctKey(id), digest)
			p.PExpire(ctx, r.acctKey(id), ttl)
		}
		return nil
	})
	if err != nil {
		r.fail(ctx, "store", err)
		return
	}
	if e.ResolvedAt.IsZero() {
		return
	}

	stale, err := r.invalidatedSince(ctx, id, e.ResolvedAt)
	if err != nil {
		r.fail(ctx, "store", err)
	}
	if !stale && err == nil {
		return
	}
	_, err = r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, r.credKey(digest))
		if id != "" {
			p.SRem(ctx, r.acctKey(id), digest)
		}
		return nil
	})
	if err != nil {
		r.fail(ctx, "store", err)
	}
}

// invalidatedSince reports whether accountID, or the whole cache, was
// invalidated at or after t.
func (r *Redis) invalidatedSince(ctx context.Context, accountID string, t time.Time) (bool, error) {
	keys := []string{r.epochKey("")}
	if accountID != "" {
		keys = append(keys, r.epochKey(accountID))
	}
	cmds, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, k := range keys {
			p.Get(ctx, k)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	for _, cmd := range cmds {
		raw, err := cmd.(*redis.StringCmd).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return false, err
		}
		at, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return true, nil
		}
		if at >= t.UnixNano() {
			return true, nil
		}
	}
	return false, nil
}

func (r *Redis) markInvalidated(ctx context.Context, accountID string) error {
	return r.client.Set(ctx, r.epochKey(accountID), strconv.FormatInt(time.Now().UnixNano(), 10), r.ttl).Err()
}

func (r *Redis) Invalidate(ctx context.Context, credential string) {
	if err := r.client.Del(ctx, r.credKey(Key(credential))).Err(); err != nil {
		r.fail(ctx, "invalidate", err)
	}
}

func (r *Redis) InvalidateAccount(ctx context.Context, accountID string) {
	if accountID == "" {
		return
	}
	if err := r.markInvalidated(ctx, accountID); err != nil {
		r.fail(ctx, "invalidate_account", err)
	}
	digests, err := r.client.SMembers(ctx, r.acctKey(accountID)).Result()
	if err != nil {
		r.fail(ctx, "invalidate_account", err)
		return
	}
	_, err = r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, d := range digests {
			p.Del(ctx, r.credKey(d))
		}
		p.Del(ctx, r.acctKey(accountID))
		return nil
	})
	if err != nil {
		r.fail(ctx, "invalidate_account", err)
	}
}

// InvalidateAll records a cache-wide epoch, then scans the prefix on every
// primary and unlinks entries and indexes. Epoch keys are left to expire.
func (r *Redis) InvalidateAll(ctx context.Context) {
	if err := r.markInvalidated(ctx, ""); err != nil {
		r.fail(ctx, "invalidate_all", err)
	}
	var err error
	if cc, ok := r.client.(*redis.ClusterClient); ok {
		err = cc.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			return r.unlinkMatching(ctx, node)
		})
	} else {
		err = r.unlinkMatching(ctx, r.client)
	}
	if err != nil {
		r.fail(ctx, "invalidate_all", err)
	}
}

func (r *Redis) unlinkMatching(ctx context.Context, node redis.Cmdable) error {
	epochs := r.epochKey("")
	var cursor uint64
	for {
		keys, next, err := node.Scan(ctx, cursor, r.prefix+"*", 500).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			_, err := node.Pipelined(ctx, func(p redis.Pipeliner) error {
				for _, k := range keys {
					if strings.HasPrefix(k, epochs) {
						continue
					}
					p.Unlink(ctx, k)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
