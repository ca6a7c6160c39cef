package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"edumarket_bff/internals/features/session/model"
)

// RedisStore keeps one hash per session and the breadcrumbs as a separate
// JSON string so they can be pulled with GETDEL.
type RedisStore struct {
	client   *redis.Client
	sealer   *Sealer
	ttl      time.Duration
	crumbTTL time.Duration
}

func NewRedisStore(client *redis.Client, sealer *Sealer, ttl, crumbTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, sealer: sealer, ttl: ttl, crumbTTL: crumbTTL}
}

func sessionKey(id string) string { return fmt.Sprintf("edm:session:%s", id) }

func crumbsKey(id string) string { return fmt.Sprintf("edm:session:%s:crumbs", id) }

func (r *RedisStore) Load(ctx context.Context, id string) (*model.Session, error) {
	vals, err := r.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if len(vals) == 0 {
		return nil, ErrSessionNotFound
	}

	s := &model.Session{ID: id}
	if sealed := vals["tokens"]; sealed != "" {
		// An unreadable value (rotated key) leaves the session signed out.
		if plain, err := r.sealer.Open(sealed); err == nil {
			if err := sonic.Unmarshal(plain, &s.Tokens); err != nil {
				return nil, fmt.Errorf("failed to decode session tokens: %w", err)
			}
		}
	}
	if v := vals["active_attempt"]; v != "" {
		s.ActiveAttemptID, _ = strconv.ParseInt(v, 10, 64)
	}
	s.CreatedAt, _ = time.Parse(time.RFC3339Nano, vals["created_at"])
	s.UpdatedAt, _ = time.Parse(time.RFC3339Nano, vals["updated_at"])
	return s, nil
}

func (r *RedisStore) Save(ctx context.Context, s *model.Session) error {
	sealed := ""
	if !s.Tokens.Empty() {
		plain, err := sonic.Marshal(s.Tokens)
		if err != nil {
			return fmt.Errorf("failed to encode session tokens: %w", err)
		}
		if sealed, err = r.sealer.Seal(plain); err != nil {
			return err
		}
	}

	key := sessionKey(s.ID)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, map[string]any{
			"tokens":         sealed,
			"active_attempt": strconv.FormatInt(s.ActiveAttemptID, 10),
			"created_at":     s.CreatedAt.UTC().Format(time.RFC3339Nano),
			"updated_at":     s.UpdatedAt.UTC().Format(time.RFC3339Nano),
		})
		p.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, sessionKey(id), crumbsKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *RedisStore) WriteBreadcrumbs(ctx context.Context, id string, b model.Breadcrumbs) error {
	n, err := r.client.Exists(ctx, sessionKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	raw, err := sonic.Marshal(b.ToMap())
	if err != nil {
		return fmt.Errorf("failed to encode breadcrumbs: %w", err)
	}
	return r.client.Set(ctx, crumbsKey(id), raw, r.crumbTTL).Err()
}

func (r *RedisStore) ReadBreadcrumbs(ctx context.Context, id string) (model.Breadcrumbs, error) {
	val, err := r.client.Get(ctx, crumbsKey(id)).Result()
	return decodeCrumbs(val, err)
}

func (r *RedisStore) TakeBreadcrumbs(ctx context.Context, id string) (model.Breadcrumbs, error) {
	// GETDEL reads and clears in one step so two callbacks cannot both see the same reference.
	val, err := r.client.GetDel(ctx, crumbsKey(id)).Result()
	return decodeCrumbs(val, err)
}

func (r *RedisStore) ClearBreadcrumbs(ctx context.Context, id string) error {
	return r.client.Del(ctx, crumbsKey(id)).Err()
}

func decodeCrumbs(val string, err error) (model.Breadcrumbs, error) {
	if errors.Is(err, redis.Nil) {
		return model.Breadcrumbs{}, nil
	}
	if err != nil {
		return model.Breadcrumbs{}, fmt.Errorf("failed to get breadcrumbs: %w", err)
	}
	var m map[string]string
	if err := sonic.UnmarshalString(val, &m); err != nil {
		return model.Breadcrumbs{}, fmt.Errorf("failed to decode breadcrumbs: %w", err)
	}
	return model.BreadcrumbsFromMap(m), nil
}

func (r *RedisStore) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *RedisStore) Close() error { return r.client.Close() }
