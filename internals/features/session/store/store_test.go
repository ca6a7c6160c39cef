package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edumarket_bff/internals/features/session/model"
)

func sampleCrumbs() model.Breadcrumbs {
	return model.Breadcrumbs{
		Reference: "PSK-123",
		ItemType:  "course",
		ItemID:    "42",
		Method:    "paystack",
	}
}

func TestMemoryStore_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore(time.Hour, time.Minute)

	_, err := st.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	s := &model.Session{ID: "s1", Tokens: model.Tokens{Access: "a", Refresh: "r"}}
	require.NoError(t, st.Save(ctx, s))

	got, err := st.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Tokens.Access)

	// Load returns a copy.
	got.Tokens.Access = "changed"
	again, _ := st.Load(ctx, "s1")
	assert.Equal(t, "a", again.Tokens.Access)

	require.NoError(t, st.Delete(ctx, "s1"))
	_, err = st.Load(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	st := NewMemoryStore(time.Hour, 10*time.Minute)
	st.now = func() time.Time { return now }

	require.NoError(t, st.Save(ctx, &model.Session{ID: "s1"}))
	require.NoError(t, st.WriteBreadcrumbs(ctx, "s1", sampleCrumbs()))

	now = now.Add(11 * time.Minute)
	b, err := st.ReadBreadcrumbs(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, b.Empty(), "breadcrumbs outlive their ttl")

	now = now.Add(time.Hour)
	assert.Equal(t, 1, st.Purge())
	assert.Equal(t, 0, st.Len())
}

func TestMemoryStore_BreadcrumbsNeedSession(t *testing.T) {
	st := NewMemoryStore(time.Hour, time.Minute)
	err := st.WriteBreadcrumbs(context.Background(), "nope", sampleCrumbs())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStore_TakeBreadcrumbsIsAtomic(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore(time.Hour, time.Hour)
	require.NoError(t, st.Save(ctx, &model.Session{ID: "s1"}))
	require.NoError(t, st.WriteBreadcrumbs(ctx, "s1", sampleCrumbs()))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := st.TakeBreadcrumbs(ctx, "s1")
			assert.NoError(t, err)
			if b.Reference != "" {
				mu.Lock()
				seen++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, seen)
}

func TestBreadcrumbs_MapRoundTrip(t *testing.T) {
	b := model.Breadcrumbs{
		Reference:      "FLW-1",
		ItemType:       "activation",
		ItemID:         "7",
		Method:         "flutterwave",
		IsScheduled:    true,
		ReturnTo:       "/student/cbt?exam=2",
		ReceiptPending: true,
	}
	m := b.ToMap()
	assert.Equal(t, "FLW-1", m["paymentReference"])
	assert.Equal(t, "true", m["isScheduled"])
	assert.Equal(t, "/student/cbt?exam=2", m["paymentReturnTo"])
	assert.Equal(t, b, model.BreadcrumbsFromMap(m))

	assert.Empty(t, model.Breadcrumbs{}.ToMap())
}

func TestSealer(t *testing.T) {
	s, err := NewSealer("a-very-secret-value")
	require.NoError(t, err)

	sealed, err := s.Seal([]byte(`{"access":"x"}`))
	require.NoError(t, err)
	assert.NotContains(t, sealed, "access")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"access":"x"}`, string(plain))

	other, _ := NewSealer("another-secret")
	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, ErrUnseal)

	_, err = s.Open("not-base64!")
	assert.ErrorIs(t, err, ErrUnseal)
}

func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	client.FlushDB(ctx)
	return client
}

func TestRedisStore(t *testing.T) {
	client := setupTestRedis(t)
	sealer, err := NewSealer("test-secret")
	require.NoError(t, err)
	st := NewRedisStore(client, sealer, time.Hour, time.Minute)
	defer st.Close()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	s := &model.Session{
		ID:              "11111111-2222-3333-4444-555555555555",
		Tokens:          model.Tokens{Access: "acc", Refresh: "ref", Role: "student", UserID: 9},
		ActiveAttemptID: 77,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, st.Save(ctx, s))

	raw, err := client.HGet(ctx, sessionKey(s.ID), "tokens").Result()
	require.NoError(t, err)
	assert.NotContains(t, raw, "acc", "tokens are sealed at rest")

	got, err := st.Load(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.Tokens, got.Tokens)
	assert.Equal(t, int64(77), got.ActiveAttemptID)
	assert.True(t, got.CreatedAt.Equal(now))

	t.Run("breadcrumbs pull semantics", func(t *testing.T) {
		require.NoError(t, st.WriteBreadcrumbs(ctx, s.ID, sampleCrumbs()))

		b, err := st.ReadBreadcrumbs(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, "PSK-123", b.Reference)

		b, err = st.TakeBreadcrumbs(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, "PSK-123", b.Reference)

		b, err = st.TakeBreadcrumbs(ctx, s.ID)
		require.NoError(t, err)
		assert.True(t, b.Empty())
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := st.Load(ctx, "nope")
		assert.ErrorIs(t, err, ErrSessionNotFound)
		assert.ErrorIs(t, st.WriteBreadcrumbs(ctx, "nope", sampleCrumbs()), ErrSessionNotFound)
	})

	require.NoError(t, st.Delete(ctx, s.ID))
	_, err = st.Load(ctx, s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
