package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go-token-auth/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisBlacklist_AddAndExpire(t *testing.T) {
	mr, client := newTestRedis(t)
	log, _ := logtest.NewNullLogger()
	bl := NewRedisBlacklist(client, log)
	ctx := context.Background()

	entry := &model.BlacklistEntry{
		JTI: "jti-1", TokenType: model.KindRefresh, ExpiresAt: time.Now().Add(time.Minute),
		Reason: model.ReasonLogout, UserID: "42",
	}
	require.NoError(t, bl.Add(ctx, entry))

	ok, err := bl.IsBlacklisted(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ttl := mr.TTL(blacklistKeyPrefix + "jti-1")
	assert.Greater(t, ttl, 50*time.Second)
	assert.LessOrEqual(t, ttl, time.Minute)

	raw, err := mr.Get(blacklistKeyPrefix + "jti-1")
	require.NoError(t, err)
	var stored model.BlacklistEntry
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, model.ReasonLogout, stored.Reason)

	mr.FastForward(2 * time.Minute)

	ok, err = bl.IsBlacklisted(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, ok, "entry must disappear with the token")
}

func TestRedisBlacklist_FirstEntryWins(t *testing.T) {
	mr, client := newTestRedis(t)
	log, _ := logtest.NewNullLogger()
	bl := NewRedisBlacklist(client, log)
	ctx := context.Background()
	expires := time.Now().Add(time.Hour)

	require.NoError(t, bl.Add(ctx, &model.BlacklistEntry{JTI: "jti-1", ExpiresAt: expires, Reason: model.ReasonLogout}))
	require.NoError(t, bl.Add(ctx, &model.BlacklistEntry{JTI: "jti-1", ExpiresAt: expires, Reason: model.ReasonAdmin}))

	raw, err := mr.Get(blacklistKeyPrefix + "jti-1")
	require.NoError(t, err)
	var stored model.BlacklistEntry
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, model.ReasonLogout, stored.Reason)
}

func TestRedisBlacklist_SkipsExpiredAndPurgeIsNoop(t *testing.T) {
	mr, client := newTestRedis(t)
	log, _ := logtest.NewNullLogger()
	bl := NewRedisBlacklist(client, log)
	ctx := context.Background()

	require.NoError(t, bl.Add(ctx, &model.BlacklistEntry{JTI: "old", ExpiresAt: time.Now().Add(-time.Second)}))
	assert.False(t, mr.Exists(blacklistKeyPrefix+"old"))

	n, err := bl.Purge(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisBlacklist_ConnectionError(t *testing.T) {
	mr, client := newTestRedis(t)
	log, hook := logtest.NewNullLogger()
	bl := NewRedisBlacklist(client, log)
	mr.Close()

	_, err := bl.IsBlacklisted(context.Background(), "jti-1")
	assert.ErrorContains(t, err, "redis error")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "jti-1", hook.LastEntry().Data["jti"])
}
