package revokesessions

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisAuditor(t *testing.T, ttl time.Duration, limit int) (*RedisAuditor, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisAuditor(client, ttl, limit), mr
}

func TestRedisAuditor_Record(t *testing.T) {
	auditor, mr := newMiniredisAuditor(t, time.Hour, 10)
	ctx := context.Background()

	entry := AuditEntry{
		ID:              "entry-1",
		Status:          StatusSuccess,
		Username:        "jane@company.com",
		UserID:          "u1",
		SessionsFound:   3,
		SessionsRevoked: 2,
		BaseURL:         "https://acme.my.salesforce.com",
	}
	require.NoError(t, auditor.Record(ctx, entry))

	raw, err := mr.Get("salesforce:revocation:entry-1")
	require.NoError(t, err)

	var stored AuditEntry
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, "u1", stored.UserID)
	assert.Equal(t, 2, stored.SessionsRevoked)
	assert.False(t, stored.RecordedAt.IsZero())

	assert.Equal(t, time.Hour, mr.TTL("salesforce:revocation:entry-1"))
	assert.Equal(t, time.Hour, mr.TTL("salesforce:revocation:user:jane@company.com"))

	ids, err := mr.List("salesforce:revocation:user:jane@company.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"entry-1"}, ids)
}

func TestRedisAuditor_GeneratesID(t *testing.T) {
	auditor, mr := newMiniredisAuditor(t, time.Hour, 10)

	require.NoError(t, auditor.Record(context.Background(), AuditEntry{Status: StatusHalted, Username: UnknownUsername}))

	ids, err := mr.List("salesforce:revocation:user:" + UnknownUsername)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.NotEmpty(t, ids[0])
	assert.True(t, mr.Exists("salesforce:revocation:"+ids[0]))
}

func TestRedisAuditor_KeyPrefix(t *testing.T) {
	auditor, mr := newMiniredisAuditor(t, time.Hour, 10)
	auditor.WithKeyPrefix("acme:audit:")
	ctx := context.Background()

	require.NoError(t, auditor.Record(ctx, AuditEntry{ID: "entry-1", Status: StatusSuccess, Username: "jane@company.com"}))

	assert.True(t, mr.Exists("acme:audit:entry-1"))
	assert.False(t, mr.Exists("salesforce:revocation:entry-1"))

	history, err := auditor.History(ctx, "jane@company.com", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "entry-1", history[0].ID)

	auditor.WithKeyPrefix("  ")
	assert.Equal(t, "salesforce:revocation:x", auditor.entryKey("x"))
}

func TestRedisAuditor_History(t *testing.T) {
	auditor, mr := newMiniredisAuditor(t, time.Hour, 3)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, auditor.Record(ctx, AuditEntry{
			ID:              id,
			Status:          StatusSuccess,
			Username:        "jane@company.com",
			SessionsRevoked: i,
		}))
	}

	ids, err := mr.List("salesforce:revocation:user:jane@company.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c", "b"}, ids)

	mr.Del("salesforce:revocation:c")

	entries, err := auditor.History(ctx, "jane@company.com", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "d", entries[0].ID)
	assert.Equal(t, 3, entries[0].SessionsRevoked)
	assert.Equal(t, "b", entries[1].ID)

	limited, err := auditor.History(ctx, "jane@company.com", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "d", limited[0].ID)

	none, err := auditor.History(ctx, "nobody@company.com", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRedisAuditor_RecordUnreachable(t *testing.T) {
	auditor, mr := newMiniredisAuditor(t, time.Hour, 10)
	mr.Close()

	err := auditor.Record(context.Background(), AuditEntry{ID: "entry-1", Username: "jane@company.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry-1")
}

func TestRedisAuditor_HistoryErrors(t *testing.T) {
	t.Run("list read fails", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectLRange("salesforce:revocation:user:jane@company.com", 0, 9).SetErr(stderrors.New("connection reset"))

		_, err := NewRedisAuditor(client, time.Hour, 10).History(context.Background(), "jane@company.com", 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read audit history")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("entry read fails", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectLRange("salesforce:revocation:user:jane@company.com", 0, 9).SetVal([]string{"a"})
		mock.ExpectGet("salesforce:revocation:a").SetErr(stderrors.New("connection reset"))

		_, err := NewRedisAuditor(client, time.Hour, 10).History(context.Background(), "jane@company.com", 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read audit entry a")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("corrupt entry", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectLRange("salesforce:revocation:user:jane@company.com", 0, 9).SetVal([]string{"a"})
		mock.ExpectGet("salesforce:revocation:a").SetVal("{not json")

		_, err := NewRedisAuditor(client, time.Hour, 10).History(context.Background(), "jane@company.com", 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode audit entry a")
	})
}

func TestNoopAuditor(t *testing.T) {
	assert.NoError(t, NoopAuditor{}.Record(context.Background(), AuditEntry{}))
}
