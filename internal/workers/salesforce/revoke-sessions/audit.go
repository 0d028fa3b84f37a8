package revokesessions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultAuditKeyPrefix namespaces audit keys when none is configured.
const DefaultAuditKeyPrefix = "salesforce:revocation"

// AuditEntry records the outcome of one invocation.
type AuditEntry struct {
	ID              string    `json:"id"`
	Status          string    `json:"status"`
	Username        string    `json:"username"`
	UserID          string    `json:"userId,omitempty"`
	SessionsFound   int       `json:"sessionsFound"`
	SessionsRevoked int       `json:"sessionsRevoked"`
	Reason          string    `json:"reason,omitempty"`
	BaseURL         string    `json:"baseUrl,omitempty"`
	RecordedAt      time.Time `json:"recordedAt"`
}

// Auditor persists audit entries. Failures never change the job outcome.
type Auditor interface {
	Record(ctx context.Context, entry AuditEntry) error
}

type NoopAuditor struct{}

func (NoopAuditor) Record(context.Context, AuditEntry) error { return nil }

// RedisAuditor stores each entry under its own key with a TTL and keeps a capped
// per-username list of entry ids, newest first.
type RedisAuditor struct {
	client       redis.Cmdable
	ttl          time.Duration
	historyLimit int64
	keyPrefix    string
}

func NewRedisAuditor(client redis.Cmdable, ttl time.Duration, historyLimit int) *RedisAuditor {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &RedisAuditor{client: client, ttl: ttl, historyLimit: int64(historyLimit), keyPrefix: DefaultAuditKeyPrefix + ":"}
}

// WithKeyPrefix namespaces every key under prefix, e.g. one per org sharing a
// Redis instance.
func (a *RedisAuditor) WithKeyPrefix(prefix string) *RedisAuditor {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = DefaultAuditKeyPrefix
	}
	a.keyPrefix = prefix + ":"
	return a
}

func (a *RedisAuditor) entryKey(id string) string {
	return a.keyPrefix + id
}

func (a *RedisAuditor) historyKey(username string) string {
	return a.keyPrefix + "user:" + username
}

func (a *RedisAuditor) Record(ctx context.Context, entry AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	history := a.historyKey(entry.Username)
	_, err = a.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, a.entryKey(entry.ID), payload, a.ttl)
		pipe.LPush(ctx, history, entry.ID)
		pipe.LTrim(ctx, history, 0, a.historyLimit-1)
		if a.ttl > 0 {
			pipe.Expire(ctx, history, a.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write audit entry %s: %w", entry.ID, err)
	}
	return nil
}

// History returns up to limit entries for username, newest first. Entries whose
// key has expired are skipped.
func (a *RedisAuditor) History(ctx context.Context, username string, limit int64) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = a.historyLimit
	}

	ids, err := a.client.LRange(ctx, a.historyKey(username), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read audit history: %w", err)
	}

	entries := make([]AuditEntry, 0, len(ids))
	for _, id := range ids {
		raw, err := a.client.Get(ctx, a.entryKey(id)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read audit entry %s: %w", id, err)
		}
		var entry AuditEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("failed to decode audit entry %s: %w", id, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
