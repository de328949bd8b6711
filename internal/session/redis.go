package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/trackwise/assistant/internal/models"
)

const sessionKeyPrefix = "chat:session:"

// maxTxRetries bounds optimistic-lock retries under WATCH contention
const maxTxRetries = 5

// RedisStore implements Store on a shared Redis instance. Sessions are
// stored as one JSON value per key with the TTL on the key itself, so
// expiry needs no application sweep and messages die with their session.
// Mutations use WATCH-based optimistic transactions.
type RedisStore struct {
	client *redis.Client
	cfg    Config
}

// NewRedisStore connects to Redis and verifies reachability
func NewRedisStore(redisURL string, cfg Config) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client, cfg: cfg.withDefaults()}, nil
}

// NewRedisStoreWithClient wraps an existing client (shared with the rate
// limiter) instead of opening a second connection pool.
func NewRedisStoreWithClient(client *redis.Client, cfg Config) *RedisStore {
	return &RedisStore{client: client, cfg: cfg.withDefaults()}
}

// Client exposes the underlying connection for sharing
func (s *RedisStore) Client() *redis.Client { return s.client }

// Close closes the Redis connection
func (s *RedisStore) Close() error { return s.client.Close() }

// Ping checks Redis reachability
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func sessionKey(id string) string { return sessionKeyPrefix + id }

// Create starts a new session with a fresh TTL
func (s *RedisStore) Create(ctx context.Context, userID, clientID, projectID string) (*models.SessionContext, error) {
	now := time.Now().UTC()
	sess := &models.SessionContext{
		ID:            uuid.NewString(),
		UserID:        userID,
		ClientID:      clientID,
		ActiveProject: projectID,
		LastActivity:  now,
		CreatedAt:     now,
	}

	if err := s.write(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns the session, or ErrSessionNotFound once the TTL elapsed
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*models.SessionContext, error) {
	data, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var sess models.SessionContext
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &sess, nil
}

// AppendMessage appends, trims to the retained window and refreshes the TTL
func (s *RedisStore) AppendMessage(ctx context.Context, sessionID string, msg models.ChatMessage) error {
	return s.mutate(ctx, sessionID, func(sess *models.SessionContext) {
		msg.SessionID = sessionID
		sess.AppendMessage(msg, s.cfg.MaxMessages)
		sess.LastActivity = time.Now().UTC()
	})
}

// UpdateContext merges entities and records the turn's intent
func (s *RedisStore) UpdateContext(ctx context.Context, sessionID string, intentType models.IntentType, projectID string, entities []models.ExtractedEntity) error {
	return s.mutate(ctx, sessionID, func(sess *models.SessionContext) {
		if intentType != "" {
			sess.LastIntent = intentType
		}
		if projectID != "" {
			sess.ActiveProject = projectID
		}
		sess.MergeEntities(entities, s.cfg.MaxEntities)
		sess.LastActivity = time.Now().UTC()
	})
}

// ResolveReference reads the session and resolves against its entity list
func (s *RedisStore) ResolveReference(ctx context.Context, sessionID string, typeFilter models.EntityType) (models.ExtractedEntity, bool, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return models.ExtractedEntity{}, false, err
	}
	e, found := sess.ResolveReference(typeFilter)
	return e, found, nil
}

// Delete removes the session and its messages
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	n, err := s.client.Del(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ExtendTTL refreshes the inactivity window without touching the payload.
// TTL refreshes from concurrent requests are last-write-wins and harmless.
func (s *RedisStore) ExtendTTL(ctx context.Context, sessionID string) error {
	ok, err := s.client.Expire(ctx, sessionKey(sessionID), s.cfg.TTL).Result()
	if err != nil {
		return fmt.Errorf("failed to extend session TTL: %w", err)
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

// Count scans for live session keys. Monitoring only; correctness never
// depends on it.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	var count int
	iter := s.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

// write stores the session JSON with a fresh TTL
func (s *RedisStore) write(ctx context.Context, sess *models.SessionContext) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(sess.ID), data, s.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// mutate performs an optimistic read-modify-write under WATCH so two
// concurrent turns cannot lose each other's entity mentions.
func (s *RedisStore) mutate(ctx context.Context, sessionID string, apply func(*models.SessionContext)) error {
	key := sessionKey(sessionID)

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load session: %w", err)
		}

		var sess models.SessionContext
		if err := json.Unmarshal(data, &sess); err != nil {
			return fmt.Errorf("failed to decode session: %w", err)
		}

		apply(&sess)

		updated, err := json.Marshal(&sess)
		if err != nil {
			return fmt.Errorf("failed to encode session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, s.cfg.TTL)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("session update contention on %s: %w", sessionID, redis.TxFailedErr)
}
