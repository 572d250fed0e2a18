package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/review-moderation/backend/pkg/logger"
)

var ErrConcurrentUpdate = errors.New("session was modified concurrently")

const (
	keyPrefix = "review-session:"

	// updateAttempts bounds how often Update re-reads and re-applies fn when
	// the key changes between WATCH and EXEC.
	updateAttempts = 3
)

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis session store initialized", zap.String("addr", addr), zap.Duration("ttl", ttl))

	return &RedisStore{client: client, ttl: ttl, now: time.Now}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(id string) string {
	return keyPrefix + id
}

func (s *RedisStore) Create(ctx context.Context) (*Session, error) {
	sess := New(uuid.NewString(), s.now())

	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(sess.ID), data, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("session id collision: %s", sess.ID)
	}

	logger.Debug("Session created", zap.String("session_id", sess.ID))
	return sess, nil
}

// Get is read-only so it never aborts a concurrent Update. The TTL slides on
// writes only.
func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &sess, nil
}

// Update uses WATCH so two submissions racing on one session cannot both
// move it into progress. On a conflict fn is re-applied to the fresh session,
// so the loser of a start race sees ErrAnalysisInProgress; ErrConcurrentUpdate
// is returned only when every attempt conflicts.
func (s *RedisStore) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	for attempt := 0; attempt < updateAttempts; attempt++ {
		updated, err := s.update(ctx, id, fn)
		if errors.Is(err, redis.TxFailedErr) {
			logger.Debug("Session update conflicted", zap.String("session_id", id), zap.Int("attempt", attempt+1))
			continue
		}
		return updated, err
	}
	return nil, ErrConcurrentUpdate
}

func (s *RedisStore) update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	key := s.key(id)
	var updated *Session

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get session: %w", err)
		}

		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}

		if err := fn(&sess); err != nil {
			return err
		}

		out, err := json.Marshal(&sess)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}

		updated = &sess
		return nil
	}, key)

	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}
