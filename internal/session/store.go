package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/review-moderation/backend/pkg/logger"
)

type Store interface {
	Create(ctx context.Context) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	// Update applies fn to the stored session atomically. The session is
	// only written back when fn returns nil.
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

type entry struct {
	session  *Session
	lastSeen time.Time
}

type MemoryStore struct {
	mu            sync.Mutex
	sessions      map[string]*entry
	ttl           time.Duration
	now           func() time.Time
	cleanupTicker *time.Ticker
	done          chan struct{}
	closeOnce     sync.Once
}

// NewMemoryStore keeps sessions in process. Sessions idle longer than ttl are
// dropped by a background sweep; ttl <= 0 disables the sweep.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		now:      time.Now,
		done:     make(chan struct{}),
	}

	if ttl > 0 {
		interval := ttl / 2
		if interval > 5*time.Minute {
			interval = 5 * time.Minute
		}
		s.cleanupTicker = time.NewTicker(interval)
		go s.cleanup()
	}

	return s
}

func (s *MemoryStore) Create(_ context.Context) (*Session, error) {
	now := s.now()
	sess := New(uuid.NewString(), now)

	s.mu.Lock()
	s.sessions[sess.ID] = &entry{session: sess, lastSeen: now}
	s.mu.Unlock()

	return sess.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.lastSeen = s.now()
	return e.session.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(*Session) error) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	working := e.session.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}

	e.session = working
	e.lastSeen = s.now()
	return working.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		if s.cleanupTicker != nil {
			s.cleanupTicker.Stop()
		}
		close(s.done)
	})
	return nil
}

func (s *MemoryStore) cleanup() {
	for {
		select {
		case <-s.done:
			return
		case <-s.cleanupTicker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, e := range s.sessions {
		// An in-flight cycle keeps its session alive.
		if e.session.InProgress() {
			continue
		}
		if now.Sub(e.lastSeen) > s.ttl {
			delete(s.sessions, id)
			removed++
		}
	}

	if removed > 0 {
		logger.Debug("Expired sessions removed", zap.Int("count", removed))
	}
}
