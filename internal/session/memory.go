package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trackwise/assistant/internal/models"
)

// MemoryStore is an in-process Store used by tests and single-instance
// development runs. Expiry is logical: an entry past its inactivity TTL is
// treated as gone on access, matching the external store's behavior.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
	cfg      Config
	now      func() time.Time
}

type memorySession struct {
	data     models.SessionContext
	deadline time.Time
}

// NewMemoryStore creates an in-memory session store
func NewMemoryStore(cfg Config) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memorySession),
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// SetClock overrides the time source for expiry tests
func (s *MemoryStore) SetClock(now func() time.Time) { s.now = now }

// Create starts a new session
func (s *MemoryStore) Create(ctx context.Context, userID, clientID, projectID string) (*models.SessionContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	sess := models.SessionContext{
		ID:            uuid.NewString(),
		UserID:        userID,
		ClientID:      clientID,
		ActiveProject: projectID,
		LastActivity:  now,
		CreatedAt:     now,
	}
	s.sessions[sess.ID] = &memorySession{data: sess, deadline: now.Add(s.cfg.TTL)}

	out := sess
	return &out, nil
}

// Get returns a copy of the session, or ErrSessionNotFound once expired
func (s *MemoryStore) Get(ctx context.Context, sessionID string) (*models.SessionContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.live(sessionID)
	if err != nil {
		return nil, err
	}
	out := entry.data
	return &out, nil
}

// AppendMessage appends, trims and refreshes the TTL
func (s *MemoryStore) AppendMessage(ctx context.Context, sessionID string, msg models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.live(sessionID)
	if err != nil {
		return err
	}
	msg.SessionID = sessionID
	entry.data.AppendMessage(msg, s.cfg.MaxMessages)
	s.touch(entry)
	return nil
}

// UpdateContext merges entities and records the turn's intent
func (s *MemoryStore) UpdateContext(ctx context.Context, sessionID string, intentType models.IntentType, projectID string, entities []models.ExtractedEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.live(sessionID)
	if err != nil {
		return err
	}
	if intentType != "" {
		entry.data.LastIntent = intentType
	}
	if projectID != "" {
		entry.data.ActiveProject = projectID
	}
	entry.data.MergeEntities(entities, s.cfg.MaxEntities)
	s.touch(entry)
	return nil
}

// ResolveReference resolves against the mentioned-entities list
func (s *MemoryStore) ResolveReference(ctx context.Context, sessionID string, typeFilter models.EntityType) (models.ExtractedEntity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.live(sessionID)
	if err != nil {
		return models.ExtractedEntity{}, false, err
	}
	e, found := entry.data.ResolveReference(typeFilter)
	return e, found, nil
}

// Delete removes the session and its messages
func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.live(sessionID); err != nil {
		return err
	}
	delete(s.sessions, sessionID)
	return nil
}

// ExtendTTL refreshes the inactivity window
func (s *MemoryStore) ExtendTTL(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.live(sessionID)
	if err != nil {
		return err
	}
	s.touch(entry)
	return nil
}

// Count returns the number of live sessions
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	count := 0
	for _, entry := range s.sessions {
		if now.Before(entry.deadline) {
			count++
		}
	}
	return count, nil
}

// Ping always succeeds for the in-process store
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// live returns the entry if present and unexpired, pruning it otherwise.
// Caller holds the lock.
func (s *MemoryStore) live(sessionID string) (*memorySession, error) {
	entry, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !s.now().Before(entry.deadline) {
		delete(s.sessions, sessionID)
		return nil, ErrSessionNotFound
	}
	return entry, nil
}

// touch refreshes activity and deadline. Caller holds the lock.
func (s *MemoryStore) touch(entry *memorySession) {
	now := s.now().UTC()
	entry.data.LastActivity = now
	entry.deadline = now.Add(s.cfg.TTL)
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*RedisStore)(nil)
