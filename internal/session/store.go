// Package session holds TTL-bound conversation state in a shared store so
// any service instance can pick up a conversation mid-flight. Expiry is
// enforced by the store itself; there is no application-side GC pass.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/trackwise/assistant/internal/models"
)

// ErrSessionNotFound is returned once a session's TTL has elapsed or it
// was explicitly deleted.
var ErrSessionNotFound = errors.New("session not found")

// Config tunes session retention
type Config struct {
	// TTL is the inactivity window after which a session expires
	TTL time.Duration
	// MaxMessages bounds the per-session message history (FIFO eviction)
	MaxMessages int
	// MaxEntities bounds the mentioned-entities list
	MaxEntities int
}

// DefaultConfig returns the standard retention settings
func DefaultConfig() Config {
	return Config{
		TTL:         30 * time.Minute,
		MaxMessages: models.DefaultMaxMessages,
		MaxEntities: models.DefaultMaxEntities,
	}
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = 30 * time.Minute
	}
	if c.MaxMessages <= 0 {
		c.MaxMessages = models.DefaultMaxMessages
	}
	if c.MaxEntities <= 0 {
		c.MaxEntities = models.DefaultMaxEntities
	}
	return c
}

// Store is the session store contract. Implementations must make each
// mutation an atomic read-modify-write so concurrent requests from the
// same user never silently drop a mentioned entity.
type Store interface {
	// Create starts a new session with an empty history and a fresh TTL
	Create(ctx context.Context, userID, clientID, projectID string) (*models.SessionContext, error)

	// Get returns the session, or ErrSessionNotFound once expired
	Get(ctx context.Context, sessionID string) (*models.SessionContext, error)

	// AppendMessage appends and trims history, refreshing the TTL
	AppendMessage(ctx context.Context, sessionID string, msg models.ChatMessage) error

	// UpdateContext merges new entities (dedup, move-to-end), records the
	// last intent type and optionally the active project, refreshing the
	// TTL. Zero values leave the corresponding field untouched.
	UpdateContext(ctx context.Context, sessionID string, intentType models.IntentType, projectID string, entities []models.ExtractedEntity) error

	// ResolveReference returns the most recently mentioned entity,
	// optionally filtered by type. found=false is not an error.
	ResolveReference(ctx context.Context, sessionID string, typeFilter models.EntityType) (models.ExtractedEntity, bool, error)

	// Delete removes the session and its messages
	Delete(ctx context.Context, sessionID string) error

	// ExtendTTL is a best-effort refresh used to keep a conversation
	// alive across slow external calls
	ExtendTTL(ctx context.Context, sessionID string) error

	// Count returns the number of live sessions (monitoring only)
	Count(ctx context.Context) (int, error)

	// Ping checks store reachability for health reporting
	Ping(ctx context.Context) error
}
