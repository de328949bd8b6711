package models

import "time"

const (
	// DefaultMaxMessages is how many chat messages a session retains;
	// older messages are evicted FIFO.
	DefaultMaxMessages = 10
	// DefaultMaxEntities bounds the mentioned-entities list
	DefaultMaxEntities = 20
)

// MessageRole identifies who authored a chat message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// MessageMeta is optional structured metadata attached to a message
type MessageMeta struct {
	IntentType IntentType        `json:"intent_type,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
	Entities   []ExtractedEntity `json:"entities,omitempty"`
}

// ChatMessage is one turn of a conversation, owned by its session
type ChatMessage struct {
	SessionID string       `json:"session_id"`
	Role      MessageRole  `json:"role"`
	Text      string       `json:"text"`
	Timestamp time.Time    `json:"timestamp"`
	Meta      *MessageMeta `json:"meta,omitempty"`
}

// SessionContext is the TTL-bound conversation state for one user. The
// mentioned-entities list is ordered most-recent-last and never holds two
// entries with the same (type, id) pair.
type SessionContext struct {
	ID            string            `json:"id"`
	UserID        string            `json:"user_id"`
	ClientID      string            `json:"client_id,omitempty"`
	ActiveProject string            `json:"active_project,omitempty"`
	LastIntent    IntentType        `json:"last_intent,omitempty"`
	Entities      []ExtractedEntity `json:"entities,omitempty"`
	Messages      []ChatMessage     `json:"messages,omitempty"`
	LastActivity  time.Time         `json:"last_activity"`
	CreatedAt     time.Time         `json:"created_at"`
}

// AppendMessage appends a message and evicts the oldest beyond keep
func (s *SessionContext) AppendMessage(msg ChatMessage, keep int) {
	if keep <= 0 {
		keep = DefaultMaxMessages
	}
	s.Messages = append(s.Messages, msg)
	if len(s.Messages) > keep {
		s.Messages = s.Messages[len(s.Messages)-keep:]
	}
}

// MergeEntities merges newly mentioned entities into the list. A re-mention
// moves the entity to the end rather than duplicating it; the list is
// trimmed from the front beyond max.
func (s *SessionContext) MergeEntities(newEntities []ExtractedEntity, max int) {
	if max <= 0 {
		max = DefaultMaxEntities
	}
	for _, e := range newEntities {
		key := e.Key()
		for i, existing := range s.Entities {
			if existing.Key() == key {
				s.Entities = append(s.Entities[:i], s.Entities[i+1:]...)
				break
			}
		}
		s.Entities = append(s.Entities, e)
	}
	if len(s.Entities) > max {
		s.Entities = s.Entities[len(s.Entities)-max:]
	}
}

// ResolveReference returns the most recently mentioned entity, optionally
// filtered by type. The second return is false when nothing matches; that
// is not an error, callers ask for clarification instead.
func (s *SessionContext) ResolveReference(typeFilter EntityType) (ExtractedEntity, bool) {
	for i := len(s.Entities) - 1; i >= 0; i-- {
		e := s.Entities[i]
		if typeFilter != "" && e.Type != typeFilter {
			continue
		}
		return e, true
	}
	return ExtractedEntity{}, false
}
