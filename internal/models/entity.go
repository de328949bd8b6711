package models

// EntityType identifies the kind of work item an extracted reference points at
type EntityType string

const (
	EntityProject EntityType = "project"
	EntityTask    EntityType = "task"
	EntityBug     EntityType = "bug"
	EntitySubtask EntityType = "subtask"
	EntityStory   EntityType = "story"
	EntityUseCase EntityType = "usecase"
	EntityProgram EntityType = "program"
)

// ValidEntityType reports whether t is one of the known entity types
func ValidEntityType(t EntityType) bool {
	switch t {
	case EntityProject, EntityTask, EntityBug, EntitySubtask, EntityStory, EntityUseCase, EntityProgram:
		return true
	default:
		return false
	}
}

// ExtractedEntity is a structured reference pulled out of free text.
// Entities extracted without an explicit ID carry only a name and must be
// resolved downstream before use.
type ExtractedEntity struct {
	Type EntityType `json:"type"`
	ID   string     `json:"id,omitempty"`
	Name string     `json:"name,omitempty"`
	// TypeConfidence is set when the type was inferred from surrounding
	// words rather than the identifier prefix itself.
	TypeConfidence float64 `json:"type_confidence,omitempty"`
}

// Key returns the dedup key for the mentioned-entities list. Entities with
// the same (type, id) pair are the same mention; name-only entities key on
// the name instead.
func (e ExtractedEntity) Key() string {
	if e.ID != "" {
		return string(e.Type) + ":" + e.ID
	}
	return string(e.Type) + ":name:" + e.Name
}

// Resolved reports whether the entity carries a concrete identifier
func (e ExtractedEntity) Resolved() bool {
	return e.ID != ""
}

// EntityReference is a pronoun or type-qualified mention ("it", "that task")
// that the classifier could not bind to a concrete identifier. The
// orchestrator resolves it against the session's mentioned-entities list.
type EntityReference struct {
	// Raw is the matched text, kept for clarification messages
	Raw string `json:"raw"`
	// TypeFilter narrows resolution to one entity type; empty means any
	TypeFilter EntityType `json:"type_filter,omitempty"`
}
