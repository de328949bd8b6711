package models

import "time"

// WorkItem is a project management record returned by the retrieval
// backend. The assistant never owns these; it only reads them and requests
// whitelisted mutations.
type WorkItem struct {
	ID        string     `json:"id"`
	Type      EntityType `json:"type"`
	Title     string     `json:"title"`
	Status    string     `json:"status,omitempty"`
	Priority  string     `json:"priority,omitempty"`
	Assignee  string     `json:"assignee,omitempty"`
	ProjectID string     `json:"project_id,omitempty"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// DeepLink returns the UI path for a work item, used by navigation responses
func (w WorkItem) DeepLink() string {
	switch w.Type {
	case EntityProject:
		return "/projects/" + w.ID
	case EntityProgram:
		return "/programs/" + w.ID
	default:
		return "/items/" + w.ID
	}
}
