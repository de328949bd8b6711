// Package retrieval talks to the project management backend. The assistant
// holds no work item data of its own: every read goes through Retriever and
// every whitelisted mutation through Mutator, with the backend enforcing
// per-item authorization.
package retrieval

import (
	"context"
	"errors"

	"github.com/trackwise/assistant/internal/models"
)

var (
	// ErrNotFound means the backend has no item with that identifier
	ErrNotFound = errors.New("entity not found")
	// ErrAccessDenied means the item exists but the user may not see it
	ErrAccessDenied = errors.New("entity access denied")
)

// Filters narrow a search to matching work items
type Filters struct {
	Status   string
	Priority string
	Assignee string
	Project  string
	Temporal *models.TemporalFilter
}

// ReportSpec describes an aggregation request
type ReportSpec struct {
	GroupBy string
	Types   []models.EntityType
	Filters Filters
}

// ReportGroup is one bucket of an aggregation
type ReportGroup struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// ReportResult is the aggregation outcome rendered into REPORT responses
type ReportResult struct {
	Title  string        `json:"title"`
	Total  int           `json:"total"`
	Groups []ReportGroup `json:"groups"`
}

// Retriever reads work items on behalf of a user
type Retriever interface {
	// GetEntity fetches one item by id, or resolves a name when the
	// extracted entity carries no id
	GetEntity(ctx context.Context, user *models.User, entity models.ExtractedEntity) (*models.WorkItem, error)

	// Search lists items of the given types matching the filters
	Search(ctx context.Context, user *models.User, types []models.EntityType, f Filters) ([]models.WorkItem, error)

	// Report runs an aggregation
	Report(ctx context.Context, user *models.User, spec ReportSpec) (*ReportResult, error)

	// Ping verifies the backend is reachable
	Ping(ctx context.Context) error
}

// Mutator applies a whitelisted mutation and returns a human-readable
// detail line for the chat response
type Mutator interface {
	Apply(ctx context.Context, req *models.ActionRequest) (string, error)
}
