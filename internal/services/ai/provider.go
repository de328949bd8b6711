package ai

import (
	"context"

	"github.com/trackwise/assistant/internal/models"
)

// Provider is the generative classifier behind the rule-based one. It is
// consulted for low-confidence and complex queries only, never on the hot
// path of a confidently classified request.
type Provider interface {
	// ClassifyIntent asks the model to classify a query, optionally using
	// session context for reference resolution hints
	ClassifyIntent(ctx context.Context, text string, sess *models.SessionContext) (*models.Intent, error)

	// Ping verifies the provider is reachable and the configured model exists
	Ping(ctx context.Context) error
}
