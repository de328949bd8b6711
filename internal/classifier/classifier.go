package classifier

import (
	"context"

	"go.uber.org/zap"

	"github.com/trackwise/assistant/internal/models"
)

// Fallback is the generative classifier consulted when rules are not
// confident. Implemented by services/ai.
type Fallback interface {
	ClassifyIntent(ctx context.Context, text string, sess *models.SessionContext) (*models.Intent, error)
}

// Classifier turns a raw query into an Intent. Rule-based extraction and
// scoring always run; the fallback only runs on low confidence or complex
// queries, and its failure degrades to the rule result instead of erroring.
type Classifier struct {
	weights  Weights
	fallback Fallback
	logger   *zap.Logger
}

// New creates a Classifier. fallback may be nil, in which case low
// confidence results are returned as-is with LowTrust set.
func New(fallback Fallback, weights Weights, logger *zap.Logger) *Classifier {
	if weights.Families == nil {
		weights = DefaultWeights()
	}
	return &Classifier{weights: weights, fallback: fallback, logger: logger}
}

// Weights returns the active weight table
func (c *Classifier) Weights() Weights { return c.weights }

// Classify never returns an error: the rule-based path always produces a
// result, and fallback failures only lower trust.
func (c *Classifier) Classify(ctx context.Context, text string, sess *models.SessionContext) *models.Intent {
	n := normalize(text)
	ex := extract(n)

	intentType, confidence := c.weights.scoreFamilies(n)
	if len(ex.Entities) > 0 {
		confidence += c.weights.EntityBonus
	}
	if sess != nil && sess.LastIntent == intentType && sess.LastIntent != "" {
		confidence += c.weights.ContinuityBonus
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	intent := &models.Intent{
		Type:         intentType,
		Confidence:   confidence,
		Entities:     ex.Entities,
		References:   ex.References,
		Types:        ex.Types,
		Temporal:     ex.Temporal,
		Filters:      ex.Filters,
		ActionParams: ex.ActionParams,
	}

	complex := c.weights.isComplex(n)
	if confidence >= c.weights.FallbackThreshold && !complex {
		return intent
	}

	if c.fallback == nil {
		intent.LowTrust = confidence < c.weights.FallbackThreshold
		return intent
	}

	fb, err := c.fallback.ClassifyIntent(ctx, n.Original, sess)
	if err != nil {
		c.logger.Warn("intent_fallback_failed",
			zap.String("rule_type", string(intent.Type)),
			zap.Float64("rule_confidence", intent.Confidence),
			zap.Error(err))
		intent.LowTrust = true
		return intent
	}

	return c.merge(intent, fb, complex)
}

// merge combines the rule result with the fallback result. A confident rule
// type survives a complexity-triggered fallback; below the threshold the
// fallback's type wins. Structured extraction is unioned either way since
// the rules never hallucinate identifiers.
func (c *Classifier) merge(rule, fb *models.Intent, complex bool) *models.Intent {
	out := *rule
	out.UsedFallback = true

	ruleConfident := rule.Confidence >= c.weights.FallbackThreshold
	if !ruleConfident && models.ValidIntentType(fb.Type) {
		out.Type = fb.Type
		out.Confidence = fb.Confidence
	} else if fb.Type == out.Type && fb.Confidence > out.Confidence {
		out.Confidence = fb.Confidence
	}
	if out.Confidence > 1.0 {
		out.Confidence = 1.0
	}

	seen := map[string]bool{}
	for _, e := range out.Entities {
		seen[e.Key()] = true
	}
	for _, e := range fb.Entities {
		if !models.ValidEntityType(e.Type) {
			continue
		}
		if key := e.Key(); !seen[key] {
			seen[key] = true
			out.Entities = append(out.Entities, e)
		}
	}

	if out.Temporal == nil {
		out.Temporal = fb.Temporal
	}
	for k, v := range fb.Filters {
		if _, ok := out.Filters[k]; !ok {
			out.Filters[k] = v
		}
	}
	for k, v := range fb.ActionParams {
		if _, ok := out.ActionParams[k]; !ok {
			out.ActionParams[k] = v
		}
	}
	if len(out.References) == 0 {
		out.References = fb.References
	}

	return &out
}
