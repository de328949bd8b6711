package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"

	"github.com/trackwise/assistant/internal/logger"
	"github.com/trackwise/assistant/internal/models"
	"github.com/trackwise/assistant/internal/request"
)

const (
	// DefaultOpenAIModel is the default model to use
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout bounds every classification call; a slow model must
	// never stall the chat pipeline longer than this
	DefaultTimeout = 15 * time.Second

	// ErrNoChoicesInResponse is returned when the API response has no choices
	ErrNoChoicesInResponse = "no choices in response"

	// maxContextEntities is how many recently mentioned entities are shown
	// to the model
	maxContextEntities = 8
)

// OpenAIProvider implements Provider using OpenAI's chat completions API
type OpenAIProvider struct {
	client    openai.Client
	model     string
	timeout   time.Duration
	logger    *zap.Logger
	debugMode bool
}

// NewOpenAIProvider creates a provider with default base URL and timeout
func NewOpenAIProvider(apiKey string, model string) *OpenAIProvider {
	return NewOpenAIProviderWithLogger(apiKey, DefaultOpenAIBaseURL, model, DefaultTimeout, nil, false)
}

// NewOpenAIProviderWithLogger creates a provider with logger support
func NewOpenAIProviderWithLogger(apiKey string, baseURL string, model string, timeout time.Duration, log *zap.Logger, debugMode bool) *OpenAIProvider {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := &http.Client{
		Timeout: timeout,
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
	)

	return &OpenAIProvider{
		client:    client,
		model:     model,
		timeout:   timeout,
		logger:    log,
		debugMode: debugMode,
	}
}

// ClassifyIntent asks the model to classify a query into one of the five
// intent types, extracting entities and parameters along the way
func (p *OpenAIProvider) ClassifyIntent(ctx context.Context, text string, sess *models.SessionContext) (*models.Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	prompt := buildClassificationPrompt(text, sess)
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage("You classify queries against a project management system. Respond with valid JSON only."),
		openai.UserMessage(prompt),
	}
	req := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	requestID := request.RequestID(ctx)
	if p.logger != nil && p.debugMode {
		p.logger.Debug("llm_api_request",
			zap.String("operation", "classify_intent"),
			zap.String("model", p.model),
			zap.Int("prompt_length", len(prompt)),
			zap.String("prompt_preview", logger.SanitizeText(prompt, 10000)),
			zap.String("request_id", requestID),
		)
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, req)
	latency := time.Since(start)
	if err != nil {
		if p.logger != nil && p.debugMode {
			p.logger.Debug("llm_api_error",
				zap.String("operation", "classify_intent"),
				zap.String("model", p.model),
				zap.Error(err),
				zap.String("request_id", requestID),
				zap.Int64("latency_ms", latency.Milliseconds()),
			)
		}
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return nil, fmt.Errorf("failed to classify intent: %w", apiErr)
		}
		return nil, fmt.Errorf("failed to classify intent: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New(ErrNoChoicesInResponse)
	}

	content := resp.Choices[0].Message.Content
	if p.logger != nil && p.debugMode {
		p.logger.Debug("llm_api_response",
			zap.String("operation", "classify_intent"),
			zap.String("model", p.model),
			zap.Int("response_length", len(content)),
			zap.String("response_preview", logger.SanitizeText(content, 10000)),
			zap.String("request_id", requestID),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
	}

	return parseAndValidateIntentResponse(content)
}

// Ping checks that the configured model is visible to the API key
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	_, err := p.client.Models.Get(ctx, p.model)
	return err
}

// parseAndValidateIntentResponse decodes the model's JSON, slicing out the
// outermost object when the model wrapped it in prose
func parseAndValidateIntentResponse(content string) (*models.Intent, error) {
	var payload struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
		Entities   []struct {
			Type string `json:"type"`
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"entities"`
		References []struct {
			Raw        string `json:"raw"`
			TypeFilter string `json:"type_filter"`
		} `json:"references"`
		Temporal     *models.TemporalFilter `json:"temporal"`
		Filters      map[string]string      `json:"filters"`
		ActionParams map[string]string      `json:"action_params"`
	}

	raw := content
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		start := strings.Index(raw, "{")
		end := strings.LastIndex(raw, "}")
		if start == -1 || end <= start {
			return nil, fmt.Errorf("failed to parse intent response: %w", err)
		}
		if err := json.Unmarshal([]byte(raw[start:end+1]), &payload); err != nil {
			return nil, fmt.Errorf("failed to parse intent response: %w", err)
		}
	}

	intentType := models.IntentType(strings.ToUpper(strings.TrimSpace(payload.Intent)))
	if !models.ValidIntentType(intentType) {
		return nil, fmt.Errorf("model returned unknown intent type %q", payload.Intent)
	}

	confidence := payload.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	intent := &models.Intent{
		Type:         intentType,
		Confidence:   confidence,
		Temporal:     payload.Temporal,
		Filters:      payload.Filters,
		ActionParams: payload.ActionParams,
	}
	for _, e := range payload.Entities {
		t := models.EntityType(strings.ToLower(e.Type))
		if !models.ValidEntityType(t) || (e.ID == "" && e.Name == "") {
			continue
		}
		intent.Entities = append(intent.Entities, models.ExtractedEntity{
			Type: t,
			ID:   strings.ToUpper(e.ID),
			Name: e.Name,
		})
	}
	for _, r := range payload.References {
		if r.Raw == "" {
			continue
		}
		ref := models.EntityReference{Raw: r.Raw}
		if t := models.EntityType(strings.ToLower(r.TypeFilter)); models.ValidEntityType(t) {
			ref.TypeFilter = t
		}
		intent.References = append(intent.References, ref)
	}

	return intent, nil
}

// buildClassificationPrompt renders the query plus session hints into the
// classification instruction
func buildClassificationPrompt(text string, sess *models.SessionContext) string {
	var b strings.Builder

	b.WriteString(`Classify the user query into exactly one intent:
- QUERY: read or search work items
- ACTION: mutate a work item (create, complete, assign, set status/priority, comment, schedule a reminder)
- NAVIGATION: open or jump to a specific item or view
- REPORT: aggregate, summarize or chart data
- CLARIFICATION: the query is about the conversation itself or cannot be acted on

Entity types: project, task, bug, subtask, story, usecase, program.
Identifiers look like PRJ-100, TSK-42, BUG-7, SUB-3, STY-9, UC-2, PGM-1.

`)
	fmt.Fprintf(&b, "User query: %q\n", text)

	if sess != nil {
		if sess.LastIntent != "" {
			fmt.Fprintf(&b, "\nPrevious intent in this conversation: %s\n", sess.LastIntent)
		}
		if sess.ActiveProject != "" {
			fmt.Fprintf(&b, "Active project: %s\n", sess.ActiveProject)
		}
		if len(sess.Entities) > 0 {
			b.WriteString("Recently mentioned items (oldest first):\n")
			ents := sess.Entities
			if len(ents) > maxContextEntities {
				ents = ents[len(ents)-maxContextEntities:]
			}
			for _, e := range ents {
				if e.ID != "" {
					fmt.Fprintf(&b, "- %s %s\n", e.Type, e.ID)
				} else {
					fmt.Fprintf(&b, "- %s %q\n", e.Type, e.Name)
				}
			}
		}
	}

	b.WriteString(`
Respond with a JSON object in this format:
{
  "intent": "QUERY" | "ACTION" | "NAVIGATION" | "REPORT" | "CLARIFICATION",
  "confidence": 0.0-1.0,
  "entities": [{"type": "task", "id": "TSK-42", "name": ""}],
  "references": [{"raw": "that task", "type_filter": "task"}],
  "temporal": {"period": "last_week"} or {"start": "2026-01-01T00:00:00Z", "end": "2026-02-01T00:00:00Z"} or null,
  "filters": {"status": "open", "priority": "high"},
  "action_params": {"assignee": "maria", "remind_in": "30m", "title": ""}
}

Rules:
- Only list entities actually present in the query; never invent identifiers.
- Use "references" for pronouns or type-qualified mentions with no identifier.
- Omit empty fields. Return only valid JSON.`)

	return b.String()
}

var _ Provider = (*OpenAIProvider)(nil)
