// Package orchestrator runs the chat pipeline: validate, rate limit, load
// session, classify, resolve references, dispatch on intent, update
// session. Every run terminates in exactly one ChatResponse; internal
// failures become structured error responses, never panics or nils.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/trackwise/assistant/internal/actions"
	"github.com/trackwise/assistant/internal/classifier"
	"github.com/trackwise/assistant/internal/logger"
	"github.com/trackwise/assistant/internal/models"
	"github.com/trackwise/assistant/internal/ratelimit"
	"github.com/trackwise/assistant/internal/request"
	"github.com/trackwise/assistant/internal/services/retrieval"
	"github.com/trackwise/assistant/internal/session"
	"github.com/trackwise/assistant/internal/validation"
)

// Request is one chat turn entering the pipeline
type Request struct {
	User *models.User
	// SessionID is empty for the first turn of a conversation
	SessionID string
	Query     string
	// IdempotencyKey optionally dedupes action retries across requests
	IdempotencyKey string
}

// Pipeline wires the chat stages together
type Pipeline struct {
	sessions      session.Store
	limiter       *ratelimit.Limiter
	classifier    *classifier.Classifier
	retriever     retrieval.Retriever
	actions       *actions.Handler
	logger        *zap.Logger
	maxQueryChars int
	clock         func() time.Time
}

// New creates a pipeline
func New(
	sessions session.Store,
	limiter *ratelimit.Limiter,
	cls *classifier.Classifier,
	retriever retrieval.Retriever,
	actionHandler *actions.Handler,
	maxQueryChars int,
	log *zap.Logger,
) *Pipeline {
	return &Pipeline{
		sessions:      sessions,
		limiter:       limiter,
		classifier:    cls,
		retriever:     retriever,
		actions:       actionHandler,
		logger:        log,
		maxQueryChars: maxQueryChars,
		clock:         time.Now,
	}
}

// SetClock overrides the time source for tests
func (p *Pipeline) SetClock(clock func() time.Time) { p.clock = clock }

// Handle runs one query through the pipeline
func (p *Pipeline) Handle(ctx context.Context, req *Request) *models.ChatResponse {
	start := p.clock()
	resp := &models.ChatResponse{
		Status: models.StatusOK,
		Meta: models.ResponseMeta{
			RequestID: request.RequestID(ctx),
			SessionID: req.SessionID,
		},
	}
	defer func() {
		resp.Meta.DurationMS = time.Since(start).Milliseconds()
	}()

	if err := validation.ValidateQuery(req.Query, p.maxQueryChars); err != nil {
		return fail(resp, models.ErrCodeValidation, err.Error())
	}
	query := validation.SanitizeText(req.Query)

	limit := p.limiter.CheckAndConsume(ctx, req.User.ID)
	resp.RateLimit = rateLimitInfo(p.limiter.Config(), limit)
	if !limit.Allowed {
		resp.RateLimit.RetryAfter = limit.RetryAfter.Seconds()
		p.logger.Info("rate_limit_denied",
			zap.String("user_id", req.User.ID),
			zap.Duration("retry_after", limit.RetryAfter))
		failed := fail(resp, models.ErrCodeRateLimited, "rate limit exceeded, slow down")
		failed.Error.RetryAfter = limit.RetryAfter.Seconds()
		return failed
	}

	sess, foreign := p.loadSession(ctx, req)
	if foreign {
		return fail(resp, models.ErrCodeSessionGone, "session not found")
	}
	if sess != nil {
		resp.Meta.SessionID = sess.ID
		p.appendMessage(ctx, sess.ID, models.ChatMessage{
			SessionID: sess.ID,
			Role:      models.RoleUser,
			Text:      query,
			Timestamp: p.clock(),
		})
	}

	intent := p.classifier.Classify(ctx, query, sess)
	resp.Meta.IntentType = intent.Type
	resp.Meta.Confidence = intent.Confidence
	resp.Meta.UsedFallback = intent.UsedFallback

	p.logger.Info("query_classified",
		zap.String("user_id", req.User.ID),
		zap.String("session_id", resp.Meta.SessionID),
		zap.String("intent_type", string(intent.Type)),
		zap.Float64("confidence", intent.Confidence),
		zap.Bool("used_fallback", intent.UsedFallback),
		zap.Int("entity_count", len(intent.Entities)),
		zap.String("query", logger.SanitizeText(query, logger.MaxQueryLogLength)))

	// Classification may have waited out the fallback timeout; refresh the
	// TTL so the conversation survives the backend call that follows.
	if sess != nil {
		if err := p.sessions.ExtendTTL(ctx, sess.ID); err != nil {
			p.logger.Warn("session_extend_failed",
				zap.String("session_id", sess.ID),
				zap.Error(err))
		}
	}

	if clarify, ok := p.resolveReferences(intent, sess); !ok {
		resp.Message = clarify
		resp.Meta.IntentType = models.IntentClarification
		p.finishTurn(ctx, sess, intent, resp)
		return resp
	}
	resp.Meta.ResolvedEntities = intent.Entities

	// Confidence still below the threshold after the fallback had its say
	// becomes a clarifying question, never a dispatched guess. Navigation is
	// exempt: it is side-effect free and asks on its own when no target
	// resolves.
	if intent.Confidence < p.classifier.Weights().FallbackThreshold &&
		intent.Type != models.IntentNavigation &&
		intent.Type != models.IntentClarification {
		resp.Message = "I'm not sure what you're asking for. Could you rephrase it, for example \"show open tasks in PRJ-100\"?"
		resp.Meta.IntentType = models.IntentClarification
		p.finishTurn(ctx, sess, intent, resp)
		return resp
	}

	switch intent.Type {
	case models.IntentQuery:
		p.handleQuery(ctx, req.User, intent, resp)
	case models.IntentNavigation:
		p.handleNavigation(intent, resp)
	case models.IntentReport:
		p.handleReport(ctx, req.User, intent, resp)
	case models.IntentAction:
		p.handleAction(ctx, req, intent, resp)
	default:
		resp.Message = "I didn't quite get that. Try asking about your projects, tasks or bugs, for example \"show my open tasks\"."
	}

	p.finishTurn(ctx, sess, intent, resp)
	return resp
}

// loadSession fetches or creates the conversation. A session owned by a
// different user reports foreign=true; presenting it as not-found avoids
// confirming the id exists. Store failures degrade to a stateless turn
// rather than failing the request.
func (p *Pipeline) loadSession(ctx context.Context, req *Request) (sess *models.SessionContext, foreign bool) {
	if req.SessionID != "" {
		sess, err := p.sessions.Get(ctx, req.SessionID)
		if err == nil {
			if sess.UserID != req.User.ID {
				p.logger.Warn("session_owner_mismatch",
					zap.String("session_id", req.SessionID),
					zap.String("user_id", req.User.ID))
				return nil, true
			}
			return sess, false
		}
		if !errors.Is(err, session.ErrSessionNotFound) {
			p.logger.Warn("session_load_failed",
				zap.String("session_id", req.SessionID),
				zap.Error(err))
			return nil, false
		}
		// Expired session: fall through to a fresh one
	}

	sess, err := p.sessions.Create(ctx, req.User.ID, req.User.ClientID, "")
	if err != nil {
		p.logger.Warn("session_create_failed", zap.Error(err))
		return nil, false
	}
	return sess, false
}

func (p *Pipeline) appendMessage(ctx context.Context, sessionID string, msg models.ChatMessage) {
	if err := p.sessions.AppendMessage(ctx, sessionID, msg); err != nil {
		p.logger.Warn("session_append_failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
}

// resolveReferences binds pronouns and type-qualified mentions against the
// session's mentioned entities. Returns ok=false with a clarification
// message when a reference cannot be bound.
func (p *Pipeline) resolveReferences(intent *models.Intent, sess *models.SessionContext) (string, bool) {
	for _, ref := range intent.References {
		var entity models.ExtractedEntity
		found := false
		if sess != nil {
			entity, found = sess.ResolveReference(ref.TypeFilter)
		}
		if !found {
			if ref.TypeFilter != "" {
				return fmt.Sprintf("Which %s do you mean? I don't have one in our recent conversation.", ref.TypeFilter), false
			}
			return "What are you referring to? Please name the item, for example \"task TSK-42\".", false
		}
		intent.Entities = append(intent.Entities, entity)
	}
	intent.References = nil
	return "", true
}

func (p *Pipeline) handleQuery(ctx context.Context, user *models.User, intent *models.Intent, resp *models.ChatResponse) {
	// A single concrete non-project entity with nothing else to scope the
	// search is a detail lookup
	if target, ok := singleTarget(intent); ok && len(intent.Types) == 0 && len(intent.Filters) == 0 && intent.Temporal == nil {
		item, err := p.retriever.GetEntity(ctx, user, target)
		if err != nil {
			p.retrievalError(err, resp)
			return
		}
		resp.Message = fmt.Sprintf("%s %s: %s", item.Type, item.ID, item.Title)
		resp.Data = item
		return
	}

	filters := retrieval.Filters{
		Status:   intent.Filters["status"],
		Priority: intent.Filters["priority"],
		Assignee: intent.Filters["assignee"],
		Temporal: intent.Temporal,
	}
	if proj, ok := projectScope(intent); ok {
		filters.Project = proj
	}

	items, err := p.retriever.Search(ctx, user, intent.Types, filters)
	if err != nil {
		p.retrievalError(err, resp)
		return
	}

	switch len(items) {
	case 0:
		resp.Message = "No matching items found."
	case 1:
		resp.Message = fmt.Sprintf("Found 1 item: %s %s.", items[0].Type, items[0].ID)
	default:
		resp.Message = fmt.Sprintf("Found %d items.", len(items))
	}
	resp.Data = items
}

// handleNavigation builds a deep link from the classified target without
// touching the backend; the UI resolves it
func (p *Pipeline) handleNavigation(intent *models.Intent, resp *models.ChatResponse) {
	target, ok := singleTarget(intent)
	if !ok {
		// fall back to any resolved entity, most recent mention last
		for i := len(intent.Entities) - 1; i >= 0; i-- {
			if intent.Entities[i].Resolved() {
				target, ok = intent.Entities[i], true
				break
			}
		}
	}
	if !ok {
		resp.Message = "Where would you like to go? Name an item, for example \"open PRJ-100\"."
		resp.Meta.IntentType = models.IntentClarification
		return
	}

	link := deepLink(target)
	resp.Message = fmt.Sprintf("Opening %s %s.", target.Type, target.ID)
	resp.Data = map[string]string{"link": link}
}

func (p *Pipeline) handleReport(ctx context.Context, user *models.User, intent *models.Intent, resp *models.ChatResponse) {
	groupBy := intent.Filters["group_by"]
	if groupBy == "" {
		groupBy = "status"
	}

	spec := retrieval.ReportSpec{
		GroupBy: groupBy,
		Types:   intent.Types,
		Filters: retrieval.Filters{
			Status:   intent.Filters["status"],
			Priority: intent.Filters["priority"],
			Temporal: intent.Temporal,
		},
	}
	if proj, ok := projectScope(intent); ok {
		spec.Filters.Project = proj
	}

	report, err := p.retriever.Report(ctx, user, spec)
	if err != nil {
		p.retrievalError(err, resp)
		return
	}

	resp.Message = fmt.Sprintf("%s: %d items across %d groups.", report.Title, report.Total, len(report.Groups))
	resp.Data = report
}

func (p *Pipeline) handleAction(ctx context.Context, req *Request, intent *models.Intent, resp *models.ChatResponse) {
	actionType := models.ActionType(intent.ActionParams["action_type"])
	if actionType == "" {
		resp.Message = "What would you like me to do? I can create, complete, assign, comment, set status or priority, and schedule reminders."
		resp.Meta.IntentType = models.IntentClarification
		return
	}

	target, _ := actionTarget(intent)
	actionReq := &models.ActionRequest{
		UserID:         req.User.ID,
		Role:           req.User.Role,
		Type:           actionType,
		Target:         target,
		Params:         intent.ActionParams,
		IdempotencyKey: req.IdempotencyKey,
	}

	result, err := p.actions.Execute(ctx, actionReq)
	if err != nil {
		switch {
		case errors.Is(err, actions.ErrActionDenied):
			fail(resp, models.ErrCodeActionDenied, fmt.Sprintf("your role does not permit %s", actionType))
		case errors.Is(err, actions.ErrUnknownAction):
			fail(resp, models.ErrCodeValidation, fmt.Sprintf("unsupported action %q", actionType))
		case errors.Is(err, actions.ErrMissingTarget):
			resp.Message = fmt.Sprintf("Which item should I %s? Name it, for example \"TSK-42\".", strings.ReplaceAll(string(actionType), "_", " "))
			resp.Meta.IntentType = models.IntentClarification
		default:
			p.retrievalError(err, resp)
		}
		return
	}

	resp.Action = result
	if result.Replayed {
		resp.Message = fmt.Sprintf("Already done: %s on %s.", strings.ReplaceAll(string(result.Type), "_", " "), result.Target)
		return
	}
	if result.Status == actions.StatusScheduled {
		resp.Message = fmt.Sprintf("Reminder scheduled for %s.", result.Detail["due_at"])
		return
	}
	resp.Message = fmt.Sprintf("Done: %s on %s.", strings.ReplaceAll(string(result.Type), "_", " "), result.Target)
}

// finishTurn records the turn in the session: entities mentioned, last
// intent, and the assistant's reply
func (p *Pipeline) finishTurn(ctx context.Context, sess *models.SessionContext, intent *models.Intent, resp *models.ChatResponse) {
	if sess == nil {
		return
	}

	var resolved []models.ExtractedEntity
	for _, e := range intent.Entities {
		if e.Resolved() {
			resolved = append(resolved, e)
		}
	}

	project := ""
	if proj, ok := projectScope(intent); ok {
		project = proj
	}

	if err := p.sessions.UpdateContext(ctx, sess.ID, intent.Type, project, resolved); err != nil {
		p.logger.Warn("session_update_failed",
			zap.String("session_id", sess.ID),
			zap.Error(err))
	}

	p.appendMessage(ctx, sess.ID, models.ChatMessage{
		SessionID: sess.ID,
		Role:      models.RoleAssistant,
		Text:      resp.Message,
		Timestamp: p.clock(),
		Meta: &models.MessageMeta{
			IntentType: intent.Type,
			Confidence: intent.Confidence,
			Entities:   resolved,
		},
	})
}

func (p *Pipeline) retrievalError(err error, resp *models.ChatResponse) {
	switch {
	case errors.Is(err, retrieval.ErrNotFound):
		fail(resp, models.ErrCodeNotFound, "that item does not exist")
	case errors.Is(err, retrieval.ErrAccessDenied):
		fail(resp, models.ErrCodeAccessDenied, "you do not have access to that item")
	default:
		p.logger.Error("pipeline_backend_error", zap.String("error", logger.SanitizeError(err)))
		fail(resp, models.ErrCodeInternal, "something went wrong, please try again")
	}
}

// singleTarget returns the lone resolved non-project entity, if that is
// the whole of what the query named
func singleTarget(intent *models.Intent) (models.ExtractedEntity, bool) {
	var target models.ExtractedEntity
	count := 0
	for _, e := range intent.Entities {
		if e.Resolved() && e.Type != models.EntityProject {
			target = e
			count++
		}
	}
	return target, count == 1
}

// projectScope returns the project id scoping this query, if any
func projectScope(intent *models.Intent) (string, bool) {
	for _, e := range intent.Entities {
		if e.Type == models.EntityProject && e.Resolved() {
			return e.ID, true
		}
	}
	return "", false
}

// actionTarget picks the mutation target: the last resolved entity wins,
// matching how people correct themselves mid-sentence
func actionTarget(intent *models.Intent) (models.ExtractedEntity, bool) {
	for i := len(intent.Entities) - 1; i >= 0; i-- {
		if intent.Entities[i].Resolved() {
			return intent.Entities[i], true
		}
	}
	if len(intent.Entities) > 0 {
		return intent.Entities[len(intent.Entities)-1], false
	}
	return models.ExtractedEntity{}, false
}

func deepLink(e models.ExtractedEntity) string {
	switch e.Type {
	case models.EntityProject:
		return "/projects/" + e.ID
	case models.EntityProgram:
		return "/programs/" + e.ID
	default:
		return "/items/" + e.ID
	}
}

func rateLimitInfo(cfg ratelimit.Config, res ratelimit.Result) *models.RateLimitInfo {
	return &models.RateLimitInfo{
		LimitMinute:     int(cfg.MinuteCapacity()),
		LimitHour:       cfg.HourCapacity,
		RemainingMinute: res.RemainingMinute,
		RemainingHour:   res.RemainingHour,
	}
}

func fail(resp *models.ChatResponse, code, message string) *models.ChatResponse {
	resp.Status = models.StatusError
	resp.Message = message
	resp.Error = &models.ErrorInfo{Code: code, Message: message}
	return resp
}
