package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aldan/opschat/internal/metrics"
	"github.com/aldan/opschat/internal/tracing"
	"github.com/aldan/opschat/pkg/engine"
	"github.com/aldan/opschat/pkg/rescache"
	"github.com/aldan/opschat/pkg/session"
	"github.com/aldan/opschat/pkg/toolregistry"
	"github.com/aldan/opschat/pkg/turnqueue"
)

// Defaults for turn execution.
const (
	DefaultMaxRounds       = 5
	DefaultTurnTimeout     = 120 * time.Second
	DefaultToolTimeout     = 30 * time.Second
	DefaultToolParallelism = 4
)

// exhaustedMessage is appended when the round bound is hit. Hitting
// the bound is a designed terminal state, not an error.
const exhaustedMessage = "I wasn't able to finish working through the tools within the allowed number of steps. Here is where I got to; please narrow the question or try again."

// Config holds orchestrator dependencies and tuning.
type Config struct {
	Store    *session.Store
	Registry *toolregistry.Registry
	Engine   engine.Client
	Queue    *turnqueue.Queue

	// Cache is optional. When nil every reasoning call goes to the
	// engine.
	Cache *rescache.Cache

	// Fallback defaults to the built-in answers when nil.
	Fallback *Fallback

	Logger zerolog.Logger

	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string

	MaxRounds       int
	TurnTimeout     time.Duration
	ToolTimeout     time.Duration
	ToolParallelism int

	// CacheTTLs maps agent type to response cache TTL. Agent types
	// without an entry are not cached.
	CacheTTLs map[string]time.Duration
}

// Orchestrator drives conversation turns.
type Orchestrator struct {
	store    *session.Store
	registry *toolregistry.Registry
	eng      engine.Client
	queue    *turnqueue.Queue
	cache    *rescache.Cache
	fallback *Fallback
	logger   zerolog.Logger
	cfg      Config
}

// New creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	metrics.EnsureRegistered()

	if cfg.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine client is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("turn queue is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	if cfg.Fallback == nil {
		cfg.Fallback = NewFallback(nil)
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = DefaultTurnTimeout
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = DefaultToolTimeout
	}
	if cfg.ToolParallelism <= 0 {
		cfg.ToolParallelism = DefaultToolParallelism
	}

	return &Orchestrator{
		store:    cfg.Store,
		registry: cfg.Registry,
		eng:      cfg.Engine,
		queue:    cfg.Queue,
		cache:    cfg.Cache,
		fallback: cfg.Fallback,
		logger:   cfg.Logger,
		cfg:      cfg,
	}, nil
}

// HandleTurn processes one user message through the full loop and
// returns the resulting assistant message. Turns on the same session
// run in arrival order; turns on different sessions run in parallel.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Message == "" {
		return nil, fmt.Errorf("message is required")
	}
	if req.AgentType == "" {
		req.AgentType = TypeChat
	}

	if tracing.GetTraceID(ctx) == "" {
		ctx = tracing.NewTurnContext(ctx)
	}

	// The session id doubles as the serialization lane, so it has to
	// be resolved before enqueueing.
	sessionID, _, err := o.store.GetOrCreate(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}
	ctx = tracing.WithSessionID(ctx, sessionID)

	result, err := o.queue.Run(ctx, sessionID, func(taskCtx context.Context) (interface{}, error) {
		return o.executeTurn(taskCtx, sessionID, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*TurnResponse), nil
}

func (o *Orchestrator) executeTurn(ctx context.Context, sessionID string, req TurnRequest) (*TurnResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.TurnTimeout)
	defer cancel()

	ctx, span := tracing.StartSpan(
		ctx,
		"opschat.agent",
		"agent.turn",
		attribute.String("session_id", sessionID),
		attribute.String("agent_type", req.AgentType),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, o.logger).With().
		Str("session_id", sessionID).
		Str("agent_type", req.AgentType).
		Str("principal", req.Principal).
		Logger()

	start := time.Now()

	if _, err := o.store.Append(ctx, sessionID, session.Message{
		Role:     session.RoleUser,
		Content:  req.Message,
		Metadata: req.Context,
	}); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	tools := o.registry.Definitions()
	systemPrompt := buildSystemPrompt(o.cfg.SystemPrompt, tools)

	state := StateAwaitingAnswer
	toolsUsed := 0
	rounds := 0

	for round := 0; round < o.cfg.MaxRounds; round++ {
		history, err := o.store.Get(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load session history: %w", err)
		}

		answer, fromCache, err := o.obtainAnswer(ctx, logger, req.AgentType, systemPrompt, history, tools)
		if err != nil {
			if engine.Degradable(err) {
				logger.Warn().Err(err).Msg("Engine unavailable, serving fallback")
				span.RecordError(err)
				return o.finishTurn(ctx, logger, sessionID, req.AgentType, StateDegraded,
					o.fallback.AnswerFor(req.AgentType), rounds, toolsUsed, false, start)
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		if !answer.RequiresTools() {
			state = StateFinal
			return o.finishTurn(ctx, logger, sessionID, req.AgentType, state,
				answer.Text, rounds, toolsUsed, fromCache, start)
		}

		state = StateToolsRequested
		if _, err := o.store.Append(ctx, sessionID, session.Message{
			Role:            session.RoleAssistant,
			Content:         answer.Text,
			ToolInvocations: answer.ToolInvocations,
		}); err != nil {
			return nil, fmt.Errorf("failed to save tool request message: %w", err)
		}

		state = StateExecutingTools
		results := o.executeTools(ctx, answer.ToolInvocations)
		for i, inv := range answer.ToolInvocations {
			if _, err := o.store.Append(ctx, sessionID, session.Message{
				Role:             session.RoleTool,
				Content:          results[i].Content(),
				ToolInvocationID: inv.ID,
				ToolName:         inv.Name,
			}); err != nil {
				return nil, fmt.Errorf("failed to save tool result message: %w", err)
			}
		}

		toolsUsed += len(answer.ToolInvocations)
		rounds++
		state = StateAwaitingAnswer

		logger.Debug().
			Int("round", rounds).
			Int("tool_calls", len(answer.ToolInvocations)).
			Msg("Tool round completed")
	}

	logger.Warn().Int("rounds", rounds).Msg("Round bound reached, ending turn")
	return o.finishTurn(ctx, logger, sessionID, req.AgentType, StateExhausted,
		exhaustedMessage, rounds, toolsUsed, false, start)
}

// obtainAnswer serves a reasoning answer through the cache. Cache
// failures are misses; the turn never depends on cache availability.
func (o *Orchestrator) obtainAnswer(
	ctx context.Context,
	logger zerolog.Logger,
	agentType, systemPrompt string,
	history []session.Message,
	tools []toolregistry.Definition,
) (*engine.Answer, bool, error) {
	ttl, cacheable := o.cfg.CacheTTLs[agentType]
	cacheable = cacheable && o.cache != nil && ttl > 0

	var key string
	if cacheable {
		key = rescache.Key(agentType, history)
		if value, ok := o.cache.Get(key); ok {
			if answer, ok := value.(*engine.Answer); ok {
				return answer, true, nil
			}
			logger.Warn().Str("key", key).Msg("Cache entry has unexpected type, treating as miss")
		}
	}

	answer, err := o.eng.Invoke(ctx, engine.Request{
		Model:        o.cfg.Model,
		SystemPrompt: systemPrompt,
		Messages:     history,
		Tools:        tools,
		Temperature:  o.cfg.Temperature,
		MaxTokens:    o.cfg.MaxTokens,
		JSONMode:     agentType == TypeDashboard,
	})
	if err != nil {
		return nil, false, err
	}

	if cacheable {
		o.cache.Set(key, answer, ttl)
	}
	return answer, false, nil
}

// executeTools runs a round's invocations with bounded parallelism.
// Failures are captured into results, never returned: a failing tool
// becomes error content for the engine, and the round continues.
func (o *Orchestrator) executeTools(ctx context.Context, invocations []session.ToolInvocation) []toolregistry.Result {
	results := make([]toolregistry.Result, len(invocations))

	sem := make(chan struct{}, o.cfg.ToolParallelism)
	var wg sync.WaitGroup

	for i, inv := range invocations {
		i, inv := i, inv
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = o.registry.Execute(ctx, inv.Name, inv.Arguments, o.cfg.ToolTimeout)
		}()
	}

	wg.Wait()
	return results
}

// finishTurn appends the closing assistant message and assembles the
// caller-facing response. Degraded and exhausted turns still succeed.
func (o *Orchestrator) finishTurn(
	ctx context.Context,
	logger zerolog.Logger,
	sessionID, agentType string,
	state State,
	content string,
	rounds, toolsUsed int,
	cached bool,
	start time.Time,
) (*TurnResponse, error) {
	msg := session.Message{
		Role:    session.RoleAssistant,
		Content: content,
	}
	if _, err := o.store.Append(ctx, sessionID, msg); err != nil {
		return nil, fmt.Errorf("failed to save assistant message: %w", err)
	}

	// Append fills in the message id and timestamp; re-read the tail
	// so the caller sees them.
	history, err := o.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session history: %w", err)
	}
	saved := history[len(history)-1]

	duration := time.Since(start)
	metrics.RecordTurn(agentType, string(state), duration, rounds)

	logger.Info().
		Str("state", string(state)).
		Int("rounds", rounds).
		Int("tools_used", toolsUsed).
		Bool("cached", cached).
		Dur("duration", duration).
		Msg("Turn completed")

	return &TurnResponse{
		Success:   true,
		SessionID: sessionID,
		Message: ResponseMessage{
			ID:        saved.ID,
			Role:      saved.Role,
			Content:   saved.Content,
			Timestamp: saved.Timestamp,
		},
		Metadata: TurnMetadata{
			ToolsUsed: toolsUsed,
			Rounds:    rounds,
			Cached:    cached,
			Degraded:  state == StateDegraded,
			State:     state,
		},
	}, nil
}
