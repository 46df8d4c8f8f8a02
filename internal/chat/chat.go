// Package chat sequences conversation turns between the history store and a
// model provider.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	ctxpkg "github.com/stupiduntilnot/rdmochat/internal/context"
	"github.com/stupiduntilnot/rdmochat/internal/control"
	"github.com/stupiduntilnot/rdmochat/internal/history"
	"github.com/stupiduntilnot/rdmochat/internal/message"
	"github.com/stupiduntilnot/rdmochat/internal/model"
)

// ActionResetHistory is the control action that deletes a conversation.
const ActionResetHistory = "reset_history"

const userPlaceholder = "{user}"

// Session identifies the conversation a turn belongs to.
type Session struct {
	Key history.Key
	// DisplayName replaces {user} in the system prompt; the user identifier
	// is used when empty.
	DisplayName string
	// ProjectContext is sent to the model as JSON in a second system message.
	ProjectContext map[string]any
}

type EventKind string

const (
	EventUserMessage   EventKind = "user_message"
	EventSystemMessage EventKind = "system_message"
)

// Event is an inbound message from the chat front end.
type Event struct {
	Kind     EventKind
	Content  string
	Metadata map[string]any
}

// Options configures an Orchestrator. Zero values select defaults.
type Options struct {
	SystemPrompt string
	Assembler    ctxpkg.Assembler
	Compressor   ctxpkg.Compressor
	Breaker      *control.CircuitBreaker
	Logger       *zap.Logger
}

// Orchestrator runs conversation turns. The read-modify-write of a turn is
// not serialized per key: concurrent turns for the same key race and the
// last SetHistory wins.
type Orchestrator struct {
	store        history.Store
	provider     model.Provider
	assembler    ctxpkg.Assembler
	compressor   ctxpkg.Compressor
	breaker      *control.CircuitBreaker
	systemPrompt string
	logger       *zap.Logger
	now          func() time.Time
}

func New(store history.Store, provider model.Provider, opts Options) *Orchestrator {
	o := &Orchestrator{
		store:        store,
		provider:     provider,
		assembler:    opts.Assembler,
		compressor:   opts.Compressor,
		breaker:      opts.Breaker,
		systemPrompt: opts.SystemPrompt,
		logger:       opts.Logger,
		now:          time.Now,
	}
	if o.assembler == nil {
		o.assembler = &ctxpkg.StandardAssembler{}
	}
	if o.compressor == nil {
		o.compressor = &ctxpkg.SimpleCompressor{}
	}
	if o.breaker == nil {
		o.breaker = control.NewCircuitBreaker(0, 0)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// Start reports whether the session resumes an existing conversation.
func (o *Orchestrator) Start(ctx context.Context, s Session) (bool, error) {
	ok, err := o.store.HasHistory(ctx, s.Key)
	if err != nil {
		o.logger.Error("history lookup failed", append(s.Key.Fields(), zap.Error(err))...)
		return false, &TurnError{Op: "start", Err: err}
	}
	o.logger.Info("chat started", append(s.Key.Fields(), zap.Bool("resumed", ok))...)
	return ok, nil
}

// HandleEvent dispatches an inbound event. User messages run a turn and
// return the reply; a reset_history control message deletes the history
// without calling the model. Other control messages are ignored.
func (o *Orchestrator) HandleEvent(ctx context.Context, s Session, ev Event) (string, error) {
	switch ev.Kind {
	case EventUserMessage:
		return o.HandleMessage(ctx, s, ev.Content)
	case EventSystemMessage:
		action, _ := ev.Metadata["action"].(string)
		if action != ActionResetHistory {
			o.logger.Debug("control message ignored", append(s.Key.Fields(), zap.String("action", action))...)
			return "", nil
		}
		return "", o.Reset(ctx, s)
	default:
		return "", &TurnError{Op: "dispatch", Err: fmt.Errorf("unsupported event kind %q", ev.Kind)}
	}
}

// Reset deletes the conversation of the session.
func (o *Orchestrator) Reset(ctx context.Context, s Session) error {
	if err := o.store.ResetHistory(ctx, s.Key); err != nil {
		o.logger.Error("history reset failed", append(s.Key.Fields(), zap.Error(err))...)
		return &TurnError{Op: "reset", Err: err}
	}
	o.logger.Info("history reset", s.Key.Fields()...)
	return nil
}

// HandleMessage runs one turn: read history, ask the model, then persist the
// history extended by exactly the user message and the reply.
func (o *Orchestrator) HandleMessage(ctx context.Context, s Session, content string) (string, error) {
	turnID := uuid.NewString()
	fields := append([]zap.Field{zap.String("turn_id", turnID)}, s.Key.Fields()...)

	prior, err := o.store.GetHistory(ctx, s.Key)
	if err != nil {
		o.logger.Error("history read failed", append(fields, zap.Error(err))...)
		return "", &TurnError{Op: "get_history", Err: err}
	}

	input, err := o.buildInput(s, prior, content)
	if err != nil {
		o.logger.Error("model input assembly failed", append(fields, zap.Error(err))...)
		return "", &TurnError{Op: "assemble", Err: err}
	}

	started := o.now()
	resp, err := o.complete(ctx, input)
	if err != nil {
		o.logger.Error("model call failed", append(fields,
			zap.String("error_class", string(control.Classify(err))),
			zap.String("breaker_state", string(o.breaker.State())),
			zap.Error(err))...)
		return "", &TurnError{Op: "model", Err: err}
	}
	reply := resp.Content

	updated := make([]message.Message, 0, len(prior)+2)
	updated = append(updated, prior...)
	updated = append(updated, message.Human(content), message.Assistant(reply))
	if err := o.store.SetHistory(ctx, s.Key, updated); err != nil {
		o.logger.Error("history write failed", append(fields, zap.Error(err))...)
		return "", &TurnError{Op: "set_history", Err: err}
	}

	o.logger.Info("turn completed", append(fields,
		zap.Int("history_len", len(updated)),
		zap.Int("model_messages", len(input)),
		zap.Int64("latency_ms", o.now().Sub(started).Milliseconds()),
		zap.Int("input_tokens", resp.InputTokens),
		zap.Int("output_tokens", resp.OutputTokens))...)
	return reply, nil
}

func (o *Orchestrator) buildInput(s Session, prior []message.Message, content string) ([]message.Message, error) {
	name := s.DisplayName
	if name == "" {
		name = s.Key.UserIdentifier
	}
	system := strings.ReplaceAll(o.systemPrompt, userPlaceholder, name)

	var projectContext string
	if len(s.ProjectContext) > 0 {
		data, err := json.Marshal(s.ProjectContext)
		if err != nil {
			return nil, fmt.Errorf("encode project context: %w", err)
		}
		projectContext = string(data)
	}
	return o.assembler.Assemble(system, projectContext, o.compressor.Compress(prior), content), nil
}

func (o *Orchestrator) complete(ctx context.Context, input []message.Message) (model.CompletionResponse, error) {
	var resp model.CompletionResponse
	err := o.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		resp, err = o.provider.ChatCompletion(ctx, input)
		return err
	})
	return resp, err
}
