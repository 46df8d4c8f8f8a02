// Package dummy provides a scripted model provider for tests and offline runs.
package dummy

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/stupiduntilnot/rdmochat/internal/message"
	"github.com/stupiduntilnot/rdmochat/internal/model"
)

type action struct {
	kind string
	arg  string
}

// parseScript reads a comma separated action list such as
// "msg:hello,err:provider_api,sleep:50,echo".
func parseScript(script string) ([]action, error) {
	if strings.TrimSpace(script) == "" {
		return []action{{kind: "ok"}}, nil
	}
	parts := strings.Split(script, ",")
	actions := make([]action, 0, len(parts))
	for _, p := range parts {
		token := strings.TrimSpace(p)
		if token == "" {
			continue
		}
		switch {
		case token == "ok", token == "echo":
			actions = append(actions, action{kind: token})
		case strings.HasPrefix(token, "err:"):
			actions = append(actions, action{kind: "err", arg: strings.TrimPrefix(token, "err:")})
		case strings.HasPrefix(token, "sleep:"):
			actions = append(actions, action{kind: "sleep", arg: strings.TrimPrefix(token, "sleep:")})
		case strings.HasPrefix(token, "msg:"):
			actions = append(actions, action{kind: "msg", arg: strings.TrimPrefix(token, "msg:")})
		case strings.HasPrefix(token, "msgb64:"):
			actions = append(actions, action{kind: "msgb64", arg: strings.TrimPrefix(token, "msgb64:")})
		default:
			return nil, fmt.Errorf("invalid dummy action: %s", token)
		}
	}
	if len(actions) == 0 {
		actions = append(actions, action{kind: "ok"})
	}
	return actions, nil
}

type scriptRunner struct {
	actions []action
	index   int
}

func newRunner(script string) (*scriptRunner, error) {
	actions, err := parseScript(script)
	if err != nil {
		return nil, err
	}
	return &scriptRunner{actions: actions}, nil
}

// next returns the next action; the last action repeats once the script is
// exhausted.
func (r *scriptRunner) next() action {
	if len(r.actions) == 0 {
		return action{kind: "ok"}
	}
	if r.index >= len(r.actions) {
		return r.actions[len(r.actions)-1]
	}
	a := r.actions[r.index]
	r.index++
	return a
}

// Provider replays a script of canned responses.
type Provider struct {
	mu     sync.Mutex
	model  string
	script *scriptRunner
	calls  [][]message.Message
}

func NewProvider(model, script string) (*Provider, error) {
	runner, err := newRunner(script)
	if err != nil {
		return nil, err
	}
	return &Provider{model: model, script: runner}, nil
}

// Calls returns the message lists the provider has received, oldest first.
func (p *Provider) Calls() [][]message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]message.Message, len(p.calls))
	for i, c := range p.calls {
		out[i] = message.Clone(c)
	}
	return out
}

func (p *Provider) ChatCompletion(ctx context.Context, messages []message.Message) (model.CompletionResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, message.Clone(messages))
	a := p.script.next()
	p.mu.Unlock()

	switch a.kind {
	case "err":
		return model.CompletionResponse{}, fmt.Errorf("dummy provider error class=%s", emptyAs(a.arg, "provider_api"))
	case "sleep":
		ms, _ := strconv.Atoi(a.arg)
		if ms > 0 {
			t := time.NewTimer(time.Duration(ms) * time.Millisecond)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return model.CompletionResponse{}, ctx.Err()
			case <-t.C:
			}
		}
		return respond("dummy-after-sleep"), nil
	case "msg":
		return respond(a.arg), nil
	case "msgb64":
		raw, err := base64.StdEncoding.DecodeString(a.arg)
		if err != nil {
			return model.CompletionResponse{}, fmt.Errorf("dummy provider msgb64 decode failed: %w", err)
		}
		return respond(string(raw)), nil
	case "echo":
		return respond("echo: " + lastHuman(messages)), nil
	default:
		return respond("dummy-ok"), nil
	}
}

func respond(content string) model.CompletionResponse {
	return model.CompletionResponse{Content: content, InputTokens: 1, OutputTokens: 1}
}

func lastHuman(messages []message.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == message.RoleHuman {
			return messages[i].Content
		}
	}
	return ""
}

func emptyAs(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
