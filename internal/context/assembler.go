package context

import "github.com/stupiduntilnot/rdmochat/internal/message"

// StandardAssembler combines system prompt, project context, history, and
// user message into a single ordered message list.
type StandardAssembler struct{}

// Assemble builds the final message list: system + context + history + user.
// The context message is omitted when projectContext is empty.
func (a *StandardAssembler) Assemble(system, projectContext string, history []message.Message, userMsg string) []message.Message {
	messages := make([]message.Message, 0, 2+len(history)+1)
	messages = append(messages, message.System(system))
	if projectContext != "" {
		messages = append(messages, message.System(projectContext))
	}
	messages = append(messages, history...)
	messages = append(messages, message.Human(userMsg))
	return messages
}
