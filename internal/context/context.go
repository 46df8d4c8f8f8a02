package context

import "github.com/stupiduntilnot/rdmochat/internal/message"

// Compressor reduces a list of messages to fit within constraints.
type Compressor interface {
	Compress(messages []message.Message) []message.Message
}

// Assembler combines the system prompt, project context, history and the new
// user message into the model input.
type Assembler interface {
	Assemble(system, projectContext string, history []message.Message, userMsg string) []message.Message
}
