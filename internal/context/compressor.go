package context

import "github.com/stupiduntilnot/rdmochat/internal/message"

// SimpleCompressor keeps only the last MaxMessages messages.
type SimpleCompressor struct {
	MaxMessages int
}

// Compress truncates messages to the most recent MaxMessages entries. It only
// shapes the model input; stored history is never truncated.
func (c *SimpleCompressor) Compress(messages []message.Message) []message.Message {
	if c.MaxMessages <= 0 || len(messages) <= c.MaxMessages {
		return messages
	}
	return messages[len(messages)-c.MaxMessages:]
}
