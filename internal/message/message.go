package message

import "reflect"

// Role discriminates the message variants. The values double as the
// persisted "type" field.
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "ai"
	RoleSystem    Role = "system"
)

// Message is one conversation turn. Extra holds fields found on a persisted
// entry besides type and content so they survive a decode/encode cycle.
type Message struct {
	Role    Role
	Content string
	Extra   map[string]any
}

// Human returns a message authored by the user.
func Human(content string) Message {
	return Message{Role: RoleHuman, Content: content}
}

// Assistant returns a message authored by the model.
func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// System returns a system instruction message.
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// Known reports whether r is one of the supported variants.
func (r Role) Known() bool {
	switch r {
	case RoleHuman, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Equal reports structural equality of two message sequences.
func Equal(a, b []Message) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Role != b[i].Role || a[i].Content != b[i].Content {
			return false
		}
		if len(a[i].Extra) == 0 && len(b[i].Extra) == 0 {
			continue
		}
		if !reflect.DeepEqual(a[i].Extra, b[i].Extra) {
			return false
		}
	}
	return true
}

// Clone returns a copy of msgs that shares no slice or map storage with it.
// A nil input yields an empty, non-nil slice.
func Clone(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = Message{Role: m.Role, Content: m.Content}
		if len(m.Extra) > 0 {
			out[i].Extra = make(map[string]any, len(m.Extra))
			for k, v := range m.Extra {
				out[i].Extra[k] = v
			}
		}
	}
	return out
}
