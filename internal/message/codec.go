package message

import (
	"encoding/json"
	"fmt"
)

const (
	fieldType    = "type"
	fieldContent = "content"
)

// Encode converts messages into their serializable form: one map per message
// with at least "type" and "content". Extra fields are copied first so they
// can never shadow the two required keys.
func Encode(msgs []Message) []map[string]any {
	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		entry := make(map[string]any, len(m.Extra)+2)
		for k, v := range m.Extra {
			entry[k] = v
		}
		entry[fieldType] = string(m.Role)
		entry[fieldContent] = m.Content
		out = append(out, entry)
	}
	return out
}

// Decode converts serialized entries back into messages. Entries with a
// missing or unrecognised type are skipped so one legacy record cannot make
// the rest of a conversation unreadable.
func Decode(entries []map[string]any) []Message {
	out := make([]Message, 0, len(entries))
	for _, entry := range entries {
		t, _ := entry[fieldType].(string)
		role := Role(t)
		if !role.Known() {
			continue
		}
		content, _ := entry[fieldContent].(string)
		m := Message{Role: role, Content: content}
		for k, v := range entry {
			if k == fieldType || k == fieldContent {
				continue
			}
			if m.Extra == nil {
				m.Extra = map[string]any{}
			}
			m.Extra[k] = v
		}
		out = append(out, m)
	}
	return out
}

// Marshal encodes msgs as a JSON array.
func Marshal(msgs []Message) ([]byte, error) {
	data, err := json.Marshal(Encode(msgs))
	if err != nil {
		return nil, fmt.Errorf("marshal messages: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a JSON array produced by Marshal. Empty input and JSON
// null yield an empty slice.
func Unmarshal(data []byte) ([]Message, error) {
	if len(data) == 0 {
		return []Message{}, nil
	}
	var entries []map[string]any
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	return Decode(entries), nil
}
