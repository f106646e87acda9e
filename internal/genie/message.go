package genie

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Message is one exchange with a Genie space.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content"`
	Status         Status `json:"status"`
	// QueryResult holds the raw statement payload once the message completed.
	QueryResult json.RawMessage `json:"query_result,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// HasResult reports whether a non-null query payload is attached.
func (m *Message) HasResult() bool {
	if m == nil {
		return false
	}
	trimmed := bytes.TrimSpace(m.QueryResult)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

type wireMessage struct {
	ID             string          `json:"id"`
	MessageID      string          `json:"message_id"`
	ConversationID string          `json:"conversation_id"`
	Content        string          `json:"content"`
	Status         string          `json:"status"`
	QueryResult    json.RawMessage `json:"query_result"`
	Error          json.RawMessage `json:"error"`
}

func (w wireMessage) toMessage() Message {
	id := w.ID
	if id == "" {
		id = w.MessageID
	}
	status := Status(w.Status)
	if status == "" {
		status = StatusUnknown
	}
	msg := Message{
		ID:             id,
		ConversationID: w.ConversationID,
		Content:        w.Content,
		Status:         status,
		Error:          errorText(w.Error),
	}
	if len(w.QueryResult) > 0 && !bytes.Equal(bytes.TrimSpace(w.QueryResult), []byte("null")) {
		msg.QueryResult = w.QueryResult
	}
	return msg
}

// errorText accepts both a plain string and an {"error": ...} object.
func errorText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var obj struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Type    string `json:"type"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		switch {
		case obj.Error != "":
			return obj.Error
		case obj.Message != "":
			return obj.Message
		case obj.Type != "":
			return obj.Type
		}
	}
	return strings.TrimSpace(string(raw))
}
