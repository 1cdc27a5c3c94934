package relay

import (
	"errors"
	"fmt"
	"socketd/internal/content"
	"socketd/internal/models"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrMissingChannel   = errors.New("missing channel id")
	ErrMissingSender    = errors.New("missing sender")
)

// Message is a client payload after normalization. Fields the server does
// not know about are kept and forwarded untouched.
type Message struct {
	ChannelID string
	SenderID  string
	fields    map[string]json.RawMessage
}

func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.fields)
}

type parser struct {
	sanitize bool
	now      func() time.Time
}

func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, ErrMalformedPayload
	}
	return fields, nil
}

// ParseMessage normalizes a one-to-one message: conversationId and sender
// are required, the timestamp is stamped when absent.
func (p parser) ParseMessage(raw json.RawMessage) (Message, error) {
	fields, err := decodeObject(raw)
	if err != nil {
		return Message{}, err
	}

	channelID, err := models.ChannelID(fields["conversationId"])
	if err != nil {
		return Message{}, ErrMissingChannel
	}
	if err := content.ValidateID(channelID); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrMissingChannel, err)
	}
	senderID, ok := entityID(fields["sender"])
	if !ok {
		return Message{}, ErrMissingSender
	}

	m := Message{ChannelID: channelID, SenderID: senderID, fields: fields}
	if err := p.finish(&m); err != nil {
		return Message{}, err
	}
	return m, nil
}

// ParseRoomMessage normalizes a room message: the room comes from
// chatRoomId or chatRoom and is always written back as chatRoomId.
func (p parser) ParseRoomMessage(raw json.RawMessage) (Message, error) {
	fields, err := decodeObject(raw)
	if err != nil {
		return Message{}, err
	}

	channelID, ok := entityID(fields["chatRoomId"])
	if !ok {
		channelID, ok = entityID(fields["chatRoom"])
	}
	if !ok {
		return Message{}, ErrMissingChannel
	}
	if err := content.ValidateID(channelID); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrMissingChannel, err)
	}

	idJSON, err := json.Marshal(channelID)
	if err != nil {
		return Message{}, err
	}
	fields["chatRoomId"] = idJSON

	m := Message{ChannelID: channelID, fields: fields}
	m.SenderID, _ = entityID(fields["sender"])
	if err := p.finish(&m); err != nil {
		return Message{}, err
	}
	return m, nil
}

func (p parser) finish(m *Message) error {
	if ts, ok := m.fields["timestamp"]; !ok || isBlank(ts) {
		stamp, err := json.Marshal(p.now().UTC().Format(time.RFC3339))
		if err != nil {
			return err
		}
		m.fields["timestamp"] = stamp
	}

	if !p.sanitize {
		return nil
	}
	var text string
	if raw, ok := m.fields["text"]; ok && json.Unmarshal(raw, &text) == nil {
		clean, err := json.Marshal(content.Sanitize(text))
		if err != nil {
			return err
		}
		m.fields["text"] = clean
	}
	return nil
}

func isBlank(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null" || s == `""`
}

// entityID reads an id given either as a string or as an object with _id
// or id.
func entityID(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		return s, s != ""
	}

	var obj struct {
		MongoID string `json:"_id"`
		ID      string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", false
	}
	for _, id := range []string{obj.MongoID, obj.ID} {
		if id = strings.TrimSpace(id); id != "" {
			return id, true
		}
	}
	return "", false
}
