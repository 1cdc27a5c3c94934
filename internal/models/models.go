package models

import (
	"errors"
	"strings"

	"github.com/goccy/go-json"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidChannel = errors.New("invalid channel id")
)

// Client to server events.
const (
	EventUserOnline      = "userOnline"
	EventGetOnlineUsers  = "getOnlineUsers"
	EventJoinRoom        = "joinRoom"
	EventJoinChatRoom    = "joinChatRoom"
	EventLeaveRoom       = "leaveRoom"
	EventLeaveChatRoom   = "leaveChatRoom"
	EventTyping          = "typing"
	EventSendMessage     = "sendMessage"
	EventSendRoomMessage = "sendRoomMessage"
	EventPing            = "ping"
)

// Server to client events.
const (
	EventOnlineUsers           = "onlineUsers"
	EventUserStatusChange      = "userStatusChange"
	EventUserJoined            = "userJoined"
	EventUserLeft              = "userLeft"
	EventUserTyping            = "userTyping"
	EventNewMessage            = "newMessage"
	EventNewRoomMessage        = "newRoomMessage"
	EventRoomParticipantJoined = "roomParticipantJoined"
	EventRoomParticipantLeft   = "roomParticipantLeft"
	EventError                 = "error"
	EventPong                  = "pong"
)

type UserStatus string

const (
	UserStatusOnline  UserStatus = "online"
	UserStatusOffline UserStatus = "offline"
)

// Frame is the wire format in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame encodes payload into a frame ready to be written.
func NewFrame(event string, payload any) (Frame, error) {
	if payload == nil {
		return Frame{Event: event}, nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		return Frame{Event: event, Data: raw}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Data: data}, nil
}

// Presence is the status of a user as reported by the admin API.
type Presence struct {
	UserID   string `json:"userId"`
	Online   bool   `json:"online"`
	LastSeen int64  `json:"lastSeen,omitempty"` // unix milliseconds
}

type StatusChange struct {
	UserID   string     `json:"userId"`
	Status   UserStatus `json:"status"`
	LastSeen int64      `json:"lastSeen,omitempty"`
}

type MembershipNotice struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

type TypingEvent struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

type ErrorEvent struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

// ChannelID accepts either a bare string or an object carrying
// roomId, conversationId or chatRoomId.
func ChannelID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", ErrInvalidChannel
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return "", ErrInvalidChannel
		}
		return s, nil
	}

	var obj struct {
		RoomID         string `json:"roomId"`
		ConversationID string `json:"conversationId"`
		ChatRoomID     string `json:"chatRoomId"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", ErrInvalidChannel
	}
	for _, id := range []string{obj.RoomID, obj.ConversationID, obj.ChatRoomID} {
		if id = strings.TrimSpace(id); id != "" {
			return id, nil
		}
	}
	return "", ErrInvalidChannel
}

// UserID accepts a bare string or an object with userId.
func UserID(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s = strings.TrimSpace(s); s != "" {
			return s, nil
		}
		return "", ErrNotFound
	}
	var obj struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || strings.TrimSpace(obj.UserID) == "" {
		return "", ErrNotFound
	}
	return strings.TrimSpace(obj.UserID), nil
}
