package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventType tags the closed Event union exchanged over the live channel and
// the broadcast bus.
type EventType string

const (
	EventTypeMessage EventType = "message"
	EventTypeStatus  EventType = "status"
	EventTypeError   EventType = "error"
)

// Event is the wire and bus payload: a tagged union of message, status and
// error events. Data carries the payload for message/status events; Detail
// carries the human-readable text of error events.
type Event struct {
	Type   EventType       `json:"type"`
	Data   json.RawMessage `json:"data,omitempty"`
	Detail string          `json:"detail,omitempty"`
}

// MessageData is the payload of a message event: a full message
// representation as seen by clients.
type MessageData struct {
	ID          string           `json:"id"`
	RoomID      string           `json:"room_id"`
	SenderID    string           `json:"sender_id"`
	Content     string           `json:"content"`
	MessageType MessageKind      `json:"message_type"`
	CreatedAt   time.Time        `json:"created_at"`
	DeliveredAt *time.Time       `json:"delivered_at"`
	ReadAt      *time.Time       `json:"read_at"`
	Attachments []AttachmentData `json:"attachments"`
}

// AttachmentData is the client-facing attachment representation.
type AttachmentData struct {
	ID       string `json:"id"`
	FileURL  string `json:"file_url"`
	FileType string `json:"file_type"`
}

// StatusData is the payload of a status event.
type StatusData struct {
	ID          string     `json:"id"`
	DeliveredAt *time.Time `json:"delivered_at"`
	ReadAt      *time.Time `json:"read_at"`
}

// NewMessageEvent builds a message event from a persisted message.
func NewMessageEvent(msg *Message) (*Event, error) {
	attachments := make([]AttachmentData, len(msg.Attachments))
	for i, a := range msg.Attachments {
		attachments[i] = AttachmentData{
			ID:       a.ID,
			FileURL:  a.FileURL,
			FileType: a.FileType,
		}
	}

	data, err := json.Marshal(MessageData{
		ID:          msg.ID,
		RoomID:      msg.RoomID,
		SenderID:    msg.SenderID,
		Content:     msg.Content,
		MessageType: msg.Kind,
		CreatedAt:   msg.CreatedAt,
		DeliveredAt: msg.DeliveredAt,
		ReadAt:      msg.ReadAt,
		Attachments: attachments,
	})
	if err != nil {
		return nil, err
	}

	return &Event{Type: EventTypeMessage, Data: data}, nil
}

// NewStatusEvent builds a status event for a message's delivery state.
func NewStatusEvent(msg *Message) (*Event, error) {
	data, err := json.Marshal(StatusData{
		ID:          msg.ID,
		DeliveredAt: msg.DeliveredAt,
		ReadAt:      msg.ReadAt,
	})
	if err != nil {
		return nil, err
	}

	return &Event{Type: EventTypeStatus, Data: data}, nil
}

// NewErrorEvent builds an error event sent back to a single client.
func NewErrorEvent(detail string) *Event {
	return &Event{Type: EventTypeError, Detail: detail}
}

// InboundMessageData is the decoded payload of an inbound message event.
type InboundMessageData struct {
	Content string `json:"content"`
}

// InboundStatusData is the decoded payload of an inbound status event.
type InboundStatusData struct {
	ID        string `json:"id"`
	Delivered bool   `json:"delivered"`
	Read      bool   `json:"read"`
}

// InboundEvent is a validated inbound frame. Exactly one of Message/Status
// is non-nil, matching Type.
type InboundEvent struct {
	Type    EventType
	Message *InboundMessageData
	Status  *InboundStatusData
}

// DecodeInbound parses and validates a raw inbound frame. Unknown tags and
// malformed payloads fail with ErrInvalidMessage; they are a decode error,
// not a silent no-op.
func DecodeInbound(raw []byte) (*InboundEvent, error) {
	var frame struct {
		Type EventType       `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", ErrInvalidMessage)
	}

	switch frame.Type {
	case EventTypeMessage:
		var data InboundMessageData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return nil, fmt.Errorf("malformed message payload: %w", ErrInvalidMessage)
		}
		if strings.TrimSpace(data.Content) == "" {
			return nil, fmt.Errorf("empty content: %w", ErrInvalidMessage)
		}
		return &InboundEvent{Type: EventTypeMessage, Message: &data}, nil

	case EventTypeStatus:
		var data InboundStatusData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return nil, fmt.Errorf("malformed status payload: %w", ErrInvalidMessage)
		}
		if data.ID == "" {
			return nil, fmt.Errorf("status without message id: %w", ErrInvalidMessage)
		}
		return &InboundEvent{Type: EventTypeStatus, Status: &data}, nil

	default:
		return nil, fmt.Errorf("unknown event type %q: %w", frame.Type, ErrInvalidMessage)
	}
}
