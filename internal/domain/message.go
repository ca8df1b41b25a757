package domain

import "time"

// MessageKind distinguishes plain text messages from attachment carriers.
type MessageKind string

const (
	MessageKindText MessageKind = "text"
	MessageKindFile MessageKind = "file"
)

// Message is a unit of conversation content. A message must have non-empty
// content or at least one attachment. Delivered/read timestamps are
// monotonic: once set they are never cleared or moved backwards.
type Message struct {
	ID          string       `json:"id"`
	RoomID      string       `json:"room_id"`
	SenderID    string       `json:"sender_id"`
	Content     string       `json:"content"`
	Kind        MessageKind  `json:"message_type"`
	CreatedAt   time.Time    `json:"created_at"`
	DeliveredAt *time.Time   `json:"delivered_at"`
	ReadAt      *time.Time   `json:"read_at"`
	Attachments []Attachment `json:"attachments"`
}

// Attachment is a file reference bound to exactly one message, immutable
// after creation. FileURL is derived from blob storage at read time and is
// never persisted.
type Attachment struct {
	ID        string `json:"id"`
	MessageID string `json:"-"`
	Filename  string `json:"-"` // storage key
	FileType  string `json:"file_type"`
	FileURL   string `json:"file_url"`
}

// MessageModel is the GORM model for the messages table.
type MessageModel struct {
	ID          string            `gorm:"type:varchar(36);primaryKey"`
	RoomID      string            `gorm:"type:varchar(36);index;not null"`
	SenderID    string            `gorm:"type:varchar(36);not null"`
	Content     string            `gorm:"type:text;not null;default:''"`
	Kind        string            `gorm:"type:varchar(10);not null;default:'text'"`
	CreatedAt   time.Time         `gorm:"autoCreateTime;index"`
	DeliveredAt *time.Time
	ReadAt      *time.Time
	Attachments []AttachmentModel `gorm:"foreignKey:MessageID"`
}

// TableName specifies the table name for MessageModel.
func (MessageModel) TableName() string {
	return "messages"
}

// AttachmentModel is the GORM model for the message_attachments table.
type AttachmentModel struct {
	ID        string `gorm:"type:varchar(36);primaryKey"`
	MessageID string `gorm:"type:varchar(36);index;not null"`
	Filename  string `gorm:"type:varchar(512);not null"`
	FileType  string `gorm:"type:varchar(100);not null"`
}

// TableName specifies the table name for AttachmentModel.
func (AttachmentModel) TableName() string {
	return "message_attachments"
}

// ToDomain converts MessageModel to a domain Message.
func (m *MessageModel) ToDomain() *Message {
	attachments := make([]Attachment, len(m.Attachments))
	for i, a := range m.Attachments {
		attachments[i] = *a.ToDomain()
	}
	return &Message{
		ID:          m.ID,
		RoomID:      m.RoomID,
		SenderID:    m.SenderID,
		Content:     m.Content,
		Kind:        MessageKind(m.Kind),
		CreatedAt:   m.CreatedAt,
		DeliveredAt: m.DeliveredAt,
		ReadAt:      m.ReadAt,
		Attachments: attachments,
	}
}

// MessageToModel converts a domain Message to MessageModel. Attachments are
// persisted separately and not carried over.
func MessageToModel(msg *Message) *MessageModel {
	return &MessageModel{
		ID:          msg.ID,
		RoomID:      msg.RoomID,
		SenderID:    msg.SenderID,
		Content:     msg.Content,
		Kind:        string(msg.Kind),
		CreatedAt:   msg.CreatedAt,
		DeliveredAt: msg.DeliveredAt,
		ReadAt:      msg.ReadAt,
	}
}

// ToDomain converts AttachmentModel to a domain Attachment.
func (a *AttachmentModel) ToDomain() *Attachment {
	return &Attachment{
		ID:        a.ID,
		MessageID: a.MessageID,
		Filename:  a.Filename,
		FileType:  a.FileType,
	}
}

// AttachmentToModel converts a domain Attachment to AttachmentModel.
func AttachmentToModel(a *Attachment) *AttachmentModel {
	return &AttachmentModel{
		ID:        a.ID,
		MessageID: a.MessageID,
		Filename:  a.Filename,
		FileType:  a.FileType,
	}
}
