package models

import (
	"fmt"
	"time"

	"dm-go/internal/chattypes"
)

// MessageType tags the payload variant carried by a Message.
type MessageType string

const (
	TextMessage  MessageType = "text"
	AudioMessage MessageType = "audio"
	ImageMessage MessageType = "image"
	VideoMessage MessageType = "video"
	FileMessage  MessageType = "file"
)

// KnownMessageType reports whether t is one of the five supported variants.
func KnownMessageType(t MessageType) bool {
	switch t {
	case TextMessage, AudioMessage, ImageMessage, VideoMessage, FileMessage:
		return true
	}
	return false
}

// Message is the durable unit of communication between two users. Exactly one
// of Content (text) or the file attribute group (everything else) is
// populated, decided by MessageType; NewMessage enforces this so an invalid
// variant can never reach the database. Rows are immutable after creation
// except for the Delivered and Read flags.
type Message struct {
	BaseModel
	SenderID    uint        `gorm:"index;not null" json:"senderId"`
	RecipientID uint        `gorm:"index;not null" json:"recipientId"`
	Type        MessageType `gorm:"type:varchar(20);not null" json:"messageType"`

	Content string `gorm:"type:text" json:"content,omitempty"`

	FileURL  string `gorm:"type:varchar(512)" json:"fileUrl,omitempty"`
	FileName string `gorm:"type:varchar(255)" json:"fileName,omitempty"`
	FileType string `gorm:"type:varchar(100)" json:"fileType,omitempty"`
	FileSize int64  `json:"fileSize,omitempty"`
	Duration int    `json:"duration,omitempty"` // seconds, audio only

	Delivered bool `gorm:"default:false;index" json:"delivered"`
	Read      bool `gorm:"default:false" json:"read"`

	Timestamp time.Time `gorm:"not null;index" json:"timestamp"`

	Sender    User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Recipient User `gorm:"foreignKey:RecipientID" json:"recipient,omitempty"`
}

// TableName specifies the table name for the Message model.
func (Message) TableName() string {
	return "messages"
}

// NewMessageInput carries the raw fields of an outgoing message before
// validation.
type NewMessageInput struct {
	SenderID    uint
	RecipientID uint
	Type        MessageType
	Content     string
	FileURL     string
	FileName    string
	FileType    string
	FileSize    int64
	Duration    int
}

// NewMessage validates in and builds a Message ready for persistence. All
// violations return a chattypes.ValidationError; nothing is partially
// populated on failure. The text variant drops any file fields it was handed,
// non-text variants drop Content.
func NewMessage(in NewMessageInput) (*Message, error) {
	if in.SenderID == 0 || in.RecipientID == 0 {
		return nil, chattypes.NewValidationError("sender and recipient are required")
	}
	if in.Type == "" {
		return nil, chattypes.NewValidationError("messageType is required")
	}
	if !KnownMessageType(in.Type) {
		return nil, chattypes.NewValidationError(fmt.Sprintf("unknown messageType %q", in.Type))
	}

	m := &Message{
		SenderID:    in.SenderID,
		RecipientID: in.RecipientID,
		Type:        in.Type,
		Timestamp:   time.Now(),
	}

	if in.Type == TextMessage {
		if in.Content == "" {
			return nil, chattypes.NewValidationError("content is required for text messages")
		}
		m.Content = in.Content
		return m, nil
	}

	if in.FileURL == "" {
		return nil, chattypes.NewValidationError("fileUrl is required for non-text messages")
	}
	if in.Type == AudioMessage && in.Duration <= 0 {
		return nil, chattypes.NewValidationError("duration is required for audio messages")
	}
	m.FileURL = in.FileURL
	m.FileName = in.FileName
	m.FileType = in.FileType
	m.FileSize = in.FileSize
	m.Duration = in.Duration
	return m, nil
}
