package chattypes

import "encoding/json"

// Event names exchanged over the WebSocket. Client to server: sendMessage,
// requestMessageHistory. Server to client: receiveMessage, messageError,
// messageHistory.
const (
	EventSendMessage    = "sendMessage"
	EventRequestHistory = "requestMessageHistory"
	EventReceiveMessage = "receiveMessage"
	EventMessageError   = "messageError"
	EventMessageHistory = "messageHistory"
)

// Envelope frames every event on the wire. AckID is set by the client on
// requests that expect a reply (history) and echoed back on the response.
type Envelope struct {
	Event string          `json:"event"`
	AckID string          `json:"ackId,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SendMessagePayload is the client's sendMessage request body. The server
// ignores any sender that does not match the authenticated connection.
type SendMessagePayload struct {
	Sender      uint   `json:"sender"`
	Recipient   uint   `json:"recipient"`
	MessageType string `json:"messageType"`
	Content     string `json:"content,omitempty"`
	FileURL     string `json:"fileUrl,omitempty"`
	FileName    string `json:"fileName,omitempty"`
	FileType    string `json:"fileType,omitempty"`
	FileSize    int64  `json:"fileSize,omitempty"`
	Duration    int    `json:"duration,omitempty"`
}

// HistoryRequestPayload is the client's requestMessageHistory body.
type HistoryRequestPayload struct {
	OtherUserID uint `json:"otherUserId"`
	Limit       int  `json:"limit,omitempty"`
}

// HistoryResult is the messageHistory reply body.
type HistoryResult struct {
	Success  bool   `json:"success"`
	Messages any    `json:"messages,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ErrorPayload is the messageError body sent to a client whose send failed.
type ErrorPayload struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// MessageFeedEvent is published to the message feed topic for every persisted
// message. Origin identifies the relay instance that accepted the send so
// consumers can skip events they delivered themselves.
type MessageFeedEvent struct {
	Origin      string          `json:"origin"`
	RecipientID uint            `json:"recipientId"`
	Message     json.RawMessage `json:"message"`
}
