package chattypes

import (
	"context"
	"io"
)

// Presence routes payloads to live sessions. Implemented by the WebSocket
// hub; defined here so the dispatch pipeline does not depend on the transport
// package.
type Presence interface {
	// IsOnline reports whether userID has an active session.
	IsOnline(userID uint) bool
	// Deliver hands payload to userID's session if one is registered.
	// Returns false when the user is offline or the session could not accept
	// the payload; the caller is expected to fall back to offline buffering.
	Deliver(userID uint, payload []byte) bool
}

// FeedPublisher publishes persisted-message events for downstream consumers
// (other relay instances, push-notification workers). Publishing is best
// effort from the pipeline's point of view.
type FeedPublisher interface {
	Publish(ctx context.Context, event MessageFeedEvent) error
}

// FileInfo describes an uploaded file and where it can be fetched.
type FileInfo struct {
	URL      string `json:"url"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	FileName string `json:"fileName"`
}

// StorageService abstracts uploaded-file storage. Defined here to keep the
// storage and services packages from depending on each other.
type StorageService interface {
	UploadFile(ctx context.Context, reader io.Reader, fileSize int64, fileName string, mimeType string) (*FileInfo, error)
}
