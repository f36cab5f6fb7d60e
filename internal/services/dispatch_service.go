package services

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"time"

	"dm-go/internal/chattypes"
	"dm-go/internal/config"
	"dm-go/internal/models"
	"dm-go/internal/storage"
)

// DispatchService is the dispatch pipeline: it validates an outgoing
// message, persists it, and fans it out to the recipient's and sender's live
// sessions, parking the message in the offline buffer when the recipient has
// none. It also serves the reconnect backlog.
type DispatchService interface {
	// Send runs one message through validate → persist → emit. The returned
	// message carries the assigned id, server timestamp and expanded
	// sender/recipient profiles. Failures are a *chattypes.ValidationError
	// (nothing persisted) or a *chattypes.StoreError (reported to the
	// sender, never retried here).
	Send(ctx context.Context, input chattypes.SendMessagePayload) (*models.Message, error)
	// Backlog returns every message awaiting delivery to userID, oldest
	// first: the union of the drained in-memory queue and the store's
	// undelivered rows. Called exactly once per connect, before live
	// emission starts for the new session. Delivery is at least once: a
	// live emission racing the undelivered query can reach the session both
	// gated and through the backlog, so clients dedup on the message id.
	Backlog(ctx context.Context, userID uint) ([]*models.Message, error)
	// ConfirmDelivered marks the given messages delivered after they have
	// been handed to a session.
	ConfirmDelivered(ctx context.Context, ids []uint) error
}

// dispatchService is the DispatchService implementation.
type dispatchService struct {
	msgRepo      storage.MessageRepository
	presence     chattypes.Presence
	buffer       *OfflineBuffer
	feed         chattypes.FeedPublisher // nil when the feed is disabled
	origin       string                  // this relay instance's id, stamped on feed events
	storeTimeout time.Duration
}

// NewDispatchService creates a DispatchService. feed may be nil to disable
// feed publishing.
func NewDispatchService(msgRepo storage.MessageRepository, presence chattypes.Presence, buffer *OfflineBuffer, feed chattypes.FeedPublisher, origin string, relayCfg config.RelayConfig) DispatchService {
	return &dispatchService{
		msgRepo:      msgRepo,
		presence:     presence,
		buffer:       buffer,
		feed:         feed,
		origin:       origin,
		storeTimeout: relayCfg.StoreTimeout,
	}
}

func (s *dispatchService) Send(ctx context.Context, input chattypes.SendMessagePayload) (*models.Message, error) {
	// Validation is fail-fast: any violation returns before a single write.
	message, err := models.NewMessage(models.NewMessageInput{
		SenderID:    input.Sender,
		RecipientID: input.Recipient,
		Type:        models.MessageType(input.MessageType),
		Content:     input.Content,
		FileURL:     input.FileURL,
		FileName:    input.FileName,
		FileType:    input.FileType,
		FileSize:    input.FileSize,
		Duration:    input.Duration,
	})
	if err != nil {
		return nil, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.msgRepo.Create(storeCtx, message); err != nil {
		return nil, chattypes.NewStoreError("create", err)
	}

	// Reload with sender/recipient profiles so clients can render the
	// message without another round trip. Falling back to the bare row keeps
	// delivery working if the reload fails.
	view, err := s.msgRepo.GetByID(storeCtx, message.ID)
	if err != nil {
		log.Printf("Failed to reload message %d with profiles: %v", message.ID, err)
		view = message
	}

	payload, err := encodeReceiveMessage(view)
	if err != nil {
		// The row exists; the recipient still gets it from the undelivered
		// query on their next connect.
		log.Printf("Failed to encode message %d for delivery: %v", view.ID, err)
		return view, nil
	}

	if s.presence.Deliver(view.RecipientID, payload) {
		if err := s.msgRepo.MarkDelivered(storeCtx, []uint{view.ID}); err != nil {
			log.Printf("Failed to mark message %d delivered: %v", view.ID, err)
		}
	} else {
		s.buffer.Enqueue(view.RecipientID, view)
	}

	// Echo to the sender's own session so its other context observes the
	// sent message, mirroring what the recipient sees.
	if view.SenderID != view.RecipientID {
		s.presence.Deliver(view.SenderID, payload)
	}

	s.publishFeedEvent(ctx, view, payload)

	return view, nil
}

func (s *dispatchService) Backlog(ctx context.Context, userID uint) ([]*models.Message, error) {
	drained := s.buffer.Drain(userID)

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	stored, err := s.msgRepo.FindUndelivered(storeCtx, userID)
	if err != nil {
		// Keep the connect usable on a store outage: deliver what memory
		// has, the rest stays undelivered for the next reconnect.
		log.Printf("Undelivered query failed for user %d, serving in-memory backlog only: %v", userID, err)
		return drained, nil
	}

	return mergeBacklog(drained, stored), nil
}

func (s *dispatchService) ConfirmDelivered(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.msgRepo.MarkDelivered(storeCtx, ids); err != nil {
		return chattypes.NewStoreError("mark delivered", err)
	}
	return nil
}

func (s *dispatchService) publishFeedEvent(ctx context.Context, view *models.Message, payload []byte) {
	if s.feed == nil {
		return
	}
	event := chattypes.MessageFeedEvent{
		Origin:      s.origin,
		RecipientID: view.RecipientID,
		Message:     json.RawMessage(payload),
	}
	if err := s.feed.Publish(ctx, event); err != nil {
		// Feed publishing is best effort; the send already succeeded.
		log.Printf("Failed to publish message %d to the feed: %v", view.ID, err)
	}
}

// encodeReceiveMessage wraps a message view in a receiveMessage envelope.
func encodeReceiveMessage(view *models.Message) ([]byte, error) {
	data, err := json.Marshal(view)
	if err != nil {
		return nil, err
	}
	return json.Marshal(chattypes.Envelope{
		Event: chattypes.EventReceiveMessage,
		Data:  data,
	})
}

// EncodeReceiveMessage is the envelope encoding used for every message
// handed to a session, exported for the connect flow's backlog flush.
func EncodeReceiveMessage(view *models.Message) ([]byte, error) {
	return encodeReceiveMessage(view)
}

// mergeBacklog combines the in-memory queue with the store's undelivered
// rows, removing duplicates (a buffered message is normally also an
// undelivered row) and ordering by send time.
func mergeBacklog(drained, stored []*models.Message) []*models.Message {
	seen := make(map[uint]struct{}, len(drained)+len(stored))
	merged := make([]*models.Message, 0, len(drained)+len(stored))
	for _, m := range append(drained, stored...) {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		merged = append(merged, m)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Timestamp.Equal(merged[j].Timestamp) {
			return merged[i].ID < merged[j].ID
		}
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	return merged
}
