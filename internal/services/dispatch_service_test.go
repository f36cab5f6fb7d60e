package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"dm-go/internal/chattypes"
	"dm-go/internal/config"
	"dm-go/internal/models"
	"dm-go/internal/storage"
)

// fakeMessageRepo is an in-memory storage.MessageRepository.
type fakeMessageRepo struct {
	nextID    uint
	rows      map[uint]*models.Message
	order     []uint
	createErr error
	findErr   error
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{nextID: 1, rows: make(map[uint]*models.Message)}
}

func (r *fakeMessageRepo) Create(ctx context.Context, message *models.Message) error {
	if r.createErr != nil {
		return r.createErr
	}
	message.ID = r.nextID
	r.nextID++
	r.rows[message.ID] = message
	r.order = append(r.order, message.ID)
	return nil
}

func (r *fakeMessageRepo) GetByID(ctx context.Context, id uint) (*models.Message, error) {
	m, ok := r.rows[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return m, nil
}

func (r *fakeMessageRepo) FindConversation(ctx context.Context, userA, userB uint, limit int) ([]*models.Message, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	var out []*models.Message
	// Most recent first, like the real store.
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		m := r.rows[r.order[i]]
		if (m.SenderID == userA && m.RecipientID == userB) || (m.SenderID == userB && m.RecipientID == userA) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) FindUndelivered(ctx context.Context, userID uint) ([]*models.Message, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	var out []*models.Message
	for _, id := range r.order {
		m := r.rows[id]
		if m.RecipientID == userID && !m.Delivered {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) MarkDelivered(ctx context.Context, ids []uint) error {
	for _, id := range ids {
		if m, ok := r.rows[id]; ok {
			m.Delivered = true
		}
	}
	return nil
}

func (r *fakeMessageRepo) ListConversationPartners(ctx context.Context, userID uint) ([]storage.ConversationPartner, error) {
	return nil, nil
}

// fakePresence records deliveries and reports the configured online set.
type fakePresence struct {
	online    map[uint]bool
	delivered map[uint][][]byte
}

func newFakePresence(online ...uint) *fakePresence {
	p := &fakePresence{online: make(map[uint]bool), delivered: make(map[uint][][]byte)}
	for _, id := range online {
		p.online[id] = true
	}
	return p
}

func (p *fakePresence) IsOnline(userID uint) bool { return p.online[userID] }

func (p *fakePresence) Deliver(userID uint, payload []byte) bool {
	if !p.online[userID] {
		return false
	}
	p.delivered[userID] = append(p.delivered[userID], payload)
	return true
}

// fakeFeed captures published feed events.
type fakeFeed struct {
	events []chattypes.MessageFeedEvent
	err    error
}

func (f *fakeFeed) Publish(ctx context.Context, event chattypes.MessageFeedEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

var testRelayCfg = config.RelayConfig{
	HistoryLimit:     50,
	OfflineQueueSize: 256,
	StoreTimeout:     5 * time.Second,
}

func textInput(sender, recipient uint, content string) chattypes.SendMessagePayload {
	return chattypes.SendMessagePayload{
		Sender:      sender,
		Recipient:   recipient,
		MessageType: string(models.TextMessage),
		Content:     content,
	}
}

func TestSendDeliversToOnlineRecipient(t *testing.T) {
	repo := newFakeMessageRepo()
	presence := newFakePresence(1, 2)
	buffer := NewOfflineBuffer(0)
	feed := &fakeFeed{}
	svc := NewDispatchService(repo, presence, buffer, feed, "origin-a", testRelayCfg)

	msg, err := svc.Send(context.Background(), textInput(1, 2, "hi"))
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if msg.ID == 0 {
		t.Error("message was not assigned an id")
	}
	if len(presence.delivered[2]) != 1 {
		t.Fatalf("recipient received %d payloads, want 1", len(presence.delivered[2]))
	}
	if len(presence.delivered[1]) != 1 {
		t.Fatalf("sender echo received %d payloads, want 1", len(presence.delivered[1]))
	}
	if !repo.rows[msg.ID].Delivered {
		t.Error("live-delivered message was not marked delivered")
	}
	if buffer.Len(2) != 0 {
		t.Error("message was buffered despite live delivery")
	}
	if len(feed.events) != 1 {
		t.Fatalf("feed received %d events, want 1", len(feed.events))
	}
	if feed.events[0].Origin != "origin-a" || feed.events[0].RecipientID != 2 {
		t.Errorf("feed event = %+v, want origin-a/recipient 2", feed.events[0])
	}
}

func TestSendBuffersForOfflineRecipient(t *testing.T) {
	repo := newFakeMessageRepo()
	presence := newFakePresence(1) // recipient 2 offline
	buffer := NewOfflineBuffer(0)
	svc := NewDispatchService(repo, presence, buffer, nil, "origin-a", testRelayCfg)

	msg, err := svc.Send(context.Background(), textInput(1, 2, "hi"))
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if repo.rows[msg.ID].Delivered {
		t.Error("undelivered message was marked delivered")
	}
	if buffer.Len(2) != 1 {
		t.Errorf("offline buffer holds %d messages, want 1", buffer.Len(2))
	}
	if len(presence.delivered[1]) != 1 {
		t.Error("sender echo was not delivered")
	}
}

func TestSendValidationFailurePersistsNothing(t *testing.T) {
	repo := newFakeMessageRepo()
	svc := NewDispatchService(repo, newFakePresence(), NewOfflineBuffer(0), nil, "origin-a", testRelayCfg)

	_, err := svc.Send(context.Background(), textInput(1, 2, ""))
	if err == nil {
		t.Fatal("expected validation error for empty text content")
	}
	var ve *chattypes.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("error %v is not a *chattypes.ValidationError", err)
	}
	if len(repo.rows) != 0 {
		t.Errorf("%d rows persisted on validation failure, want 0", len(repo.rows))
	}
}

func TestSendStoreFailure(t *testing.T) {
	repo := newFakeMessageRepo()
	repo.createErr = errors.New("connection refused")
	svc := NewDispatchService(repo, newFakePresence(2), NewOfflineBuffer(0), nil, "origin-a", testRelayCfg)

	_, err := svc.Send(context.Background(), textInput(1, 2, "hi"))
	if err == nil {
		t.Fatal("expected store error")
	}
	var se *chattypes.StoreError
	if !errors.As(err, &se) {
		t.Errorf("error %v is not a *chattypes.StoreError", err)
	}
}

func TestSendFeedFailureDoesNotFailSend(t *testing.T) {
	repo := newFakeMessageRepo()
	feed := &fakeFeed{err: errors.New("broker down")}
	svc := NewDispatchService(repo, newFakePresence(2), NewOfflineBuffer(0), feed, "origin-a", testRelayCfg)

	if _, err := svc.Send(context.Background(), textInput(1, 2, "hi")); err != nil {
		t.Fatalf("Send failed on feed error: %v", err)
	}
}

func TestBacklogMergesBufferAndStore(t *testing.T) {
	repo := newFakeMessageRepo()
	buffer := NewOfflineBuffer(0)
	svc := NewDispatchService(repo, newFakePresence(), buffer, nil, "origin-a", testRelayCfg)

	// Two undelivered rows in the store, the second also sitting in the
	// in-memory queue, plus a buffered message the store does not know about.
	base := time.Now()
	for i, ts := range []time.Time{base, base.Add(time.Second)} {
		m := &models.Message{RecipientID: 2, SenderID: 1, Type: models.TextMessage, Content: "x", Timestamp: ts}
		if err := repo.Create(context.Background(), m); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}
	buffer.Enqueue(2, repo.rows[2])
	orphan := &models.Message{RecipientID: 2, SenderID: 1, Type: models.TextMessage, Content: "y", Timestamp: base.Add(2 * time.Second)}
	orphan.ID = 99
	buffer.Enqueue(2, orphan)

	backlog, err := svc.Backlog(context.Background(), 2)
	if err != nil {
		t.Fatalf("Backlog returned error: %v", err)
	}
	if len(backlog) != 3 {
		t.Fatalf("backlog has %d messages, want 3 (deduplicated)", len(backlog))
	}
	for i := 1; i < len(backlog); i++ {
		if backlog[i].Timestamp.Before(backlog[i-1].Timestamp) {
			t.Errorf("backlog out of order at %d: %v before %v", i, backlog[i].Timestamp, backlog[i-1].Timestamp)
		}
	}
	if buffer.Len(2) != 0 {
		t.Error("buffer was not drained by Backlog")
	}
}

func TestBacklogStoreOutageServesBufferOnly(t *testing.T) {
	repo := newFakeMessageRepo()
	repo.findErr = errors.New("store down")
	buffer := NewOfflineBuffer(0)
	svc := NewDispatchService(repo, newFakePresence(), buffer, nil, "origin-a", testRelayCfg)

	m := &models.Message{RecipientID: 2, SenderID: 1, Type: models.TextMessage, Content: "x", Timestamp: time.Now()}
	m.ID = 7
	buffer.Enqueue(2, m)

	backlog, err := svc.Backlog(context.Background(), 2)
	if err != nil {
		t.Fatalf("Backlog returned error on store outage: %v", err)
	}
	if len(backlog) != 1 || backlog[0].ID != 7 {
		t.Errorf("backlog = %v, want the single buffered message", backlog)
	}
}

func TestConfirmDelivered(t *testing.T) {
	repo := newFakeMessageRepo()
	svc := NewDispatchService(repo, newFakePresence(), NewOfflineBuffer(0), nil, "origin-a", testRelayCfg)

	m := &models.Message{RecipientID: 2, SenderID: 1, Type: models.TextMessage, Content: "x", Timestamp: time.Now()}
	if err := repo.Create(context.Background(), m); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := svc.ConfirmDelivered(context.Background(), []uint{m.ID}); err != nil {
		t.Fatalf("ConfirmDelivered returned error: %v", err)
	}
	if !repo.rows[m.ID].Delivered {
		t.Error("message was not marked delivered")
	}
	if err := svc.ConfirmDelivered(context.Background(), nil); err != nil {
		t.Errorf("ConfirmDelivered(nil) returned error: %v", err)
	}
}
