package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"dm-go/internal/chattypes"
	"dm-go/internal/config"
	"dm-go/internal/models"
)

func seedConversation(t *testing.T, repo *fakeMessageRepo, count int) {
	t.Helper()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < count; i++ {
		sender, recipient := uint(1), uint(2)
		if i%2 == 1 {
			sender, recipient = 2, 1
		}
		m := &models.Message{
			SenderID:    sender,
			RecipientID: recipient,
			Type:        models.TextMessage,
			Content:     "m",
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Create(context.Background(), m); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}
}

func TestHistoryAscendingOrder(t *testing.T) {
	repo := newFakeMessageRepo()
	seedConversation(t, repo, 5)
	svc := NewHistoryService(repo, config.RelayConfig{HistoryLimit: 50})

	messages, err := svc.History(context.Background(), 1, 2, 10)
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(messages) != 5 {
		t.Fatalf("History returned %d messages, want 5", len(messages))
	}
	for i := 1; i < len(messages); i++ {
		if messages[i].Timestamp.Before(messages[i-1].Timestamp) {
			t.Errorf("messages out of order at %d", i)
		}
	}
}

func TestHistoryIsUndirected(t *testing.T) {
	repo := newFakeMessageRepo()
	seedConversation(t, repo, 4)
	svc := NewHistoryService(repo, config.RelayConfig{HistoryLimit: 50})

	forward, err := svc.History(context.Background(), 1, 2, 10)
	if err != nil {
		t.Fatalf("History(1,2) returned error: %v", err)
	}
	reverse, err := svc.History(context.Background(), 2, 1, 10)
	if err != nil {
		t.Fatalf("History(2,1) returned error: %v", err)
	}
	if len(forward) != len(reverse) {
		t.Fatalf("History(1,2) returned %d messages, History(2,1) %d", len(forward), len(reverse))
	}
	for i := range forward {
		if forward[i].ID != reverse[i].ID {
			t.Errorf("order differs at %d: %d vs %d", i, forward[i].ID, reverse[i].ID)
		}
	}
}

func TestHistoryLimitKeepsNewest(t *testing.T) {
	repo := newFakeMessageRepo()
	seedConversation(t, repo, 10)
	svc := NewHistoryService(repo, config.RelayConfig{HistoryLimit: 50})

	messages, err := svc.History(context.Background(), 1, 2, 3)
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("History returned %d messages, want 3", len(messages))
	}
	// The limited page must hold the newest messages, oldest of them first.
	if messages[0].ID != 8 || messages[2].ID != 10 {
		t.Errorf("limited page ids = [%d .. %d], want [8 .. 10]", messages[0].ID, messages[2].ID)
	}
}

func TestHistoryLimitFallsBackToDefault(t *testing.T) {
	repo := newFakeMessageRepo()
	seedConversation(t, repo, 6)
	svc := NewHistoryService(repo, config.RelayConfig{HistoryLimit: 4})

	for _, limit := range []int{0, -1, 1000} {
		messages, err := svc.History(context.Background(), 1, 2, limit)
		if err != nil {
			t.Fatalf("History(limit=%d) returned error: %v", limit, err)
		}
		if len(messages) != 4 {
			t.Errorf("History(limit=%d) returned %d messages, want the default 4", limit, len(messages))
		}
	}
}

func TestHistoryStoreError(t *testing.T) {
	repo := newFakeMessageRepo()
	repo.findErr = errors.New("store down")
	svc := NewHistoryService(repo, config.RelayConfig{HistoryLimit: 50})

	_, err := svc.History(context.Background(), 1, 2, 10)
	if err == nil {
		t.Fatal("expected store error")
	}
	var se *chattypes.StoreError
	if !errors.As(err, &se) {
		t.Errorf("error %v is not a *chattypes.StoreError", err)
	}
}
