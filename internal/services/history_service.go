package services

import (
	"context"

	"dm-go/internal/chattypes"
	"dm-go/internal/config"
	"dm-go/internal/models"
	"dm-go/internal/storage"
)

// HistoryService retrieves the message history of a two-party conversation.
// Membership is undirected: messages count regardless of which of the two
// users sent them. Read-only; it never touches the delivered or read flags.
type HistoryService interface {
	// History returns up to limit messages exchanged between the two users
	// in chronological (ascending timestamp) order. A non-positive or
	// oversized limit falls back to the configured default.
	History(ctx context.Context, userA, userB uint, limit int) ([]*models.Message, error)
}

// historyService is the HistoryService implementation.
type historyService struct {
	msgRepo      storage.MessageRepository
	defaultLimit int
}

// NewHistoryService creates a HistoryService with the configured default
// history limit.
func NewHistoryService(msgRepo storage.MessageRepository, relayCfg config.RelayConfig) HistoryService {
	limit := relayCfg.HistoryLimit
	if limit <= 0 {
		limit = 50
	}
	return &historyService{
		msgRepo:      msgRepo,
		defaultLimit: limit,
	}
}

func (s *historyService) History(ctx context.Context, userA, userB uint, limit int) ([]*models.Message, error) {
	if limit <= 0 || limit > s.defaultLimit {
		limit = s.defaultLimit
	}

	// The store serves the most recent messages first so the limit keeps the
	// newest part of the conversation; re-order to chronological before
	// handing the page to the caller.
	messages, err := s.msgRepo.FindConversation(ctx, userA, userB, limit)
	if err != nil {
		return nil, chattypes.NewStoreError("find conversation", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
