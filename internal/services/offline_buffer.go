package services

import (
	"log"
	"sync"

	"dm-go/internal/models"
)

// OfflineBuffer holds messages addressed to users with no active session,
// keyed by recipient, in send order. Enqueue and Drain are atomic with
// respect to each other: an enqueue racing a drain lands either in the
// drained batch or in a fresh queue, never nowhere.
//
// The buffer is a latency optimization, not the durability layer: every
// entry is also an undelivered row in the message store, which is why
// overflow may drop the oldest in-memory entry without losing the message.
type OfflineBuffer struct {
	mu         sync.Mutex
	queues     map[uint][]*models.Message
	maxPerUser int
}

// NewOfflineBuffer creates an OfflineBuffer capping each user's queue at
// maxPerUser entries (0 means unbounded).
func NewOfflineBuffer(maxPerUser int) *OfflineBuffer {
	return &OfflineBuffer{
		queues:     make(map[uint][]*models.Message),
		maxPerUser: maxPerUser,
	}
}

// Enqueue appends message to userID's queue. When the cap is reached the
// oldest entry is dropped from memory; it remains recoverable through the
// store's undelivered query on the user's next connect.
func (b *OfflineBuffer) Enqueue(userID uint, message *models.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	queue := append(b.queues[userID], message)
	if b.maxPerUser > 0 && len(queue) > b.maxPerUser {
		dropped := queue[0]
		queue = queue[1:]
		log.Printf("Offline queue for user %d is full, dropping oldest entry (message %d) from memory", userID, dropped.ID)
	}
	b.queues[userID] = queue
}

// Drain removes and returns all queued messages for userID in FIFO order.
func (b *OfflineBuffer) Drain(userID uint) []*models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	queue := b.queues[userID]
	delete(b.queues, userID)
	return queue
}

// Len returns the number of messages queued for userID.
func (b *OfflineBuffer) Len(userID uint) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[userID])
}
