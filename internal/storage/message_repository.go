package storage

import (
	"context"
	"time"

	"gorm.io/gorm"

	"dm-go/internal/models"
)

// MessageRepository defines the message store consumed by the dispatch
// pipeline and the history service. Create assigns the id and row timestamps;
// rows are append-only apart from the delivered flag.
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	// GetByID returns the message with sender and recipient profiles loaded.
	GetByID(ctx context.Context, id uint) (*models.Message, error)
	// FindConversation returns up to limit messages exchanged between the two
	// users in either direction, most recent first.
	FindConversation(ctx context.Context, userA, userB uint, limit int) ([]*models.Message, error)
	// FindUndelivered returns every message addressed to userID that has not
	// been delivered yet, oldest first. It is the durable counterpart of the
	// in-memory offline buffer.
	FindUndelivered(ctx context.Context, userID uint) ([]*models.Message, error)
	// MarkDelivered flips the delivered flag for the given message ids.
	MarkDelivered(ctx context.Context, ids []uint) error
	// ListConversationPartners returns the users userID has exchanged
	// messages with, most recently active first.
	ListConversationPartners(ctx context.Context, userID uint) ([]ConversationPartner, error)
}

// ConversationPartner pairs a conversation counterpart with the time of the
// latest message in that conversation.
type ConversationPartner struct {
	PartnerID       uint      `json:"partnerId"`
	LastMessageTime time.Time `json:"lastMessageTime"`
}

// gormMessageRepository implements MessageRepository using GORM.
type gormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-based MessageRepository.
func NewGormMessageRepository(db *gorm.DB) MessageRepository {
	return &gormMessageRepository{db: db}
}

func (r *gormMessageRepository) Create(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *gormMessageRepository) GetByID(ctx context.Context, id uint) (*models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).
		Preload("Sender").
		Preload("Recipient").
		First(&message, id).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *gormMessageRepository) FindConversation(ctx context.Context, userA, userB uint, limit int) ([]*models.Message, error) {
	var messages []*models.Message
	query := r.db.WithContext(ctx).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
			userA, userB, userB, userA).
		Order("timestamp DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Preload("Sender").Preload("Recipient").Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *gormMessageRepository) FindUndelivered(ctx context.Context, userID uint) ([]*models.Message, error) {
	var messages []*models.Message
	err := r.db.WithContext(ctx).
		Where("recipient_id = ? AND delivered = ?", userID, false).
		Order("timestamp ASC").
		Preload("Sender").
		Preload("Recipient").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *gormMessageRepository) MarkDelivered(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id IN ?", ids).
		Update("delivered", true).Error
}

func (r *gormMessageRepository) ListConversationPartners(ctx context.Context, userID uint) ([]ConversationPartner, error) {
	var partners []ConversationPartner
	err := r.db.WithContext(ctx).Raw(`
		SELECT partner_id, MAX(timestamp) AS last_message_time
		FROM (
			SELECT CASE WHEN sender_id = ? THEN recipient_id ELSE sender_id END AS partner_id,
			       timestamp
			FROM messages
			WHERE (sender_id = ? OR recipient_id = ?) AND deleted_at IS NULL
		) conv
		GROUP BY partner_id
		ORDER BY last_message_time DESC`,
		userID, userID, userID).
		Scan(&partners).Error
	if err != nil {
		return nil, err
	}
	return partners, nil
}
