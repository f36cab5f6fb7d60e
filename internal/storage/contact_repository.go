package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"dm-go/internal/models"
)

// ContactRepository defines the interface for contact data operations.
type ContactRepository interface {
	Create(ctx context.Context, contact *models.Contact) error
	// GetByPair returns the contact edge from userID to contactID, or
	// gorm.ErrRecordNotFound.
	GetByPair(ctx context.Context, userID, contactID uint) (*models.Contact, error)
	// StatusesFor returns the contact status userID holds toward each of the
	// given users; missing entries mean no relationship exists.
	StatusesFor(ctx context.Context, userID uint, contactIDs []uint) (map[uint]models.ContactStatus, error)
}

// gormContactRepository implements ContactRepository using GORM.
type gormContactRepository struct {
	db *gorm.DB
}

// NewGormContactRepository creates a new GORM-based ContactRepository.
func NewGormContactRepository(db *gorm.DB) ContactRepository {
	return &gormContactRepository{db: db}
}

func (r *gormContactRepository) Create(ctx context.Context, contact *models.Contact) error {
	return r.db.WithContext(ctx).Create(contact).Error
}

func (r *gormContactRepository) GetByPair(ctx context.Context, userID, contactID uint) (*models.Contact, error) {
	var contact models.Contact
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND contact_id = ?", userID, contactID).
		First(&contact).Error
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

func (r *gormContactRepository) StatusesFor(ctx context.Context, userID uint, contactIDs []uint) (map[uint]models.ContactStatus, error) {
	statuses := make(map[uint]models.ContactStatus)
	if len(contactIDs) == 0 {
		return statuses, nil
	}
	var contacts []models.Contact
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND contact_id IN ?", userID, contactIDs).
		Find(&contacts).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	for _, c := range contacts {
		statuses[c.ContactID] = c.Status
	}
	return statuses, nil
}
