package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dm-go/internal/models"
	"dm-go/internal/storage"

	"gorm.io/gorm"
)

var ErrContactAlreadyExists = errors.New("contact already exists")

// ContactSearchResult is a user search hit annotated with the searcher's
// relationship to that user ("none" when no contact edge exists).
type ContactSearchResult struct {
	models.User
	ContactStatus string `json:"contactStatus"`
}

// DMContact is one entry of the direct-message list: a conversation partner
// and when the conversation was last active.
type DMContact struct {
	User            *models.User `json:"user"`
	LastMessageTime time.Time    `json:"lastMessageTime"`
}

// ContactService defines contact search and management.
type ContactService interface {
	// SearchContacts matches query against email and names, excluding the
	// searching user, annotating each hit with the contact status.
	SearchContacts(ctx context.Context, userID uint, query string) ([]ContactSearchResult, error)
	// AddContact creates a pending contact edge from userID to contactID.
	AddContact(ctx context.Context, userID, contactID uint) (*models.Contact, error)
	// GetContactsForDMList lists everyone userID has exchanged messages
	// with, most recently active first.
	GetContactsForDMList(ctx context.Context, userID uint) ([]DMContact, error)
}

// contactService is the ContactService implementation.
type contactService struct {
	userRepo    storage.UserRepository
	contactRepo storage.ContactRepository
	msgRepo     storage.MessageRepository
}

// NewContactService creates a new ContactService instance.
func NewContactService(userRepo storage.UserRepository, contactRepo storage.ContactRepository, msgRepo storage.MessageRepository) ContactService {
	return &contactService{
		userRepo:    userRepo,
		contactRepo: contactRepo,
		msgRepo:     msgRepo,
	}
}

func (s *contactService) SearchContacts(ctx context.Context, userID uint, query string) ([]ContactSearchResult, error) {
	users, err := s.userRepo.SearchUsers(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("user search failed: %w", err)
	}

	ids := make([]uint, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	statuses, err := s.contactRepo.StatusesFor(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load contact statuses: %w", err)
	}

	results := make([]ContactSearchResult, 0, len(users))
	for _, u := range users {
		status := "none"
		if st, ok := statuses[u.ID]; ok {
			status = string(st)
		}
		results = append(results, ContactSearchResult{User: u, ContactStatus: status})
	}
	return results, nil
}

func (s *contactService) AddContact(ctx context.Context, userID, contactID uint) (*models.Contact, error) {
	if _, err := s.userRepo.GetByID(ctx, contactID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up contact user %d: %w", contactID, err)
	}

	_, err := s.contactRepo.GetByPair(ctx, userID, contactID)
	if err == nil {
		return nil, ErrContactAlreadyExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check existing contact: %w", err)
	}

	contact := &models.Contact{
		UserID:    userID,
		ContactID: contactID,
		Status:    models.ContactPending,
	}
	if err := s.contactRepo.Create(ctx, contact); err != nil {
		return nil, fmt.Errorf("failed to create contact: %w", err)
	}
	return contact, nil
}

func (s *contactService) GetContactsForDMList(ctx context.Context, userID uint) ([]DMContact, error) {
	partners, err := s.msgRepo.ListConversationPartners(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation partners: %w", err)
	}

	ids := make([]uint, 0, len(partners))
	for _, p := range partners {
		ids = append(ids, p.PartnerID)
	}
	users, err := s.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load partner profiles: %w", err)
	}
	byID := make(map[uint]*models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	list := make([]DMContact, 0, len(partners))
	for _, p := range partners {
		user, ok := byID[p.PartnerID]
		if !ok {
			continue // partner account deleted since
		}
		list = append(list, DMContact{User: user, LastMessageTime: p.LastMessageTime})
	}
	return list, nil
}
