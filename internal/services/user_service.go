package services

import (
	"context"
	"fmt"

	"dm-go/internal/models"
	"dm-go/internal/storage"
)

// ProfileUpdate carries the fields of a profile-setup request. Pointer
// fields distinguish "leave unchanged" from an explicit zero value (color 0
// is a valid palette index).
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Color     *int
}

// UserService defines user profile operations.
type UserService interface {
	GetUserProfile(ctx context.Context, userID uint) (*models.User, error)
	// UpdateUserProfile applies update and marks the profile set up.
	UpdateUserProfile(ctx context.Context, userID uint, update ProfileUpdate) (*models.User, error)
	SetProfileImage(ctx context.Context, userID uint, imageURL string) (*models.User, error)
	RemoveProfileImage(ctx context.Context, userID uint) (*models.User, error)
}

// userService is the UserService implementation.
type userService struct {
	userRepo storage.UserRepository
}

// NewUserService creates a new UserService instance.
func NewUserService(userRepo storage.UserRepository) UserService {
	return &userService{userRepo: userRepo}
}

func (s *userService) GetUserProfile(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	return user, nil
}

func (s *userService) UpdateUserProfile(ctx context.Context, userID uint, update ProfileUpdate) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d for profile update: %w", userID, err)
	}

	if update.FirstName != nil {
		user.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		user.LastName = *update.LastName
	}
	if update.Color != nil {
		user.Color = *update.Color
	}
	user.ProfileSetup = true

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user %d: %w", userID, err)
	}
	return user, nil
}

func (s *userService) SetProfileImage(ctx context.Context, userID uint, imageURL string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d for image update: %w", userID, err)
	}
	user.Image = imageURL
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to set image for user %d: %w", userID, err)
	}
	return user, nil
}

func (s *userService) RemoveProfileImage(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d for image removal: %w", userID, err)
	}
	user.Image = ""
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to remove image for user %d: %w", userID, err)
	}
	return user, nil
}
