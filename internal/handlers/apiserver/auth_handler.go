package apiserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"dm-go/internal/auth"
	"dm-go/internal/middleware"
	"dm-go/internal/models"
	"dm-go/internal/services"
)

// AuthHandler bundles the account and profile HTTP endpoints.
type AuthHandler struct {
	authService    services.AuthService
	userService    services.UserService
	tokenBlacklist auth.TokenBlacklist
}

// NewAuthHandler creates a new AuthHandler instance.
func NewAuthHandler(authService services.AuthService, userService services.UserService, tokenBlacklist auth.TokenBlacklist) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		userService:    userService,
		tokenBlacklist: tokenBlacklist,
	}
}

// CredentialsRequest is the body of signup and login requests.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned on successful signup or login.
type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// UpdateProfileRequest is the body of a profile-setup request. Pointer fields
// distinguish omitted fields from explicit zero values.
type UpdateProfileRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Color     *int    `json:"color"`
}

// Signup handles account creation requests.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if req.Email == "" || req.Password == "" {
		writeJSONError(w, "email and password are required", http.StatusBadRequest)
		return
	}

	token, user, err := h.authService.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrUserAlreadyExists) {
			writeJSONError(w, err.Error(), http.StatusConflict)
		} else {
			log.Printf("Signup failed for %s: %v", req.Email, err)
			writeJSONError(w, "signup failed", http.StatusInternalServerError)
		}
		return
	}

	writeJSONResponse(w, http.StatusCreated, AuthResponse{Token: token, User: user})
}

// Login handles credential verification requests.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if req.Email == "" || req.Password == "" {
		writeJSONError(w, "email and password are required", http.StatusBadRequest)
		return
	}

	token, user, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) || errors.Is(err, services.ErrInvalidCredentials) {
			writeJSONError(w, "invalid email or password", http.StatusUnauthorized)
		} else {
			log.Printf("Login failed for %s: %v", req.Email, err)
			writeJSONError(w, "login failed", http.StatusInternalServerError)
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, AuthResponse{Token: token, User: user})
}

// Logout revokes the current token by blacklisting its JTI until the token
// would have expired on its own.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if claims.ID != "" && claims.ExpiresAt != nil {
		if err := h.tokenBlacklist.Add(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
			log.Printf("Failed to blacklist token %s: %v", claims.ID, err)
			writeJSONError(w, "logout failed", http.StatusInternalServerError)
			return
		}
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// UserInfo returns the authenticated user's profile.
func (h *AuthHandler) UserInfo(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.userService.GetUserProfile(r.Context(), userID)
	if err != nil {
		log.Printf("Failed to load profile for user %d: %v", userID, err)
		writeJSONError(w, "failed to load user info", http.StatusInternalServerError)
		return
	}

	writeJSONResponse(w, http.StatusOK, user)
}

// UpdateProfile applies the profile-setup fields and marks the profile as
// set up.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if req.FirstName == nil || req.LastName == nil {
		writeJSONError(w, "firstName and lastName are required", http.StatusBadRequest)
		return
	}

	user, err := h.userService.UpdateUserProfile(r.Context(), userID, services.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Color:     req.Color,
	})
	if err != nil {
		log.Printf("Failed to update profile for user %d: %v", userID, err)
		writeJSONError(w, "failed to update profile", http.StatusInternalServerError)
		return
	}

	writeJSONResponse(w, http.StatusOK, user)
}

// AddProfileImage stores an uploaded avatar and records its URL on the
// profile.
func (h *AuthHandler) AddProfileImage(storage *UploadHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			writeJSONError(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		fileInfo, err := storage.saveMultipartFile(w, r, "profile-image")
		if err != nil {
			// saveMultipartFile has already written the error response.
			return
		}

		user, err := h.userService.SetProfileImage(r.Context(), userID, fileInfo.URL)
		if err != nil {
			log.Printf("Failed to set profile image for user %d: %v", userID, err)
			writeJSONError(w, "failed to update profile image", http.StatusInternalServerError)
			return
		}

		writeJSONResponse(w, http.StatusOK, user)
	}
}

// RemoveProfileImage clears the profile image URL.
func (h *AuthHandler) RemoveProfileImage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.userService.RemoveProfileImage(r.Context(), userID)
	if err != nil {
		log.Printf("Failed to remove profile image for user %d: %v", userID, err)
		writeJSONError(w, "failed to remove profile image", http.StatusInternalServerError)
		return
	}

	writeJSONResponse(w, http.StatusOK, user)
}
