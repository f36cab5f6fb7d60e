package apiserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"dm-go/internal/middleware"
	"dm-go/internal/services"
)

// ContactHandler bundles the contact search and management HTTP endpoints.
type ContactHandler struct {
	contactService services.ContactService
}

// NewContactHandler creates a new ContactHandler instance.
func NewContactHandler(contactService services.ContactService) *ContactHandler {
	return &ContactHandler{contactService: contactService}
}

// SearchRequest is the body of a contact search request.
type SearchRequest struct {
	SearchTerm string `json:"searchTerm"`
}

// AddContactRequest is the body of an add-contact request.
type AddContactRequest struct {
	ContactID uint `json:"contactId"`
}

// Search matches the search term against other users' emails and names,
// annotating each hit with the caller's contact status for that user.
func (h *ContactHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if req.SearchTerm == "" {
		writeJSONError(w, "searchTerm is required", http.StatusBadRequest)
		return
	}

	results, err := h.contactService.SearchContacts(r.Context(), userID, req.SearchTerm)
	if err != nil {
		log.Printf("Contact search failed for user %d: %v", userID, err)
		writeJSONError(w, "contact search failed", http.StatusInternalServerError)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"contacts": results})
}

// Add creates a pending contact edge from the caller to the given user.
func (h *ContactHandler) Add(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req AddContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if req.ContactID == 0 {
		writeJSONError(w, "contactId is required", http.StatusBadRequest)
		return
	}
	if req.ContactID == userID {
		writeJSONError(w, "cannot add yourself as a contact", http.StatusBadRequest)
		return
	}

	contact, err := h.contactService.AddContact(r.Context(), userID, req.ContactID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrContactAlreadyExists):
			writeJSONError(w, err.Error(), http.StatusConflict)
		case errors.Is(err, services.ErrUserNotFound):
			writeJSONError(w, err.Error(), http.StatusNotFound)
		default:
			log.Printf("Failed to add contact %d for user %d: %v", req.ContactID, userID, err)
			writeJSONError(w, "failed to add contact", http.StatusInternalServerError)
		}
		return
	}

	writeJSONResponse(w, http.StatusCreated, contact)
}

// DMList lists everyone the caller has exchanged messages with, most
// recently active first.
func (h *ContactHandler) DMList(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	contacts, err := h.contactService.GetContactsForDMList(r.Context(), userID)
	if err != nil {
		log.Printf("Failed to list DM contacts for user %d: %v", userID, err)
		writeJSONError(w, "failed to load contacts", http.StatusInternalServerError)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"contacts": contacts})
}
