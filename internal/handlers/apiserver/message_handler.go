package apiserver

import (
	"encoding/json"
	"log"
	"net/http"

	"dm-go/internal/middleware"
	"dm-go/internal/services"
)

// MessageHandler exposes conversation history over HTTP for clients that
// are not connected to the chat server.
type MessageHandler struct {
	historyService services.HistoryService
}

// NewMessageHandler creates a new MessageHandler instance.
func NewMessageHandler(historyService services.HistoryService) *MessageHandler {
	return &MessageHandler{historyService: historyService}
}

// GetMessagesRequest is the body of a conversation history request.
type GetMessagesRequest struct {
	OtherUserID uint `json:"id"`
	Limit       int  `json:"limit"`
}

// GetMessages returns the caller's conversation with the given user in
// chronological order.
func (h *MessageHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req GetMessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if req.OtherUserID == 0 {
		writeJSONError(w, "id is required", http.StatusBadRequest)
		return
	}

	messages, err := h.historyService.History(r.Context(), userID, req.OtherUserID, req.Limit)
	if err != nil {
		log.Printf("Failed to load conversation (%d, %d): %v", userID, req.OtherUserID, err)
		writeJSONError(w, "failed to load messages", http.StatusInternalServerError)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"messages": messages})
}
