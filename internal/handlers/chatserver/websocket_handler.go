package chatserver

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"dm-go/internal/chattypes"
	"dm-go/internal/config"
	"dm-go/internal/services"
	"dm-go/internal/storage"
	ws "dm-go/internal/websocket"

	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades chat connections, registers sessions with the
// hub and demuxes the wire events onto the dispatch and history services.
type WebSocketHandler struct {
	hub      *ws.Hub
	dispatch services.DispatchService
	history  services.HistoryService
	cfg      config.Config
}

// NewWebSocketHandler creates a new WebSocketHandler instance.
func NewWebSocketHandler(hub *ws.Hub, dispatch services.DispatchService, history services.HistoryService, cfg config.Config) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		dispatch: dispatch,
		history:  history,
		cfg:      cfg,
	}
}

// ServeWS handles an incoming WebSocket request. A connection without a
// userId query parameter is rejected outright; no session is ever registered
// without one. On success the session is registered (evicting any previous
// session for the same user) and the user's undelivered backlog is flushed
// before live emissions reach the new session.
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userIDParam := r.URL.Query().Get("userId")
	if userIDParam == "" {
		log.Println("Connection rejected: no userId provided")
		http.Error(w, "userId query parameter is required", http.StatusBadRequest)
		return
	}
	userID, err := storage.StrToUint(userIDParam)
	if err != nil || userID == 0 {
		log.Printf("Connection rejected: invalid userId %q", userIDParam)
		http.Error(w, "invalid userId", http.StatusBadRequest)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  h.cfg.WebSocket.MaxMessageSizeBytes,
		WriteBufferSize: h.cfg.WebSocket.MaxMessageSizeBytes,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("WebSocket upgrade failed:", err)
		return
	}

	client := ws.NewClient(h.hub, conn, userID, h.handleFrame, h.cfg.WebSocket)
	h.hub.Register(client)

	go client.WritePump(h.cfg.WebSocket)
	go client.ReadPump(h.cfg.WebSocket)

	log.Printf("User %d connected with session %s", userID, client.SessionToken)

	h.flushBacklog(r.Context(), client)
}

// flushBacklog emits everything awaiting delivery to the client's user and
// opens the client for live emissions. Only messages the session actually
// accepted are marked delivered; anything it could not take stays an
// undelivered row and is served again on the next connect.
func (h *WebSocketHandler) flushBacklog(ctx context.Context, client *ws.Client) {
	backlog, err := h.dispatch.Backlog(ctx, client.UserID)
	if err != nil {
		log.Printf("Failed to load backlog for user %d: %v", client.UserID, err)
		client.ReleaseBacklog(nil)
		return
	}

	payloads := make([][]byte, 0, len(backlog))
	ids := make([]uint, 0, len(backlog))
	for _, m := range backlog {
		payload, err := services.EncodeReceiveMessage(m)
		if err != nil {
			log.Printf("Failed to encode backlog message %d: %v", m.ID, err)
			continue
		}
		payloads = append(payloads, payload)
		ids = append(ids, m.ID)
	}

	accepted := client.ReleaseBacklog(payloads)
	confirm := make([]uint, 0, len(accepted))
	for _, i := range accepted {
		confirm = append(confirm, ids[i])
	}
	if len(confirm) < len(ids) {
		log.Printf("Backlog flush for user %d queued %d of %d messages; the rest stay undelivered",
			client.UserID, len(confirm), len(ids))
	}
	if len(confirm) == 0 {
		return
	}

	if err := h.dispatch.ConfirmDelivered(ctx, confirm); err != nil {
		log.Printf("Failed to confirm delivery of backlog for user %d: %v", client.UserID, err)
	}
}

// handleFrame demuxes one inbound frame. Unknown events are logged and
// dropped; malformed frames earn the sender a messageError.
func (h *WebSocketHandler) handleFrame(ctx context.Context, client *ws.Client, frame []byte) {
	var env chattypes.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		log.Printf("Malformed frame from user %d: %v", client.UserID, err)
		h.sendError(client, "", "malformed frame", err.Error())
		return
	}

	switch env.Event {
	case chattypes.EventSendMessage:
		h.handleSendMessage(ctx, client, env)
	case chattypes.EventRequestHistory:
		h.handleHistoryRequest(ctx, client, env)
	default:
		log.Printf("Unknown event %q from user %d", env.Event, client.UserID)
	}
}

func (h *WebSocketHandler) handleSendMessage(ctx context.Context, client *ws.Client, env chattypes.Envelope) {
	var payload chattypes.SendMessagePayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		h.sendError(client, env.AckID, "malformed sendMessage payload", err.Error())
		return
	}
	// The connection is authenticated as client.UserID; never trust the
	// sender field from the wire.
	payload.Sender = client.UserID

	if _, err := h.dispatch.Send(ctx, payload); err != nil {
		h.sendError(client, env.AckID, "Failed to send message", err.Error())
	}
}

func (h *WebSocketHandler) handleHistoryRequest(ctx context.Context, client *ws.Client, env chattypes.Envelope) {
	var req chattypes.HistoryRequestPayload
	if err := json.Unmarshal(env.Data, &req); err != nil {
		h.sendError(client, env.AckID, "malformed requestMessageHistory payload", err.Error())
		return
	}

	var result chattypes.HistoryResult
	messages, err := h.history.History(ctx, client.UserID, req.OtherUserID, req.Limit)
	if err != nil {
		log.Printf("History request failed for users (%d, %d): %v", client.UserID, req.OtherUserID, err)
		result = chattypes.HistoryResult{Success: false, Error: err.Error()}
	} else {
		result = chattypes.HistoryResult{Success: true, Messages: messages}
	}

	data, err := json.Marshal(result)
	if err != nil {
		log.Printf("Failed to marshal history result: %v", err)
		return
	}
	reply, err := json.Marshal(chattypes.Envelope{
		Event: chattypes.EventMessageHistory,
		AckID: env.AckID,
		Data:  data,
	})
	if err != nil {
		log.Printf("Failed to marshal history reply: %v", err)
		return
	}
	client.Enqueue(reply)
}

func (h *WebSocketHandler) sendError(client *ws.Client, ackID, message, details string) {
	data, err := json.Marshal(chattypes.ErrorPayload{Error: message, Details: details})
	if err != nil {
		return
	}
	payload, err := json.Marshal(chattypes.Envelope{
		Event: chattypes.EventMessageError,
		AckID: ackID,
		Data:  data,
	})
	if err != nil {
		return
	}
	client.Enqueue(payload)
}
