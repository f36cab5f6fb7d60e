package chatserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"dm-go/internal/chattypes"
	"dm-go/internal/config"
	"dm-go/internal/models"
	ws "dm-go/internal/websocket"

	"github.com/gorilla/websocket"
)

var testCfg = config.Config{
	WebSocket: config.WebSocketConfig{
		WriteWaitSeconds:    10,
		PongWaitSeconds:     60,
		PingPeriodSeconds:   54,
		MaxMessageSizeBytes: 65536,
		SendBufferSize:      16,
	},
}

// fakeDispatch records Send and ConfirmDelivered calls and serves a canned
// backlog.
type fakeDispatch struct {
	mu        sync.Mutex
	backlog   []*models.Message
	sent      []chattypes.SendMessagePayload
	confirmed [][]uint
	sendCh    chan chattypes.SendMessagePayload
}

func newFakeDispatch(backlog ...*models.Message) *fakeDispatch {
	return &fakeDispatch{backlog: backlog, sendCh: make(chan chattypes.SendMessagePayload, 8)}
}

func (d *fakeDispatch) Send(ctx context.Context, input chattypes.SendMessagePayload) (*models.Message, error) {
	d.mu.Lock()
	d.sent = append(d.sent, input)
	d.mu.Unlock()
	d.sendCh <- input
	m := &models.Message{SenderID: input.Sender, RecipientID: input.Recipient, Type: models.MessageType(input.MessageType), Content: input.Content}
	m.ID = 1
	return m, nil
}

func (d *fakeDispatch) Backlog(ctx context.Context, userID uint) ([]*models.Message, error) {
	return d.backlog, nil
}

func (d *fakeDispatch) ConfirmDelivered(ctx context.Context, ids []uint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.confirmed = append(d.confirmed, ids)
	return nil
}

func (d *fakeDispatch) confirmedIDs() [][]uint {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]uint(nil), d.confirmed...)
}

// fakeHistory serves a canned conversation.
type fakeHistory struct {
	messages []*models.Message
}

func (h *fakeHistory) History(ctx context.Context, userA, userB uint, limit int) ([]*models.Message, error) {
	return h.messages, nil
}

func backlogMsg(id uint, content string) *models.Message {
	m := &models.Message{SenderID: 1, RecipientID: 2, Type: models.TextMessage, Content: content, Timestamp: time.Now()}
	m.ID = id
	return m
}

func TestServeWSRejectsMissingUserID(t *testing.T) {
	h := NewWebSocketHandler(ws.NewHub(), newFakeDispatch(), &fakeHistory{}, testCfg)

	rec := httptest.NewRecorder()
	h.ServeWS(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d without userId, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = httptest.NewRecorder()
	h.ServeWS(rec, httptest.NewRequest(http.MethodGet, "/ws?userId=banana", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d with invalid userId, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = httptest.NewRecorder()
	h.ServeWS(rec, httptest.NewRequest(http.MethodGet, "/ws?userId=0", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d with zero userId, want %d", rec.Code, http.StatusBadRequest)
	}
}

// readPayloads reads one WebSocket frame and splits the newline-aggregated
// payloads it carries.
func readPayloads(t *testing.T, conn *websocket.Conn) [][]byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage returned error: %v", err)
	}
	return bytes.Split(frame, []byte("\n"))
}

func TestConnectFlushesBacklogThenConfirms(t *testing.T) {
	dispatch := newFakeDispatch(backlogMsg(11, "first"), backlogMsg(12, "second"))
	h := NewWebSocketHandler(ws.NewHub(), dispatch, &fakeHistory{}, testCfg)

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?userId=2"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial returned error: %v", err)
	}
	defer conn.Close()

	var payloads [][]byte
	for len(payloads) < 2 {
		payloads = append(payloads, readPayloads(t, conn)...)
	}

	for i, want := range []string{"first", "second"} {
		var env chattypes.Envelope
		if err := json.Unmarshal(payloads[i], &env); err != nil {
			t.Fatalf("payload %d is not an envelope: %v", i, err)
		}
		if env.Event != chattypes.EventReceiveMessage {
			t.Errorf("payload %d event = %q, want %q", i, env.Event, chattypes.EventReceiveMessage)
		}
		var msg models.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			t.Fatalf("payload %d data is not a message: %v", i, err)
		}
		if msg.Content != want {
			t.Errorf("payload %d content = %q, want %q", i, msg.Content, want)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		confirmed := dispatch.confirmedIDs()
		if len(confirmed) > 0 {
			if len(confirmed[0]) != 2 || confirmed[0][0] != 11 || confirmed[0][1] != 12 {
				t.Errorf("confirmed ids = %v, want [11 12]", confirmed[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("ConfirmDelivered was never called")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestFlushBacklogConfirmsOnlyQueuedMessages(t *testing.T) {
	dispatch := newFakeDispatch(backlogMsg(11, "a"), backlogMsg(12, "b"), backlogMsg(13, "c"))
	cfg := testCfg
	cfg.WebSocket.SendBufferSize = 2
	hub := ws.NewHub()
	h := NewWebSocketHandler(hub, dispatch, &fakeHistory{}, cfg)

	client := ws.NewClient(hub, nil, 2, nil, cfg.WebSocket)
	hub.Register(client)
	h.flushBacklog(context.Background(), client)

	confirmed := dispatch.confirmedIDs()
	if len(confirmed) != 1 {
		t.Fatalf("ConfirmDelivered called %d times, want 1", len(confirmed))
	}
	// The third message overflowed the send buffer; it must stay undelivered.
	if len(confirmed[0]) != 2 || confirmed[0][0] != 11 || confirmed[0][1] != 12 {
		t.Errorf("confirmed ids = %v, want [11 12]", confirmed[0])
	}
}

func TestFlushBacklogAfterDisconnectConfirmsNothing(t *testing.T) {
	dispatch := newFakeDispatch(backlogMsg(11, "a"), backlogMsg(12, "b"))
	hub := ws.NewHub()
	h := NewWebSocketHandler(hub, dispatch, &fakeHistory{}, testCfg)

	client := ws.NewClient(hub, nil, 2, nil, testCfg.WebSocket)
	hub.Register(client)
	// The connection drops between the backlog query and the flush.
	hub.Unregister(client)
	h.flushBacklog(context.Background(), client)

	if confirmed := dispatch.confirmedIDs(); len(confirmed) != 0 {
		t.Errorf("ConfirmDelivered called with %v for a closed session, want no calls", confirmed)
	}
}

func TestSendMessageUsesAuthenticatedSender(t *testing.T) {
	dispatch := newFakeDispatch()
	h := NewWebSocketHandler(ws.NewHub(), dispatch, &fakeHistory{}, testCfg)

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?userId=5"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial returned error: %v", err)
	}
	defer conn.Close()

	// The wire sender claims to be user 999; the server must replace it.
	data, _ := json.Marshal(chattypes.SendMessagePayload{
		Sender:      999,
		Recipient:   2,
		MessageType: string(models.TextMessage),
		Content:     "hi",
	})
	frame, _ := json.Marshal(chattypes.Envelope{Event: chattypes.EventSendMessage, Data: data})
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("WriteMessage returned error: %v", err)
	}

	select {
	case sent := <-dispatch.sendCh:
		if sent.Sender != 5 {
			t.Errorf("dispatched sender = %d, want the authenticated user 5", sent.Sender)
		}
		if sent.Recipient != 2 || sent.Content != "hi" {
			t.Errorf("dispatched payload = %+v", sent)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch.Send was never called")
	}
}

func TestHistoryRequestEchoesAckID(t *testing.T) {
	history := &fakeHistory{messages: []*models.Message{backlogMsg(1, "a"), backlogMsg(2, "b")}}
	h := NewWebSocketHandler(ws.NewHub(), newFakeDispatch(), history, testCfg)

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?userId=2"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial returned error: %v", err)
	}
	defer conn.Close()

	data, _ := json.Marshal(chattypes.HistoryRequestPayload{OtherUserID: 1})
	frame, _ := json.Marshal(chattypes.Envelope{Event: chattypes.EventRequestHistory, AckID: "req-42", Data: data})
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("WriteMessage returned error: %v", err)
	}

	payloads := readPayloads(t, conn)
	var env chattypes.Envelope
	if err := json.Unmarshal(payloads[0], &env); err != nil {
		t.Fatalf("reply is not an envelope: %v", err)
	}
	if env.Event != chattypes.EventMessageHistory {
		t.Errorf("reply event = %q, want %q", env.Event, chattypes.EventMessageHistory)
	}
	if env.AckID != "req-42" {
		t.Errorf("reply ackId = %q, want req-42", env.AckID)
	}
	var result chattypes.HistoryResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("reply data is not a HistoryResult: %v", err)
	}
	if !result.Success {
		t.Errorf("result.Success = false, error %q", result.Error)
	}
}
