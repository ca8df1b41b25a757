package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renloop/chat-service/internal/domain"
)

type fakeSub struct {
	events chan *domain.Event
	once   sync.Once
	closed chan struct{}
}

func newFakeSub() *fakeSub {
	return &fakeSub{
		events: make(chan *domain.Event, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeSub) Events() <-chan *domain.Event { return f.events }

func (f *fakeSub) Close() error {
	f.once.Do(func() {
		close(f.closed)
		close(f.events)
	})
	return nil
}

type fakeService struct {
	mu       sync.Mutex
	inbound  [][]byte
	response error
}

func (f *fakeService) HandleIncoming(ctx context.Context, roomID, userID string, raw []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbound = append(f.inbound, raw)
	return f.response
}

func (f *fakeService) Authorize(ctx context.Context, roomID, userID string) (*domain.Room, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeService) SendText(ctx context.Context, roomID, senderID, content string) (*domain.Message, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeService) SendAttachment(ctx context.Context, roomID, senderID string, file io.Reader, size int64, filename, fileType string) (*domain.Attachment, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeService) ListRooms(ctx context.Context, userID string) ([]domain.Room, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeService) FetchHistory(ctx context.Context, userID, roomID string, offset, limit int) ([]domain.Message, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeService) UpdateStatus(ctx context.Context, messageID string, delivered, read bool) (*domain.Message, error) {
	return nil, errors.New("not implemented")
}

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// startSession serves one websocket connection through a Session and
// returns a dialed client plus the session's done channel.
func startSession(t *testing.T, svc *fakeService, sub *fakeSub) (*websocket.Conn, chan struct{}) {
	t.Helper()

	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sess := New(conn, svc, sub, "r1", "u1", DefaultConfig())
		sess.Run(r.Context())
		close(done)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, done
}

func readEvent(t *testing.T, conn *websocket.Conn) *domain.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var event domain.Event
	require.NoError(t, json.Unmarshal(raw, &event))
	return &event
}

func TestSessionForwardsBusEvents(t *testing.T) {
	svc := &fakeService{}
	sub := newFakeSub()
	client, _ := startSession(t, svc, sub)

	msg := &domain.Message{ID: "m1", RoomID: "r1", SenderID: "u2", Content: "hi", Kind: domain.MessageKindText}
	event, err := domain.NewMessageEvent(msg)
	require.NoError(t, err)
	sub.events <- event

	got := readEvent(t, client)
	assert.Equal(t, domain.EventTypeMessage, got.Type)

	var data domain.MessageData
	require.NoError(t, json.Unmarshal(got.Data, &data))
	assert.Equal(t, "m1", data.ID)
}

func TestSessionDispatchesInboundFrames(t *testing.T) {
	svc := &fakeService{}
	sub := newFakeSub()
	client, _ := startSession(t, svc, sub)

	frame := []byte(`{"type":"message","data":{"content":"hello"}}`)
	require.NoError(t, client.WriteMessage(websocket.TextMessage, frame))

	require.Eventually(t, func() bool {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		return len(svc.inbound) == 1
	}, 2*time.Second, 10*time.Millisecond)

	svc.mu.Lock()
	assert.JSONEq(t, string(frame), string(svc.inbound[0]))
	svc.mu.Unlock()
}

func TestSessionRepliesInlineOnChatError(t *testing.T) {
	svc := &fakeService{response: fmt.Errorf("bad frame: %w", domain.ErrInvalidMessage)}
	sub := newFakeSub()
	client, _ := startSession(t, svc, sub)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"nonsense"}`)))

	got := readEvent(t, client)
	assert.Equal(t, domain.EventTypeError, got.Type)
	assert.Contains(t, got.Detail, "bad frame")

	// Session stays open after a chat error.
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"nonsense"}`)))
	got = readEvent(t, client)
	assert.Equal(t, domain.EventTypeError, got.Type)
}

func TestSessionTerminatesOnInternalError(t *testing.T) {
	svc := &fakeService{response: errors.New("db exploded")}
	sub := newFakeSub()
	client, done := startSession(t, svc, sub)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"message","data":{"content":"x"}}`)))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate on internal error")
	}

	select {
	case <-sub.closed:
	case <-time.After(time.Second):
		t.Fatal("subscription was not released")
	}
}

func TestSessionStopsPromptlyOnContextCancel(t *testing.T) {
	svc := &fakeService{}
	sub := newFakeSub()

	done := make(chan struct{})
	cancels := make(chan context.CancelFunc, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ctx, cancel := context.WithCancel(r.Context())
		cancels <- cancel
		sess := New(conn, svc, sub, "r1", "u1", DefaultConfig())
		sess.Run(ctx)
		close(done)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	var cancel context.CancelFunc
	select {
	case cancel = <-cancels:
	case <-time.After(2 * time.Second):
		t.Fatal("session never started")
	}
	cancel()

	// The reader must not wait out the pong deadline; the client isn't
	// reading, so only the conn close can unblock it.
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end promptly after context cancellation")
	}

	// Frames sent after teardown must not reach the domain service.
	client.WriteMessage(websocket.TextMessage, []byte(`{"type":"message","data":{"content":"late"}}`))
	time.Sleep(200 * time.Millisecond)
	svc.mu.Lock()
	assert.Empty(t, svc.inbound)
	svc.mu.Unlock()
}

func TestSessionReleasesSubscriptionOnClientDisconnect(t *testing.T) {
	svc := &fakeService{}
	sub := newFakeSub()
	client, done := startSession(t, svc, sub)

	client.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end after client disconnect")
	}

	select {
	case <-sub.closed:
	case <-time.After(time.Second):
		t.Fatal("subscription was not released")
	}
}
