package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renloop/chat-service/internal/auth"
	"github.com/renloop/chat-service/internal/bus"
	"github.com/renloop/chat-service/internal/domain"
	"github.com/renloop/chat-service/internal/session"
)

type memorySub struct {
	events chan *domain.Event
}

func (s *memorySub) Events() <-chan *domain.Event { return s.events }
func (s *memorySub) Close() error                 { return nil }

type memoryBus struct {
	subs chan *memorySub
}

func newMemoryBus() *memoryBus {
	return &memoryBus{subs: make(chan *memorySub, 4)}
}

func (b *memoryBus) Publish(ctx context.Context, roomID string, event *domain.Event) error {
	return nil
}

func (b *memoryBus) Subscribe(ctx context.Context, roomID string) (bus.Subscription, error) {
	sub := &memorySub{events: make(chan *domain.Event, 16)}
	b.subs <- sub
	return sub, nil
}

func (b *memoryBus) Close() error { return nil }

func newWSServer(t *testing.T, svc *stubService, b bus.Bus) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	h := NewWSHandler(svc, b, auth.NewJWTVerifier(testSecret), session.DefaultConfig())
	h.RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dialChat(t *testing.T, srv *httptest.Server, roomID, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat/" + roomID
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func expectPolicyViolation(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected a close frame, got %v", err)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}

func TestWSRejectsMissingToken(t *testing.T) {
	srv := newWSServer(t, &stubService{}, newMemoryBus())
	conn := dialChat(t, srv, "r1", "")
	expectPolicyViolation(t, conn)
}

func TestWSRejectsInvalidToken(t *testing.T) {
	srv := newWSServer(t, &stubService{}, newMemoryBus())
	conn := dialChat(t, srv, "r1", "not-a-token")
	expectPolicyViolation(t, conn)
}

func TestWSRejectsNonParticipant(t *testing.T) {
	svc := &stubService{err: domain.ErrPermissionDenied}
	srv := newWSServer(t, svc, newMemoryBus())

	token := strings.TrimPrefix(bearerToken(t, "stranger"), "Bearer ")
	conn := dialChat(t, srv, "r1", token)
	expectPolicyViolation(t, conn)
}

func TestWSDeliversRoomEvents(t *testing.T) {
	b := newMemoryBus()
	srv := newWSServer(t, &stubService{}, b)

	token := strings.TrimPrefix(bearerToken(t, "u1"), "Bearer ")
	conn := dialChat(t, srv, "r1", token)

	var sub *memorySub
	select {
	case sub = <-b.subs:
	case <-time.After(2 * time.Second):
		t.Fatal("session never subscribed to the bus")
	}

	msg := &domain.Message{ID: "m1", RoomID: "r1", SenderID: "u2", Content: "hi", Kind: domain.MessageKindText}
	event, err := domain.NewMessageEvent(msg)
	require.NoError(t, err)
	sub.events <- event

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var got domain.Event
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, domain.EventTypeMessage, got.Type)
}
