package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/renloop/chat-service/internal/bus"
	"github.com/renloop/chat-service/internal/domain"
	"github.com/renloop/chat-service/internal/service"
	"github.com/renloop/chat-service/pkg/log"
)

// Config tunes the websocket connection handling.
type Config struct {
	WriteWait      time.Duration `mapstructure:"write_wait"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

// DefaultConfig returns sane connection settings. PingInterval must stay
// below PongWait or healthy connections time out.
func DefaultConfig() Config {
	return Config{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingInterval:   54 * time.Second,
		MaxMessageSize: 64 * 1024,
		SendBuffer:     256,
	}
}

// Session drives one live connection after it has been authenticated and
// authorized: it reads inbound frames into the chat service, forwards bus
// events to the client, and owns the connection teardown.
type Session struct {
	conn   *websocket.Conn
	svc    service.ChatService
	sub    bus.Subscription
	roomID string
	userID string
	cfg    Config
	out    chan *domain.Event
}

// New creates a session for an accepted connection. sub is owned by the
// session from here on and is closed when the session ends.
func New(conn *websocket.Conn, svc service.ChatService, sub bus.Subscription, roomID, userID string, cfg Config) *Session {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	return &Session{
		conn:   conn,
		svc:    svc,
		sub:    sub,
		roomID: roomID,
		userID: userID,
		cfg:    cfg,
		out:    make(chan *domain.Event, cfg.SendBuffer),
	}
}

// Run blocks until the session is over. Any duty exiting cancels the
// others; all duties are awaited and the bus subscription is released
// before Run returns.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.sub.Close()
	defer s.conn.Close()

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		defer cancel()
		s.readPump(ctx)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		s.writePump(ctx)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		s.forwardBus(ctx)
	}()

	wg.Wait()
}

// readPump reads inbound frames and dispatches them to the chat service.
// Chat errors go back to this client as error events; anything else ends
// the session.
func (s *Session) readPump(ctx context.Context) {
	l := log.Ctx(ctx)

	s.conn.SetReadLimit(s.cfg.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				l.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		if err := s.svc.HandleIncoming(ctx, s.roomID, s.userID, raw); err != nil {
			if domain.IsChatError(err) {
				s.enqueue(ctx, domain.NewErrorEvent(err.Error()))
				continue
			}
			l.Error().Err(err).Msg("inbound dispatch failed, closing session")
			return
		}
	}
}

// writePump is the sole writer on the connection.
func (s *Session) writePump(ctx context.Context) {
	l := log.Ctx(ctx)

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		// Closing the conn here unblocks the reader, which otherwise sits
		// in ReadMessage until the pong deadline expires.
		s.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case event := <-s.out:
			data, err := json.Marshal(event)
			if err != nil {
				l.Error().Err(err).Msg("failed to marshal outbound event")
				continue
			}
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// forwardBus moves the room's bus events into the outbound queue in
// receipt order.
func (s *Session) forwardBus(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-s.sub.Events():
			if !ok {
				return
			}
			s.enqueue(ctx, event)
		}
	}
}

func (s *Session) enqueue(ctx context.Context, event *domain.Event) {
	select {
	case s.out <- event:
	case <-ctx.Done():
	default:
		log.Ctx(ctx).Warn().Str(log.FieldRoomID, s.roomID).Msg("outbound queue full, dropping event")
	}
}
