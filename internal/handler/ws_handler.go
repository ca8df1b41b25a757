package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/renloop/chat-service/internal/auth"
	"github.com/renloop/chat-service/internal/bus"
	"github.com/renloop/chat-service/internal/service"
	"github.com/renloop/chat-service/internal/session"
	"github.com/renloop/chat-service/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler terminates live-channel connections.
type WSHandler struct {
	service  service.ChatService
	bus      bus.Bus
	verifier auth.Verifier
	cfg      session.Config
}

// NewWSHandler creates the websocket handler.
func NewWSHandler(svc service.ChatService, b bus.Bus, verifier auth.Verifier, cfg session.Config) *WSHandler {
	return &WSHandler{
		service:  svc,
		bus:      b,
		verifier: verifier,
		cfg:      cfg,
	}
}

// RegisterRoutes mounts the live channel route.
func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws/chat/:room_id", h.HandleChat)
}

// HandleChat authenticates and authorizes the caller, then hands the
// connection to a session. Failures close the socket with a policy
// violation so clients can tell rejection from transport trouble.
func (h *WSHandler) HandleChat(c *gin.Context) {
	roomID := c.Param("room_id")
	token := c.Query("token")
	l := log.Ctx(c.Request.Context())

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	identity, err := h.verifier.Verify(token)
	if err != nil {
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("websocket auth failed")
		h.reject(conn, "invalid credentials")
		return
	}

	if _, err := h.service.Authorize(c.Request.Context(), roomID, identity.UserID); err != nil {
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Str(log.FieldUserID, identity.UserID).Msg("websocket authorization failed")
		h.reject(conn, "not a participant of this room")
		return
	}

	ctx := log.WithLogger(c.Request.Context(),
		l.With().Str(log.FieldRoomID, roomID).Str(log.FieldUserID, identity.UserID).Logger())

	sub, err := h.bus.Subscribe(ctx, roomID)
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to subscribe to room events")
		conn.Close()
		return
	}

	l.Info().Str(log.FieldRoomID, roomID).Str(log.FieldUserID, identity.UserID).Msg("chat session opened")
	sess := session.New(conn, h.service, sub, roomID, identity.UserID, h.cfg)
	sess.Run(ctx)
	l.Info().Str(log.FieldRoomID, roomID).Str(log.FieldUserID, identity.UserID).Msg("chat session closed")
}

// reject closes an upgraded connection with a policy-violation close
// frame before the session ever starts.
func (h *WSHandler) reject(conn *websocket.Conn, reason string) {
	deadline := time.Now().Add(time.Second)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), deadline)
	conn.Close()
}
