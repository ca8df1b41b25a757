package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/renloop/chat-service/internal/auth"
	"github.com/renloop/chat-service/internal/domain"
	"github.com/renloop/chat-service/internal/service"
	"github.com/renloop/chat-service/pkg/log"
	"github.com/renloop/chat-service/pkg/response"
)

const ctxUserID = "user_id"

// HTTPHandler serves the REST surface: rooms, history and attachment
// uploads.
type HTTPHandler struct {
	service  service.ChatService
	verifier auth.Verifier
}

// NewHTTPHandler creates the REST handler.
func NewHTTPHandler(svc service.ChatService, verifier auth.Verifier) *HTTPHandler {
	return &HTTPHandler{
		service:  svc,
		verifier: verifier,
	}
}

// RegisterRoutes mounts the REST routes.
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	api.Use(h.AuthMiddleware())
	{
		api.GET("/rooms", h.ListRooms)
		api.GET("/rooms/:room_id/messages", h.GetMessages)
		api.POST("/rooms/:room_id/attachments", h.UploadAttachment)
	}

	r.GET("/health", h.HealthCheck)
}

// AuthMiddleware verifies the Bearer token and stores the caller's user
// ID on the gin context.
func (h *HTTPHandler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			response.Unauthorized(c, "missing bearer token")
			c.Abort()
			return
		}

		identity, err := h.verifier.Verify(token)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}

		c.Set(ctxUserID, identity.UserID)
		c.Next()
	}
}

// ListRooms returns the caller's rooms.
func (h *HTTPHandler) ListRooms(c *gin.Context) {
	userID := c.GetString(ctxUserID)

	rooms, err := h.service.ListRooms(c.Request.Context(), userID)
	if err != nil {
		log.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to list rooms")
		response.InternalError(c, "failed to list rooms")
		return
	}

	response.Success(c, rooms)
}

// GetMessages returns a page of a room's history.
func (h *HTTPHandler) GetMessages(c *gin.Context) {
	userID := c.GetString(ctxUserID)
	roomID := c.Param("room_id")

	offset := 0
	if offsetStr := c.Query("offset"); offsetStr != "" {
		parsed, err := strconv.Atoi(offsetStr)
		if err != nil || parsed < 0 {
			response.BadRequest(c, "offset must be a non-negative integer")
			return
		}
		offset = parsed
	}

	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			response.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	messages, err := h.service.FetchHistory(c.Request.Context(), userID, roomID, offset, limit)
	if err != nil {
		h.writeError(c, err, "failed to fetch history")
		return
	}

	response.Success(c, messages)
}

// UploadAttachment accepts a multipart upload and sends it as a file
// message into the room.
func (h *HTTPHandler) UploadAttachment(c *gin.Context) {
	userID := c.GetString(ctxUserID)
	roomID := c.Param("room_id")

	if _, err := h.service.Authorize(c.Request.Context(), roomID, userID); err != nil {
		h.writeError(c, err, "failed to authorize upload")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "multipart field 'file' is required")
		return
	}
	fileType := c.PostForm("file_type")
	if fileType == "" {
		fileType = fileHeader.Header.Get("Content-Type")
	}

	file, err := fileHeader.Open()
	if err != nil {
		log.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to open uploaded file")
		response.InternalError(c, "failed to read upload")
		return
	}
	defer file.Close()

	attachment, err := h.service.SendAttachment(c.Request.Context(), roomID, userID, file, fileHeader.Size, fileHeader.Filename, fileType)
	if err != nil {
		h.writeError(c, err, "failed to store attachment")
		return
	}

	response.Created(c, attachment)
}

// HealthCheck reports liveness.
func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

// writeError maps domain errors onto the response envelope.
func (h *HTTPHandler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrMessageNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, domain.ErrPermissionDenied):
		response.Forbidden(c, err.Error())
	case errors.Is(err, domain.ErrInvalidMessage):
		response.BadRequest(c, err.Error())
	default:
		log.Ctx(c.Request.Context()).Error().Err(err).Msg(fallback)
		response.InternalError(c, fallback)
	}
}
