package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renloop/chat-service/internal/auth"
	"github.com/renloop/chat-service/internal/domain"
)

const testSecret = "test-secret"

type stubService struct {
	rooms      []domain.Room
	history    []domain.Message
	attachment *domain.Attachment
	err        error

	lastOffset int
	lastLimit  int
}

func (s *stubService) Authorize(ctx context.Context, roomID, userID string) (*domain.Room, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Room{ID: roomID, LessorID: userID}, nil
}

func (s *stubService) SendText(ctx context.Context, roomID, senderID, content string) (*domain.Message, error) {
	return nil, errors.New("not implemented")
}

func (s *stubService) SendAttachment(ctx context.Context, roomID, senderID string, file io.Reader, size int64, filename, fileType string) (*domain.Attachment, error) {
	if s.err != nil {
		return nil, s.err
	}
	io.Copy(io.Discard, file)
	return s.attachment, nil
}

func (s *stubService) ListRooms(ctx context.Context, userID string) ([]domain.Room, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.rooms, nil
}

func (s *stubService) FetchHistory(ctx context.Context, userID, roomID string, offset, limit int) ([]domain.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.lastOffset = offset
	s.lastLimit = limit
	return s.history, nil
}

func (s *stubService) UpdateStatus(ctx context.Context, messageID string, delivered, read bool) (*domain.Message, error) {
	return nil, errors.New("not implemented")
}

func (s *stubService) HandleIncoming(ctx context.Context, roomID, userID string, raw []byte) error {
	return errors.New("not implemented")
}

func newTestRouter(t *testing.T, svc *stubService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	h := NewHTTPHandler(svc, auth.NewJWTVerifier(testSecret))
	h.RegisterRoutes(r)
	return r
}

func bearerToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: userID,
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doRequest(t *testing.T, r *gin.Engine, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	r := newTestRouter(t, &stubService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rooms", nil)
	w, env := doRequest(t, r, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
}

func TestAuthMiddlewareRejectsBadToken(t *testing.T) {
	r := newTestRouter(t, &stubService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rooms", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w, _ := doRequest(t, r, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListRooms(t *testing.T) {
	svc := &stubService{rooms: []domain.Room{
		{ID: "r1", LessorID: "u1", RenterID: "u2", OrderID: "o1", IsActive: true},
	}}
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rooms", nil)
	req.Header.Set("Authorization", bearerToken(t, "u1"))
	w, env := doRequest(t, r, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	var rooms []domain.Room
	require.NoError(t, json.Unmarshal(env.Data, &rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, "r1", rooms[0].ID)
}

func TestGetMessages(t *testing.T) {
	svc := &stubService{history: []domain.Message{
		{ID: "m1", RoomID: "r1", SenderID: "u1", Content: "hi", Kind: domain.MessageKindText},
	}}
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rooms/r1/messages?offset=10&limit=20", nil)
	req.Header.Set("Authorization", bearerToken(t, "u1"))
	w, env := doRequest(t, r, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.Equal(t, 10, svc.lastOffset)
	assert.Equal(t, 20, svc.lastLimit)
}

func TestGetMessagesValidatesPagination(t *testing.T) {
	r := newTestRouter(t, &stubService{})

	for _, query := range []string{"?offset=-1", "?limit=0", "?offset=abc", "?limit=xyz"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/rooms/r1/messages"+query, nil)
		req.Header.Set("Authorization", bearerToken(t, "u1"))
		w, _ := doRequest(t, r, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "query: %s", query)
	}
}

func TestGetMessagesMapsDomainErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{domain.ErrRoomNotFound, http.StatusNotFound},
		{domain.ErrPermissionDenied, http.StatusForbidden},
		{errors.New("db exploded"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		r := newTestRouter(t, &stubService{err: tc.err})
		req := httptest.NewRequest(http.MethodGet, "/api/v1/rooms/r1/messages", nil)
		req.Header.Set("Authorization", bearerToken(t, "u1"))
		w, _ := doRequest(t, r, req)
		assert.Equal(t, tc.code, w.Code, "error: %v", tc.err)
	}
}

func TestUploadAttachment(t *testing.T) {
	svc := &stubService{attachment: &domain.Attachment{
		ID: "a1", MessageID: "m1", FileType: "image/png", FileURL: "https://blobs.test/chat/r1/x_cat.png",
	}}
	r := newTestRouter(t, svc)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "cat.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("file_type", "image/png"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rooms/r1/attachments", &body)
	req.Header.Set("Authorization", bearerToken(t, "u1"))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w, env := doRequest(t, r, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.Success)

	var att domain.Attachment
	require.NoError(t, json.Unmarshal(env.Data, &att))
	assert.Equal(t, "a1", att.ID)
	assert.Equal(t, "https://blobs.test/chat/r1/x_cat.png", att.FileURL)
}

func TestUploadAttachmentRequiresFile(t *testing.T) {
	r := newTestRouter(t, &stubService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rooms/r1/attachments", nil)
	req.Header.Set("Authorization", bearerToken(t, "u1"))
	w, _ := doRequest(t, r, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthCheck(t *testing.T) {
	r := newTestRouter(t, &stubService{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
