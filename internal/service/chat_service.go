package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/renloop/chat-service/internal/bus"
	"github.com/renloop/chat-service/internal/cache"
	"github.com/renloop/chat-service/internal/domain"
	"github.com/renloop/chat-service/internal/repository"
	"github.com/renloop/chat-service/pkg/log"
	"github.com/renloop/chat-service/pkg/storage"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// Options tunes the optional parts of the service.
type Options struct {
	// HistoryCacheTTL controls how long history pages stay cached.
	// Keep it shorter than URLTTL: cached attachments carry resolved links.
	HistoryCacheTTL time.Duration
	// URLTTL is the lifetime of attachment links handed to clients.
	URLTTL time.Duration
}

type chatService struct {
	rooms    repository.RoomRepository
	messages repository.MessageRepository
	bus      bus.Bus
	blobs    storage.Storage
	history  cache.HistoryCache // nil disables caching
	group    singleflight.Group
	opts     Options
}

// New creates the chat service. history may be nil to disable the
// history page cache.
func New(rooms repository.RoomRepository, messages repository.MessageRepository, b bus.Bus, blobs storage.Storage, history cache.HistoryCache, opts Options) ChatService {
	if opts.HistoryCacheTTL <= 0 {
		opts.HistoryCacheTTL = 30 * time.Second
	}
	if opts.URLTTL <= 0 {
		opts.URLTTL = 15 * time.Minute
	}
	return &chatService{
		rooms:    rooms,
		messages: messages,
		bus:      b,
		blobs:    blobs,
		history:  history,
		opts:     opts,
	}
}

func (s *chatService) Authorize(ctx context.Context, roomID, userID string) (*domain.Room, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(userID) {
		return nil, domain.ErrPermissionDenied
	}
	return room, nil
}

func (s *chatService) SendText(ctx context.Context, roomID, senderID, content string) (*domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("empty content: %w", domain.ErrInvalidMessage)
	}

	msg := &domain.Message{
		RoomID:   roomID,
		SenderID: senderID,
		Content:  content,
		Kind:     domain.MessageKindText,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	s.afterWrite(ctx, msg)
	return msg, nil
}

func (s *chatService) SendAttachment(ctx context.Context, roomID, senderID string, file io.Reader, size int64, filename, fileType string) (*domain.Attachment, error) {
	l := log.Ctx(ctx)

	if filename == "" {
		return nil, fmt.Errorf("missing filename: %w", domain.ErrInvalidMessage)
	}

	key := fmt.Sprintf("chat/%s/%s_%s", roomID, uuid.New().String(), filename)
	if err := s.blobs.Write(ctx, key, file, size, fileType); err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to store attachment")
		return nil, fmt.Errorf("failed to store attachment: %w", err)
	}

	msg := &domain.Message{
		RoomID:   roomID,
		SenderID: senderID,
		Kind:     domain.MessageKindFile,
		Attachments: []domain.Attachment{
			{Filename: key, FileType: fileType},
		},
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		// The blob is orphaned; remove it so storage doesn't leak.
		if delErr := s.blobs.Delete(ctx, key); delErr != nil {
			l.Warn().Err(delErr).Str("key", key).Msg("failed to delete orphaned attachment blob")
		}
		return nil, err
	}

	s.resolveLinks(ctx, msg)
	s.afterWrite(ctx, msg)
	return &msg.Attachments[0], nil
}

func (s *chatService) ListRooms(ctx context.Context, userID string) ([]domain.Room, error) {
	return s.rooms.GetByUser(ctx, userID)
}

func (s *chatService) FetchHistory(ctx context.Context, userID, roomID string, offset, limit int) ([]domain.Message, error) {
	if _, err := s.Authorize(ctx, roomID, userID); err != nil {
		return nil, err
	}

	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	// The live page changes too often to be worth caching.
	if s.history == nil || offset == 0 {
		return s.loadHistory(ctx, roomID, offset, limit)
	}

	key := s.history.BuildKey(roomID, offset, limit)
	if cached, err := s.history.Get(ctx, key); err == nil {
		return cached, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		log.Ctx(ctx).Warn().Err(err).Msg("history cache read failed, falling back to db")
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		messages, err := s.loadHistory(ctx, roomID, offset, limit)
		if err != nil {
			return nil, err
		}
		if err := s.history.Set(ctx, key, messages, s.opts.HistoryCacheTTL); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("history cache write failed")
		}
		return messages, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Message), nil
}

func (s *chatService) loadHistory(ctx context.Context, roomID string, offset, limit int) ([]domain.Message, error) {
	messages, err := s.messages.List(ctx, roomID, offset, limit)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		s.resolveLinks(ctx, &messages[i])
	}
	return messages, nil
}

func (s *chatService) UpdateStatus(ctx context.Context, messageID string, delivered, read bool) (*domain.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	changed := false
	if delivered && msg.DeliveredAt == nil {
		msg.DeliveredAt = &now
		changed = true
	}
	if read && msg.ReadAt == nil {
		msg.ReadAt = &now
		changed = true
	}

	if changed {
		if err := s.messages.UpdateStatus(ctx, msg); err != nil {
			return nil, err
		}
	}

	event, err := domain.NewStatusEvent(msg)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to encode status event")
		return msg, nil
	}
	s.publish(ctx, msg.RoomID, event)

	return msg, nil
}

func (s *chatService) HandleIncoming(ctx context.Context, roomID, userID string, raw []byte) error {
	inbound, err := domain.DecodeInbound(raw)
	if err != nil {
		return err
	}

	switch inbound.Type {
	case domain.EventTypeMessage:
		_, err := s.SendText(ctx, roomID, userID, inbound.Message.Content)
		return err

	case domain.EventTypeStatus:
		_, err := s.UpdateStatus(ctx, inbound.Status.ID, inbound.Status.Delivered, inbound.Status.Read)
		if errors.Is(err, domain.ErrMessageNotFound) {
			// A stale status update shouldn't tear the session down.
			return fmt.Errorf("unknown message %s: %w", inbound.Status.ID, domain.ErrInvalidMessage)
		}
		return err

	default:
		return fmt.Errorf("unknown event type %q: %w", inbound.Type, domain.ErrInvalidMessage)
	}
}

// afterWrite broadcasts the freshly persisted message and drops stale
// history pages. Delivery is best-effort: the message is durable either way.
func (s *chatService) afterWrite(ctx context.Context, msg *domain.Message) {
	l := log.Ctx(ctx)

	event, err := domain.NewMessageEvent(msg)
	if err != nil {
		l.Error().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to encode message event")
	} else {
		s.publish(ctx, msg.RoomID, event)
	}

	if s.history != nil {
		if err := s.history.Invalidate(ctx, msg.RoomID); err != nil {
			l.Warn().Err(err).Str(log.FieldRoomID, msg.RoomID).Msg("failed to invalidate history cache")
		}
	}
}

func (s *chatService) publish(ctx context.Context, roomID string, event *domain.Event) {
	if err := s.bus.Publish(ctx, roomID, event); err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to publish event to bus")
	}
}

// resolveLinks fills attachment links from blob storage. Link resolution
// failures leave the attachment without a link rather than failing the read.
func (s *chatService) resolveLinks(ctx context.Context, msg *domain.Message) {
	for i := range msg.Attachments {
		a := &msg.Attachments[i]
		if a.Filename == "" {
			continue
		}
		url, err := s.blobs.GetURL(ctx, a.Filename, s.opts.URLTTL)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("key", a.Filename).Msg("failed to resolve attachment link")
			continue
		}
		a.FileURL = url
	}
}
