package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/renloop/chat-service/internal/domain"
	"github.com/renloop/chat-service/pkg/log"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-based message repository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// Create persists a message together with its attachments in one
// transaction.
func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	l := log.Ctx(ctx)

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := domain.MessageToModel(msg)
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		for i := range msg.Attachments {
			a := &msg.Attachments[i]
			if a.ID == "" {
				a.ID = uuid.New().String()
			}
			a.MessageID = msg.ID
			if err := tx.Create(domain.AttachmentToModel(a)).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, msg.RoomID).Msg("failed to create message in db")
		return err
	}

	l.Debug().Str(log.FieldMessageID, msg.ID).Str(log.FieldRoomID, msg.RoomID).Msg("message created in db")
	return nil
}

// GetByID retrieves a message with its attachments.
func (r *GormMessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	l := log.Ctx(ctx)

	var model domain.MessageModel
	result := r.db.WithContext(ctx).Preload("Attachments").First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMessageNotFound
		}
		l.Error().Err(result.Error).Str(log.FieldMessageID, id).Msg("failed to get message by id")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// List retrieves a page of a room's messages with their attachments,
// oldest first so clients render history top-down.
func (r *GormMessageRepository) List(ctx context.Context, roomID string, offset, limit int) ([]domain.Message, error) {
	l := log.Ctx(ctx)

	var models []domain.MessageModel
	result := r.db.WithContext(ctx).
		Preload("Attachments").
		Where("room_id = ?", roomID).
		Order("created_at ASC").
		Offset(offset).
		Limit(limit).
		Find(&models)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldRoomID, roomID).Msg("failed to list messages from db")
		return nil, result.Error
	}

	messages := make([]domain.Message, len(models))
	for i, model := range models {
		messages[i] = *model.ToDomain()
	}

	return messages, nil
}

// UpdateStatus writes the message's delivery timestamps back to the db.
// Timestamps are set-once: COALESCE keeps a value already persisted by a
// concurrent update, and nil fields are never written at all, so a stale
// in-memory snapshot cannot null out the other timestamp.
func (r *GormMessageRepository) UpdateStatus(ctx context.Context, msg *domain.Message) error {
	l := log.Ctx(ctx)

	updates := map[string]interface{}{}
	if msg.DeliveredAt != nil {
		updates["delivered_at"] = gorm.Expr("COALESCE(delivered_at, ?)", *msg.DeliveredAt)
	}
	if msg.ReadAt != nil {
		updates["read_at"] = gorm.Expr("COALESCE(read_at, ?)", *msg.ReadAt)
	}
	if len(updates) == 0 {
		return r.exists(ctx, msg.ID)
	}

	result := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("id = ?", msg.ID).
		Updates(updates)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldMessageID, msg.ID).Msg("failed to update message status in db")
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Some drivers report zero affected rows for a no-op update, so
		// distinguish a missing row from an idempotent re-apply.
		return r.exists(ctx, msg.ID)
	}
	l.Debug().Str(log.FieldMessageID, msg.ID).Msg("message status updated in db")
	return nil
}

func (r *GormMessageRepository) exists(ctx context.Context, id string) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}
