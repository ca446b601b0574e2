// File: internal/repository/conversation/gorm_repository.go
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/iyunix/go-chatreplay/internal/domain"
)

// Record is the database row of a conversation.
type Record struct {
	ID           string               `gorm:"primaryKey;size:64"`
	Name         string               `gorm:"size:255;not null"`
	FolderID     *string              `gorm:"size:64;index"`
	ModelID      string               `gorm:"size:128;index"`
	MessageCount int                  `gorm:"not null;default:0"`
	Messages     []domain.Message     `gorm:"serializer:json"`
	Settings     domain.ModelSettings `gorm:"serializer:json"`
	Replay       *domain.Replay       `gorm:"serializer:json"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName keeps the table name stable regardless of the type name.
func (Record) TableName() string { return "conversations" }

type gormConversationRepository struct {
	db *gorm.DB
}

// NewGormRepository returns a ConversationStore backed by gorm.
func NewGormRepository(db *gorm.DB) ConversationStore {
	return &gormConversationRepository{db: db}
}

// AutoMigrate creates or updates the conversations table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Record{})
}

func (r *gormConversationRepository) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	if id == "" {
		return nil, ErrConversationNotFound
	}

	var rec Record
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		log.Printf("[ConversationRepository] Database error loading conversation %s: %v", id, err)
		return nil, fmt.Errorf("database error loading conversation: %w", err)
	}
	return rec.toDomain(), nil
}

func (r *gormConversationRepository) List(ctx context.Context, filter ListFilter) ([]domain.ConversationSummary, error) {
	q := r.db.WithContext(ctx).
		Model(&Record{}).
		Select("id", "name", "folder_id", "model_id", "message_count", "replay", "updated_at").
		Order("updated_at DESC, id DESC")
	if filter.FolderID != nil {
		if *filter.FolderID == "" {
			q = q.Where("folder_id IS NULL")
		} else {
			q = q.Where("folder_id = ?", *filter.FolderID)
		}
	}

	var recs []Record
	if err := q.Find(&recs).Error; err != nil {
		log.Printf("[ConversationRepository] Database error listing conversations: %v", err)
		return nil, fmt.Errorf("database error listing conversations: %w", err)
	}

	out := make([]domain.ConversationSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, domain.ConversationSummary{
			ID:           rec.ID,
			Name:         rec.Name,
			FolderID:     rec.FolderID,
			ModelID:      rec.ModelID,
			MessageCount: rec.MessageCount,
			IsReplay:     rec.Replay != nil,
			UpdatedAt:    rec.UpdatedAt,
		})
	}
	return out, nil
}

func (r *gormConversationRepository) Create(ctx context.Context, c *domain.Conversation) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	var existing int64
	if err := r.db.WithContext(ctx).Model(&Record{}).Where("id = ?", c.ID).Count(&existing).Error; err != nil {
		return fmt.Errorf("database error checking conversation: %w", err)
	}
	if existing > 0 {
		return ErrConversationExists
	}

	rec := fromDomain(c)
	err := r.db.WithContext(ctx).Create(rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrConversationExists
		}
		log.Printf("[ConversationRepository] Database error creating conversation %s: %v", c.ID, err)
		return fmt.Errorf("database error creating conversation: %w", err)
	}
	c.CreatedAt, c.UpdatedAt = rec.CreatedAt, rec.UpdatedAt
	return nil
}

func (r *gormConversationRepository) Update(ctx context.Context, id string, patch Patch) error {
	if patch.IsEmpty() {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec Record
		if err := tx.First(&rec, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrConversationNotFound
			}
			return fmt.Errorf("database error loading conversation: %w", err)
		}

		c := rec.toDomain()
		patch.Apply(c)
		if err := c.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}

		updated := fromDomain(c)
		updated.CreatedAt = rec.CreatedAt
		if err := tx.Save(updated).Error; err != nil {
			log.Printf("[ConversationRepository] Database error updating conversation %s: %v", id, err)
			return fmt.Errorf("database error updating conversation: %w", err)
		}
		return nil
	})
}

func (r *gormConversationRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&Record{})
	if result.Error != nil {
		log.Printf("[ConversationRepository] Database error deleting conversation %s: %v", id, result.Error)
		return fmt.Errorf("database error deleting conversation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func fromDomain(c *domain.Conversation) *Record {
	return &Record{
		ID:           c.ID,
		Name:         c.Name,
		FolderID:     c.FolderID,
		ModelID:      c.Settings.ModelID,
		MessageCount: c.NonSystemCount(),
		Messages:     domain.CloneMessages(c.Messages),
		Settings:     c.Settings.Clone(),
		Replay:       cloneReplay(c.Replay),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func (rec *Record) toDomain() *domain.Conversation {
	c := &domain.Conversation{
		ID:        rec.ID,
		Name:      rec.Name,
		FolderID:  rec.FolderID,
		Messages:  rec.Messages,
		Settings:  rec.Settings,
		Replay:    rec.Replay,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	domain.Normalize(c)
	return c
}

func cloneReplay(r *domain.Replay) *domain.Replay {
	if r == nil {
		return nil
	}
	cp := r.Clone()
	return &cp
}
