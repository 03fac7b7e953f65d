package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"quotelens/internal/model"
)

// ErrVersionConflict means another writer appended to the conversation first.
var ErrVersionConflict = errors.New("conversation version conflict")

type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) Create(ctx context.Context, conversation *model.Conversation) error {
	if err := r.db.WithContext(ctx).Create(conversation).Error; err != nil {
		return fmt.Errorf("create conversation failed: %w", err)
	}
	return nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	var conversation model.Conversation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&conversation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get conversation failed: %w", err)
	}
	return &conversation, nil
}

// GetOrCreate inserts the conversation when missing and returns the stored row.
// Concurrent callers racing on the same id all observe the same row.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, id, title string) (*model.Conversation, error) {
	conversation := &model.Conversation{ID: id, Title: title}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(conversation).Error
	if err != nil {
		return nil, fmt.Errorf("create conversation failed: %w", err)
	}
	stored, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("conversation %s vanished after create", id)
	}
	return stored, nil
}

func (r *ConversationRepository) List(ctx context.Context) ([]model.Conversation, error) {
	var list []model.Conversation
	if err := r.db.WithContext(ctx).Order("updated_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list conversations failed: %w", err)
	}
	return list, nil
}

// AppendMessages writes the full message log only if the stored version still
// equals expectedVersion, and bumps the version.
func (r *ConversationRepository) AppendMessages(ctx context.Context, id string, expectedVersion int, messages []model.Message) error {
	res := r.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]interface{}{
			"messages":   datatypes.JSONSlice[model.Message](messages),
			"version":    expectedVersion + 1,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("append conversation messages failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// Delete removes the conversation and detaches its quotes.
func (r *ConversationRepository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Quote{}).Where("conversation_id = ?", id).Update("conversation_id", nil).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.Conversation{}).Error
	})
	if err != nil {
		return fmt.Errorf("delete conversation failed: %w", err)
	}
	return nil
}
