package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/dllu1/go-chatroom/internal/domain"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-based message repository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// Create persists a new message. The id and timestamp assigned by the
// store are filled in on the returned Message.
func (r *GormMessageRepository) Create(ctx context.Context, username, content string) (*domain.Message, error) {
	model := &domain.MessageModel{
		Username: username,
		Content:  content,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

// Recent returns up to limit most recent messages, oldest first. The
// store's autoincrement id is the total order for history replay.
func (r *GormMessageRepository) Recent(ctx context.Context, limit int) ([]domain.Message, error) {
	var models []domain.MessageModel
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	// Query is newest-first; reverse so callers replay oldest-first.
	messages := make([]domain.Message, len(models))
	for i, m := range models {
		messages[len(models)-1-i] = *m.ToDomain()
	}
	return messages, nil
}
