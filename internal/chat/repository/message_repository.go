package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"blogchat/internal/common"
	"blogchat/internal/dbmysql"
)

type MessageRepository interface {
	Create(ctx context.Context, msg *dbmysql.Message) error
	// ListByConversation returns messages ordered by created_at, then id.
	ListByConversation(ctx context.Context, conversationID string) ([]*dbmysql.Message, error)
}

type messageRepo struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) Create(ctx context.Context, msg *dbmysql.Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("%w: create message: %v", common.ErrStorage, err)
	}
	return nil
}

func (r *messageRepo) ListByConversation(ctx context.Context, conversationID string) ([]*dbmysql.Message, error) {
	var messages []*dbmysql.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list messages: %v", common.ErrStorage, err)
	}
	return messages, nil
}
