package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"blogchat/internal/common"
	"blogchat/internal/dbmysql"
)

type ConversationRepository interface {
	FindByID(ctx context.Context, id string) (*dbmysql.Conversation, error)
	// FindByPair matches the stored participants in either order.
	FindByPair(ctx context.Context, a, b string) (*dbmysql.Conversation, error)
	// GetOrCreate inserts the pair unless a row with the same pair key exists,
	// and returns whichever row is stored.
	GetOrCreate(ctx context.Context, a, b string) (*dbmysql.Conversation, bool, error)
}

type conversationRepo struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) FindByID(ctx context.Context, id string) (*dbmysql.Conversation, error) {
	var conv dbmysql.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if err != nil {
		return nil, wrapErr(err, "conversation %s", id)
	}
	return &conv, nil
}

func (r *conversationRepo) FindByPair(ctx context.Context, a, b string) (*dbmysql.Conversation, error) {
	var conv dbmysql.Conversation
	err := r.db.WithContext(ctx).
		Where("(participant1_id = ? AND participant2_id = ?) OR (participant1_id = ? AND participant2_id = ?)", a, b, b, a).
		Order("created_at ASC").
		First(&conv).Error
	if err != nil {
		return nil, wrapErr(err, "conversation between %s and %s", a, b)
	}
	return &conv, nil
}

func (r *conversationRepo) GetOrCreate(ctx context.Context, a, b string) (*dbmysql.Conversation, bool, error) {
	conv := dbmysql.NewConversation(a, b)

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(conv)
	if res.Error != nil {
		return nil, false, fmt.Errorf("%w: create conversation: %v", common.ErrStorage, res.Error)
	}
	if res.RowsAffected == 1 {
		return conv, true, nil
	}

	// lost the race: the unique pair key already points at a stored row
	var existing dbmysql.Conversation
	if err := r.db.WithContext(ctx).Where("pair_key = ?", conv.PairKey).First(&existing).Error; err != nil {
		return nil, false, wrapErr(err, "conversation %s", conv.PairKey)
	}
	return &existing, false, nil
}

func wrapErr(err error, format string, args ...interface{}) error {
	subject := fmt.Sprintf(format, args...)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", subject, common.ErrNotFound)
	}
	return fmt.Errorf("%w: %s: %v", common.ErrStorage, subject, err)
}
