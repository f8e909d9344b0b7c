package user

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"blogchat/internal/common"
	"blogchat/internal/dbmysql"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *dbmysql.User) error
	GetUserByID(ctx context.Context, userID string) (*dbmysql.User, error)
	GetUserByEmail(ctx context.Context, email string) (*dbmysql.User, error)
	CheckEmailExists(ctx context.Context, email string) (bool, error)

	// FindByIDs returns the users that exist among ids, in no particular order.
	FindByIDs(ctx context.Context, ids []string) ([]*dbmysql.User, error)
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) CreateUser(ctx context.Context, user *dbmysql.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("email %s: %w", user.Email, common.ErrConflict)
	default:
		return fmt.Errorf("%w: create user: %v", common.ErrStorage, err)
	}
}

func (r *userRepository) GetUserByID(ctx context.Context, userID string) (*dbmysql.User, error) {
	var user dbmysql.User
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if err != nil {
		return nil, wrapLookup(err, "user "+userID)
	}
	return &user, nil
}

func (r *userRepository) GetUserByEmail(ctx context.Context, email string) (*dbmysql.User, error) {
	var user dbmysql.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, wrapLookup(err, "user "+email)
	}
	return &user, nil
}

func (r *userRepository) CheckEmailExists(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&dbmysql.User{}).Where("email = ?", email).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("%w: count users: %v", common.ErrStorage, err)
	}
	return count > 0, nil
}

func (r *userRepository) FindByIDs(ctx context.Context, ids []string) ([]*dbmysql.User, error) {
	if len(ids) == 0 {
		return []*dbmysql.User{}, nil
	}
	var users []*dbmysql.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("%w: find users: %v", common.ErrStorage, err)
	}
	return users, nil
}

func wrapLookup(err error, subject string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", subject, common.ErrNotFound)
	}
	return fmt.Errorf("%w: %s: %v", common.ErrStorage, subject, err)
}
