package handler

import (
	"context"
	"fmt"

	"blogchat/internal/common"
	"blogchat/internal/dbmysql"
)

func callerID(ctx context.Context) (string, error) {
	id, ok := common.UserIDFromContext(ctx)
	if !ok {
		return "", common.ErrUnauthorized
	}
	return id, nil
}

// authorizeSender requires the verified caller to be the message's sender.
func authorizeSender(ctx context.Context, senderID string) error {
	caller, err := callerID(ctx)
	if err != nil {
		return err
	}
	if caller != senderID {
		return fmt.Errorf("%w: senderId must be the authenticated user", common.ErrForbidden)
	}
	return nil
}

// paginate applies offset/limit; limit 0 means everything after offset.
func paginate(messages []*dbmysql.Message, limit, offset int) ([]*dbmysql.Message, error) {
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", common.ErrValidation)
	}
	if offset >= len(messages) {
		return []*dbmysql.Message{}, nil
	}
	end := len(messages)
	if limit > 0 && limit < end-offset {
		end = offset + limit
	}
	return messages[offset:end], nil
}
