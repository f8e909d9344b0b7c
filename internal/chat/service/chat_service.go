package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"

	"blogchat/internal/chat/repository"
	"blogchat/internal/common"
	"blogchat/internal/config"
	"blogchat/internal/dbmysql"
)

const defaultMaxContentLength = 4000

// ChatService defines the interface exposed to the handler layer
type ChatService interface {
	SendMessage(ctx context.Context, in AppendInput) (*dbmysql.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]*dbmysql.Message, error)
}

// UserDirectory supplies display identities for listed messages.
type UserDirectory interface {
	FindByIDs(ctx context.Context, ids []string) ([]*dbmysql.User, error)
}

// AppendInput is a message submission. ConversationID is optional; without
// it the conversation is resolved from the sender and receiver.
type AppendInput struct {
	ConversationID string `json:"conversationId,omitempty"`
	Content        string `json:"content" validate:"required"`
	SenderID       string `json:"senderId" validate:"required"`
	ReceiverID     string `json:"receiverId" validate:"required,nefield=SenderID"`
}

type chatService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	resolver      ConversationService
	users         UserDirectory
	maxContent    int
	now           func() time.Time
}

// Constructor used in DI/wire
func NewChatService(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	resolver ConversationService,
	users UserDirectory,
	cfg *config.Config,
) ChatService {
	maxContent := cfg.Chat.MaxContentLength
	if maxContent <= 0 {
		maxContent = defaultMaxContentLength
	}
	return &chatService{
		conversations: conversations,
		messages:      messages,
		resolver:      resolver,
		users:         users,
		maxContent:    maxContent,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *chatService) SendMessage(ctx context.Context, in AppendInput) (*dbmysql.Message, error) {
	in.ConversationID = strings.TrimSpace(in.ConversationID)
	in.SenderID = strings.TrimSpace(in.SenderID)
	in.ReceiverID = strings.TrimSpace(in.ReceiverID)

	// whitespace-only content is rejected, but what gets stored is the text as sent
	checked := in
	checked.Content = strings.TrimSpace(in.Content)
	if err := common.ValidateStruct(checked); err != nil {
		return nil, err
	}
	if n := utf8.RuneCountInString(in.Content); n > s.maxContent {
		return nil, fmt.Errorf("%w: content must be at most %d characters long", common.ErrValidation, s.maxContent)
	}

	conv, err := s.conversationFor(ctx, in)
	if err != nil {
		return nil, err
	}

	msg := &dbmysql.Message{
		Content:        in.Content,
		SenderID:       in.SenderID,
		ReceiverID:     in.ReceiverID,
		ConversationID: conv.ID,
		CreatedAt:      s.now(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *chatService) conversationFor(ctx context.Context, in AppendInput) (*dbmysql.Conversation, error) {
	if in.ConversationID == "" {
		conv, _, err := s.resolver.ResolveOrCreate(ctx, in.SenderID, in.ReceiverID)
		return conv, err
	}

	conv, err := s.conversations.FindByID(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipants(in.SenderID, in.ReceiverID) {
		return nil, fmt.Errorf("%w: sender and receiver must be the participants of conversation %s",
			common.ErrValidation, conv.ID)
	}
	return conv, nil
}

// ListMessages returns the conversation history oldest first with sender and
// receiver identities attached.
func (s *chatService) ListMessages(ctx context.Context, conversationID string) ([]*dbmysql.Message, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, fmt.Errorf("%w: conversationID is required", common.ErrValidation)
	}

	if _, err := s.conversations.FindByID(ctx, conversationID); err != nil {
		return nil, err
	}

	messages, err := s.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return []*dbmysql.Message{}, nil
	}

	ids := lo.Uniq(lo.FlatMap(messages, func(m *dbmysql.Message, _ int) []string {
		return []string{m.SenderID, m.ReceiverID}
	}))
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := lo.KeyBy(users, func(u *dbmysql.User) string { return u.ID })

	for _, m := range messages {
		m.Sender = byID[m.SenderID].Identity()
		m.Receiver = byID[m.ReceiverID].Identity()
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Before(messages[j])
	})
	return messages, nil
}
