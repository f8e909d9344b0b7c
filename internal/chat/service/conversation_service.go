package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"blogchat/internal/chat/repository"
	"blogchat/internal/common"
	"blogchat/internal/dbmysql"
)

// ConversationService resolves the single conversation shared by two users.
type ConversationService interface {
	// ResolveOrCreate returns the pair's conversation, creating it on first
	// contact. created reports whether this call inserted it.
	ResolveOrCreate(ctx context.Context, a, b string) (conv *dbmysql.Conversation, created bool, err error)
	// Find is the lookup-only variant; a miss is ErrNotFound.
	Find(ctx context.Context, a, b string) (*dbmysql.Conversation, error)
}

type pairInput struct {
	ParticipantA string `validate:"required"`
	ParticipantB string `validate:"required,nefield=ParticipantA"`
}

type conversationService struct {
	repo  repository.ConversationRepository
	locks *keyedMutex
	log   *slog.Logger
}

func NewConversationService(r repository.ConversationRepository, log *slog.Logger) ConversationService {
	return &conversationService{
		repo:  r,
		locks: newKeyedMutex(),
		log:   log,
	}
}

func (s *conversationService) ResolveOrCreate(ctx context.Context, a, b string) (*dbmysql.Conversation, bool, error) {
	a, b, err := normalizePair(a, b)
	if err != nil {
		return nil, false, err
	}

	unlock := s.locks.Lock(dbmysql.PairKey(a, b))
	defer unlock()

	conv, err := s.repo.FindByPair(ctx, a, b)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, false, err
	}

	conv, created, err := s.repo.GetOrCreate(ctx, a, b)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.log.Debug("conversation created", "conversation_id", conv.ID, "participant1", a, "participant2", b)
	}
	return conv, created, nil
}

func (s *conversationService) Find(ctx context.Context, a, b string) (*dbmysql.Conversation, error) {
	a, b, err := normalizePair(a, b)
	if err != nil {
		return nil, err
	}
	return s.repo.FindByPair(ctx, a, b)
}

func normalizePair(a, b string) (string, string, error) {
	in := pairInput{ParticipantA: strings.TrimSpace(a), ParticipantB: strings.TrimSpace(b)}
	if err := common.ValidateStruct(in); err != nil {
		return "", "", err
	}
	return in.ParticipantA, in.ParticipantB, nil
}

// keyedMutex hands out one mutex per key and forgets it once nobody holds
// or waits on it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
