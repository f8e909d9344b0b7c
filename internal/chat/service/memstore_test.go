package service

import (
	"context"
	"fmt"
	"sync"

	"blogchat/internal/common"
	"blogchat/internal/dbmysql"
)

// memStore is a map-backed conversation, message and user store.
type memStore struct {
	mu            sync.Mutex
	conversations map[string]*dbmysql.Conversation
	messages      []*dbmysql.Message
	users         map[string]*dbmysql.User
	nextID        uint
	inserts       int
}

func newMemStore(users ...*dbmysql.User) *memStore {
	s := &memStore{
		conversations: make(map[string]*dbmysql.Conversation),
		users:         make(map[string]*dbmysql.User),
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *memStore) FindByID(_ context.Context, id string) (*dbmysql.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("conversation %s: %w", id, common.ErrNotFound)
}

func (s *memStore) FindByPair(_ context.Context, a, b string) (*dbmysql.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[dbmysql.PairKey(a, b)]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, fmt.Errorf("conversation between %s and %s: %w", a, b, common.ErrNotFound)
}

func (s *memStore) GetOrCreate(_ context.Context, a, b string) (*dbmysql.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := dbmysql.PairKey(a, b)
	if c, ok := s.conversations[key]; ok {
		cp := *c
		return &cp, false, nil
	}
	c := dbmysql.NewConversation(a, b)
	s.conversations[key] = c
	s.inserts++
	cp := *c
	return &cp, true, nil
}

func (s *memStore) Create(_ context.Context, msg *dbmysql.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	msg.ID = s.nextID
	cp := *msg
	s.messages = append(s.messages, &cp)
	return nil
}

// ListByConversation returns rows in insertion order; the service sorts.
func (s *memStore) ListByConversation(_ context.Context, conversationID string) ([]*dbmysql.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*dbmysql.Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) FindByIDs(_ context.Context, ids []string) ([]*dbmysql.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*dbmysql.User
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *memStore) conversationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

func (s *memStore) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}
