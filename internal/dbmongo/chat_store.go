package dbmongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"blogchat/internal/common"
	"blogchat/internal/dbmysql"
)

const (
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
	countersCollection      = "counters"

	messageSequence = "message_id"
)

type conversationDoc struct {
	ID             string    `bson:"_id"`
	Participant1ID string    `bson:"participant1_id"`
	Participant2ID string    `bson:"participant2_id"`
	PairKey        string    `bson:"pair_key"`
	CreatedAt      time.Time `bson:"created_at"`
}

type messageDoc struct {
	ID             uint      `bson:"_id"`
	Content        string    `bson:"content"`
	SenderID       string    `bson:"sender_id"`
	ReceiverID     string    `bson:"receiver_id"`
	ConversationID string    `bson:"conversation_id"`
	CreatedAt      time.Time `bson:"created_at"`
}

// ChatStore keeps conversations and messages in MongoDB. It satisfies the
// same conversation and message repository contracts as the gorm store.
type ChatStore struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
	counters      *mongo.Collection
}

func NewChatStore(mc *MongoClient) *ChatStore {
	return &ChatStore{
		conversations: mc.Database.Collection(conversationsCollection),
		messages:      mc.Database.Collection(messagesCollection),
		counters:      mc.Database.Collection(countersCollection),
	}
}

// EnsureIndexes creates the unique pair index and the listing index.
func (s *ChatStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "pair_key", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_pair_key"),
	})
	if err != nil {
		return fmt.Errorf("create conversation index: %w", err)
	}

	_, err = s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    messageListSort(),
		Options: options.Index().SetName("idx_conversation_created"),
	})
	if err != nil {
		return fmt.Errorf("create message index: %w", err)
	}
	return nil
}

func (s *ChatStore) FindByID(ctx context.Context, id string) (*dbmysql.Conversation, error) {
	var doc conversationDoc
	err := s.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		return nil, wrapErr(err, "conversation %s", id)
	}
	return doc.model(), nil
}

func (s *ChatStore) FindByPair(ctx context.Context, a, b string) (*dbmysql.Conversation, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})

	var doc conversationDoc
	err := s.conversations.FindOne(ctx, pairFilter(a, b), opts).Decode(&doc)
	if err != nil {
		return nil, wrapErr(err, "conversation between %s and %s", a, b)
	}
	return doc.model(), nil
}

func (s *ChatStore) GetOrCreate(ctx context.Context, a, b string) (*dbmysql.Conversation, bool, error) {
	fresh := newConversationDoc(dbmysql.NewConversation(a, b))

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var stored conversationDoc
	err := s.conversations.FindOneAndUpdate(ctx,
		bson.M{"pair_key": fresh.PairKey},
		bson.M{"$setOnInsert": fresh},
		opts,
	).Decode(&stored)

	// two concurrent upserts can both miss; the loser hits the unique index
	if mongo.IsDuplicateKeyError(err) {
		err = s.conversations.FindOne(ctx, bson.M{"pair_key": fresh.PairKey}).Decode(&stored)
	}
	if err != nil {
		return nil, false, wrapErr(err, "conversation %s", fresh.PairKey)
	}

	return stored.model(), stored.ID == fresh.ID, nil
}

func (s *ChatStore) Create(ctx context.Context, msg *dbmysql.Message) error {
	id, err := s.nextMessageID(ctx)
	if err != nil {
		return err
	}

	msg.ID = id
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	if _, err := s.messages.InsertOne(ctx, newMessageDoc(msg)); err != nil {
		return fmt.Errorf("%w: insert message: %v", common.ErrStorage, err)
	}
	return nil
}

func (s *ChatStore) ListByConversation(ctx context.Context, conversationID string) ([]*dbmysql.Message, error) {
	cursor, err := s.messages.Find(ctx,
		bson.M{"conversation_id": conversationID},
		options.Find().SetSort(messageListSort()),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list messages: %v", common.ErrStorage, err)
	}
	defer cursor.Close(ctx)

	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%w: decode messages: %v", common.ErrStorage, err)
	}

	messages := make([]*dbmysql.Message, 0, len(docs))
	for i := range docs {
		messages = append(messages, docs[i].model())
	}
	return messages, nil
}

func (s *ChatStore) nextMessageID(ctx context.Context) (uint, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": messageSequence},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("%w: next message id: %v", common.ErrStorage, err)
	}
	return uint(counter.Seq), nil
}

func pairFilter(a, b string) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"participant1_id": a, "participant2_id": b},
		bson.M{"participant1_id": b, "participant2_id": a},
	}}
}

func messageListSort() bson.D {
	return bson.D{
		{Key: "conversation_id", Value: 1},
		{Key: "created_at", Value: 1},
		{Key: "_id", Value: 1},
	}
}

func newConversationDoc(c *dbmysql.Conversation) conversationDoc {
	id := c.ID
	if id == "" {
		id = uuid.NewString()
	}
	return conversationDoc{
		ID:             id,
		Participant1ID: c.Participant1ID,
		Participant2ID: c.Participant2ID,
		PairKey:        dbmysql.PairKey(c.Participant1ID, c.Participant2ID),
		CreatedAt:      c.CreatedAt,
	}
}

func (d conversationDoc) model() *dbmysql.Conversation {
	return &dbmysql.Conversation{
		ID:             d.ID,
		Participant1ID: d.Participant1ID,
		Participant2ID: d.Participant2ID,
		PairKey:        d.PairKey,
		CreatedAt:      d.CreatedAt.UTC(),
	}
}

func newMessageDoc(m *dbmysql.Message) messageDoc {
	return messageDoc{
		ID:             m.ID,
		Content:        m.Content,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		ConversationID: m.ConversationID,
		CreatedAt:      m.CreatedAt,
	}
}

func (d messageDoc) model() *dbmysql.Message {
	return &dbmysql.Message{
		ID:             d.ID,
		Content:        d.Content,
		SenderID:       d.SenderID,
		ReceiverID:     d.ReceiverID,
		ConversationID: d.ConversationID,
		CreatedAt:      d.CreatedAt.UTC(),
	}
}

func wrapErr(err error, format string, args ...interface{}) error {
	subject := fmt.Sprintf(format, args...)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", subject, common.ErrNotFound)
	}
	return fmt.Errorf("%w: %s: %v", common.ErrStorage, subject, err)
}
