package dbmongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"blogchat/internal/common"
	"blogchat/internal/dbmysql"
)

func newTestStore(mt *mtest.T) *ChatStore {
	return NewChatStore(&MongoClient{Client: mt.Client, Database: mt.DB})
}

func conversationBSON(id, p1, p2 string, at time.Time) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "participant1_id", Value: p1},
		{Key: "participant2_id", Value: p2},
		{Key: "pair_key", Value: dbmysql.PairKey(p1, p2)},
		{Key: "created_at", Value: at},
	}
}

func TestChatStore_FindByPair(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	now := time.Now().UTC().Truncate(time.Millisecond)

	mt.Run("found in reverse order", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "chat.conversations", mtest.FirstBatch,
			conversationBSON("conv-1", "user-1", "user-2", now)))

		conv, err := newTestStore(mt).FindByPair(context.Background(), "user-2", "user-1")
		require.NoError(mt, err)
		assert.Equal(mt, "conv-1", conv.ID)
		assert.True(mt, conv.HasParticipants("user-2", "user-1"))
		assert.True(mt, now.Equal(conv.CreatedAt))
	})

	mt.Run("not found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "chat.conversations", mtest.FirstBatch))

		_, err := newTestStore(mt).FindByPair(context.Background(), "user-1", "user-3")
		assert.ErrorIs(mt, err, common.ErrNotFound)
	})

	mt.Run("server error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code: 2, Message: "bad query", Name: "BadValue",
		}))

		_, err := newTestStore(mt).FindByPair(context.Background(), "user-1", "user-2")
		assert.ErrorIs(mt, err, common.ErrStorage)
	})
}

func TestChatStore_GetOrCreate(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	now := time.Now().UTC().Truncate(time.Millisecond)

	mt.Run("existing pair is returned", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "value", Value: conversationBSON("conv-existing", "user-1", "user-2", now)},
		))

		conv, created, err := newTestStore(mt).GetOrCreate(context.Background(), "user-2", "user-1")
		require.NoError(mt, err)
		assert.False(mt, created)
		assert.Equal(mt, "conv-existing", conv.ID)
	})

	mt.Run("duplicate key falls back to lookup", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateCommandErrorResponse(mtest.CommandError{
				Code: 11000, Message: "E11000 duplicate key error", Name: "DuplicateKey",
			}),
			mtest.CreateCursorResponse(0, "chat.conversations", mtest.FirstBatch,
				conversationBSON("conv-race", "user-1", "user-2", now)),
		)

		conv, created, err := newTestStore(mt).GetOrCreate(context.Background(), "user-1", "user-2")
		require.NoError(mt, err)
		assert.False(mt, created)
		assert.Equal(mt, "conv-race", conv.ID)
	})
}

func TestChatStore_CreateAndList(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	now := time.Now().UTC().Truncate(time.Millisecond)

	mt.Run("create assigns sequence id", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{
				{Key: "_id", Value: messageSequence},
				{Key: "seq", Value: int64(7)},
			}}),
			mtest.CreateSuccessResponse(),
		)

		msg := &dbmysql.Message{ConversationID: "conv-1", SenderID: "user-1", ReceiverID: "user-2", Content: "hi"}
		require.NoError(mt, newTestStore(mt).Create(context.Background(), msg))
		assert.Equal(mt, uint(7), msg.ID)
		assert.False(mt, msg.CreatedAt.IsZero())
	})

	mt.Run("list decodes in server order", func(mt *mtest.T) {
		first := bson.D{
			{Key: "_id", Value: int64(1)}, {Key: "content", Value: "First"},
			{Key: "sender_id", Value: "user-1"}, {Key: "receiver_id", Value: "user-2"},
			{Key: "conversation_id", Value: "conv-1"}, {Key: "created_at", Value: now},
		}
		second := bson.D{
			{Key: "_id", Value: int64(2)}, {Key: "content", Value: "Second"},
			{Key: "sender_id", Value: "user-2"}, {Key: "receiver_id", Value: "user-1"},
			{Key: "conversation_id", Value: "conv-1"}, {Key: "created_at", Value: now.Add(time.Second)},
		}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "chat.messages", mtest.FirstBatch, first, second))

		messages, err := newTestStore(mt).ListByConversation(context.Background(), "conv-1")
		require.NoError(mt, err)
		require.Len(mt, messages, 2)
		assert.Equal(mt, "First", messages[0].Content)
		assert.Equal(mt, uint(2), messages[1].ID)
		assert.True(mt, messages[0].Before(messages[1]))
	})

	mt.Run("list of unknown conversation is empty", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "chat.messages", mtest.FirstBatch))

		messages, err := newTestStore(mt).ListByConversation(context.Background(), "nope")
		require.NoError(mt, err)
		assert.Empty(mt, messages)
	})
}

func TestPairFilterIsSymmetric(t *testing.T) {
	f := pairFilter("a", "b")
	or, ok := f["$or"].(bson.A)
	require.True(t, ok)
	require.Len(t, or, 2)
	assert.Equal(t, bson.M{"participant1_id": "a", "participant2_id": "b"}, or[0])
	assert.Equal(t, bson.M{"participant1_id": "b", "participant2_id": "a"}, or[1])
}

func TestDocConversion(t *testing.T) {
	conv := dbmysql.NewConversation("user-2", "user-1")
	doc := newConversationDoc(conv)
	assert.Equal(t, conv.ID, doc.ID)
	assert.Equal(t, "user-1:user-2", doc.PairKey)
	assert.Equal(t, "user-2", doc.model().Participant1ID)
}
