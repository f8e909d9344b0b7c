package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"blogchat/internal/chat/fanout"
	"blogchat/internal/chat/handler/mocks"
	"blogchat/internal/chat/service"
	"blogchat/internal/common"
	"blogchat/internal/config"
	"blogchat/internal/dbmysql"
)

type testEnv struct {
	router      *mux.Router
	chat        *mocks.MockChatService
	convs       *mocks.MockConversationService
	hub         *fanout.Hub
	tokens      *common.TokenManager
	callerToken string
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{JWTSecret: "test-secret", TokenTTLHours: 1},
		Chat: config.ChatConfig{ConnectionBuffer: 8},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithLogger(t, discardLogger())
}

func newTestEnvWithLogger(t *testing.T, log *slog.Logger) *testEnv {
	t.Helper()
	ctrl := gomock.NewController(t)
	cfg := testConfig()

	env := &testEnv{
		chat:   mocks.NewMockChatService(ctrl),
		convs:  mocks.NewMockConversationService(ctrl),
		hub:    fanout.NewHub(cfg, nil, log),
		tokens: common.NewTokenManager(cfg),
	}
	t.Cleanup(func() { _ = env.hub.Close() })

	token, err := env.tokens.GenerateToken("user-1", "Ada")
	require.NoError(t, err)
	env.callerToken = token

	env.router = mux.NewRouter()
	api := env.router.PathPrefix("/api/v1").Subrouter()
	protected := api.NewRoute().Subrouter()
	protected.Use(common.RequireAuth(env.tokens))
	NewHTTPHandler(env.chat, env.convs, env.hub, env.tokens, cfg, log).RegisterRoutes(api, protected)
	return env
}

func (e *testEnv) do(method, path, body string, auth bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if auth {
		req.Header.Set("Authorization", "Bearer "+e.callerToken)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestHTTPHandler_Health(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/v1/health", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"chat-svc"}`, rec.Body.String())
}

func TestHTTPHandler_ResolveConversation(t *testing.T) {
	env := newTestEnv(t)
	conv := &dbmysql.Conversation{ID: "conv-1", Participant1ID: "user-1", Participant2ID: "user-2"}

	env.convs.EXPECT().ResolveOrCreate(gomock.Any(), "user-1", "user-2").Return(conv, true, nil)
	rec := env.do(http.MethodPost, "/api/v1/conversations/user-2", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ConversationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "conv-1", resp.Conversation.ID)
	assert.True(t, resp.Created)

	env.convs.EXPECT().ResolveOrCreate(gomock.Any(), "user-1", "user-1").
		Return(nil, false, common.ErrValidation)
	rec = env.do(http.MethodPost, "/api/v1/conversations/user-1", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/conversations/user-2", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHTTPHandler_FindConversation(t *testing.T) {
	env := newTestEnv(t)

	env.convs.EXPECT().Find(gomock.Any(), "user-1", "user-2").
		Return(&dbmysql.Conversation{ID: "conv-1"}, nil)
	rec := env.do(http.MethodGet, "/api/v1/conversations/find/user-2", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"conversationId":"conv-1"}`, rec.Body.String())

	env.convs.EXPECT().Find(gomock.Any(), "user-1", "user-3").Return(nil, common.ErrNotFound)
	rec = env.do(http.MethodGet, "/api/v1/conversations/find/user-3", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"conversationId":null}`, rec.Body.String())
}

func TestHTTPHandler_ListMessages(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	history := []*dbmysql.Message{
		{ID: 1, Content: "one", ConversationID: "conv-1", CreatedAt: base},
		{ID: 2, Content: "two", ConversationID: "conv-1", CreatedAt: base.Add(time.Second)},
		{ID: 3, Content: "three", ConversationID: "conv-1", CreatedAt: base.Add(2 * time.Second)},
	}

	tests := []struct {
		name   string
		query  string
		setup  func()
		status int
		want   []string
	}{
		{
			name:   "full history",
			setup:  func() { env.chat.EXPECT().ListMessages(gomock.Any(), "conv-1").Return(history, nil) },
			status: http.StatusOK,
			want:   []string{"one", "two", "three"},
		},
		{
			name:   "paged",
			query:  "?limit=1&offset=1",
			setup:  func() { env.chat.EXPECT().ListMessages(gomock.Any(), "conv-1").Return(history, nil) },
			status: http.StatusOK,
			want:   []string{"two"},
		},
		{
			name:   "offset past the end",
			query:  "?offset=10",
			setup:  func() { env.chat.EXPECT().ListMessages(gomock.Any(), "conv-1").Return(history, nil) },
			status: http.StatusOK,
			want:   []string{},
		},
		{
			name:   "bad limit",
			query:  "?limit=abc",
			setup:  func() {},
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown conversation",
			setup:  func() { env.chat.EXPECT().ListMessages(gomock.Any(), "conv-1").Return(nil, common.ErrNotFound) },
			status: http.StatusNotFound,
		},
		{
			name:   "storage failure is not leaked",
			setup:  func() { env.chat.EXPECT().ListMessages(gomock.Any(), "conv-1").Return(nil, common.ErrStorage) },
			status: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			rec := env.do(http.MethodGet, "/api/v1/conversations/conv-1/messages"+tt.query, "", true)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			if tt.want == nil {
				assert.NotContains(t, rec.Body.String(), "storage failure")
				return
			}
			var resp ListMessagesResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			got := make([]string, 0, len(resp.Messages))
			for _, m := range resp.Messages {
				got = append(got, m.Content)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPHandler_SendMessage(t *testing.T) {
	env := newTestEnv(t)

	t.Run("created", func(t *testing.T) {
		env.chat.EXPECT().
			SendMessage(gomock.Any(), service.AppendInput{Content: "hi", SenderID: "user-1", ReceiverID: "user-2"}).
			Return(&dbmysql.Message{ID: 7, Content: "hi", SenderID: "user-1", ReceiverID: "user-2", ConversationID: "conv-1"}, nil)

		rec := env.do(http.MethodPost, "/api/v1/messages", `{"content":"hi","senderId":"user-1","receiverId":"user-2"}`, true)
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp SendMessageResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, uint(7), resp.Message.ID)
		assert.Equal(t, "conv-1", resp.Message.ConversationID)
	})

	t.Run("sender must be the caller", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/api/v1/messages", `{"content":"hi","senderId":"user-9","receiverId":"user-2"}`, true)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("validation error", func(t *testing.T) {
		env.chat.EXPECT().SendMessage(gomock.Any(), gomock.Any()).Return(nil, common.ErrValidation)
		rec := env.do(http.MethodPost, "/api/v1/messages", `{"content":"  ","senderId":"user-1","receiverId":"user-2"}`, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/api/v1/messages", `{`, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/api/v1/messages", `{"content":"hi","senderId":"user-1","receiverId":"user-2"}`, false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestHTTPHandler_Socket(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/socket"

	_, resp, err := websocket.DefaultDialer.Dial(base+"?token=garbage", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	anon, _, err := websocket.DefaultDialer.Dial(base, nil)
	require.NoError(t, err)
	defer anon.Close()

	named, _, err := websocket.DefaultDialer.Dial(base+"?token="+env.callerToken, nil)
	require.NoError(t, err)
	defer named.Close()

	require.Eventually(t, func() bool { return env.hub.Count() == 2 }, time.Second, 10*time.Millisecond)

	frame := `{"event":"send-message","data":{"senderId":"user-1","receiverId":"user-2","content":"yo"}}`
	require.NoError(t, named.WriteMessage(websocket.TextMessage, []byte(frame)))

	for _, ws := range []*websocket.Conn{anon, named} {
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		var ev fanout.Event
		require.NoError(t, ws.ReadJSON(&ev))
		assert.Equal(t, fanout.EventReceiveMessage, ev.Name)
	}
}

func TestHTTPHandler_LogsInternalFailures(t *testing.T) {
	var logs bytes.Buffer
	env := newTestEnvWithLogger(t, slog.New(slog.NewTextHandler(&logs, nil)))
	cause := fmt.Errorf("%w: list messages: dial tcp 10.0.0.5:3306: connection refused", common.ErrStorage)

	env.chat.EXPECT().ListMessages(gomock.Any(), "conv-1").Return(nil, cause)
	rec := env.do(http.MethodGet, "/api/v1/conversations/conv-1/messages", "", true)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
	assert.Contains(t, logs.String(), "list messages failed")
	assert.Contains(t, logs.String(), "connection refused")

	logs.Reset()
	env.convs.EXPECT().ResolveOrCreate(gomock.Any(), "user-1", "user-2").Return(nil, false, cause)
	rec = env.do(http.MethodPost, "/api/v1/conversations/user-2", "", true)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, logs.String(), "resolve conversation failed")

	logs.Reset()
	env.convs.EXPECT().Find(gomock.Any(), "user-1", "user-2").Return(nil, cause)
	rec = env.do(http.MethodGet, "/api/v1/conversations/find/user-2", "", true)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, logs.String(), "find conversation failed")

	logs.Reset()
	env.convs.EXPECT().Find(gomock.Any(), "user-1", "user-1").Return(nil, common.ErrValidation)
	rec = env.do(http.MethodGet, "/api/v1/conversations/find/user-1", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, logs.String(), "client errors are not logged")
}

func TestPaginate(t *testing.T) {
	msgs := []*dbmysql.Message{{ID: 1}, {ID: 2}, {ID: 3}}

	page, err := paginate(msgs, 0, 0)
	require.NoError(t, err)
	assert.Len(t, page, 3)

	page, err = paginate(msgs, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, uint(3), page[0].ID)

	_, err = paginate(msgs, -1, 0)
	assert.ErrorIs(t, err, common.ErrValidation)

	page, err = paginate(msgs, math.MaxInt, 1)
	require.NoError(t, err, "huge limits do not overflow")
	require.Len(t, page, 2)
	assert.Equal(t, uint(2), page[0].ID)

	page, err = paginate(msgs, 1, math.MaxInt)
	require.NoError(t, err)
	assert.Empty(t, page)
}
