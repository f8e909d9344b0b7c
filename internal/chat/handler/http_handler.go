package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"blogchat/internal/chat/fanout"
	"blogchat/internal/chat/service"
	"blogchat/internal/common"
	"blogchat/internal/config"
)

// HTTPHandler serves the REST chat API and the websocket endpoint.
type HTTPHandler struct {
	chatService   service.ChatService
	conversations service.ConversationService
	hub           *fanout.Hub
	tokens        *common.TokenManager
	buffer        int
	log           *slog.Logger
}

func NewHTTPHandler(
	chatService service.ChatService,
	conversations service.ConversationService,
	hub *fanout.Hub,
	tokens *common.TokenManager,
	cfg *config.Config,
	log *slog.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		chatService:   chatService,
		conversations: conversations,
		hub:           hub,
		tokens:        tokens,
		buffer:        cfg.Chat.ConnectionBuffer,
		log:           log,
	}
}

// RegisterRoutes mounts health and the socket on public, the chat API on
// protected.
func (h *HTTPHandler) RegisterRoutes(public, protected *mux.Router) {
	public.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	public.HandleFunc("/socket", h.Socket).Methods(http.MethodGet)

	protected.HandleFunc("/conversations/find/{peerID}", h.FindConversation).Methods(http.MethodGet)
	protected.HandleFunc("/conversations/{peerID}", h.ResolveConversation).Methods(http.MethodPost)
	protected.HandleFunc("/conversations/{conversationID}/messages", h.ListMessages).Methods(http.MethodGet)
	protected.HandleFunc("/messages", h.SendMessage).Methods(http.MethodPost)
}

// fail writes err to the client; server-side failures are logged with their
// cause since the response only carries a generic message.
func (h *HTTPHandler) fail(w http.ResponseWriter, op string, err error) {
	if common.HTTPStatus(err) == http.StatusInternalServerError {
		h.log.Error(op+" failed", "error", err)
	}
	common.WriteServiceError(w, err)
}

func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	common.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "chat-svc",
	})
}

func (h *HTTPHandler) ResolveConversation(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r.Context())
	if err != nil {
		common.WriteServiceError(w, err)
		return
	}

	conv, created, err := h.conversations.ResolveOrCreate(r.Context(), caller, mux.Vars(r)["peerID"])
	if err != nil {
		h.fail(w, "resolve conversation", err)
		return
	}
	common.WriteJSON(w, http.StatusOK, ConversationResponse{Conversation: conv, Created: created})
}

func (h *HTTPHandler) FindConversation(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r.Context())
	if err != nil {
		common.WriteServiceError(w, err)
		return
	}

	conv, err := h.conversations.Find(r.Context(), caller, mux.Vars(r)["peerID"])
	switch {
	case errors.Is(err, common.ErrNotFound):
		common.WriteJSON(w, http.StatusOK, FindConversationResponse{})
	case err != nil:
		h.fail(w, "find conversation", err)
	default:
		common.WriteJSON(w, http.StatusOK, FindConversationResponse{ConversationID: &conv.ID})
	}
}

func (h *HTTPHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		common.WriteServiceError(w, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		common.WriteServiceError(w, err)
		return
	}

	messages, err := h.chatService.ListMessages(r.Context(), mux.Vars(r)["conversationID"])
	if err != nil {
		h.fail(w, "list messages", err)
		return
	}

	page, err := paginate(messages, limit, offset)
	if err != nil {
		common.WriteServiceError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, ListMessagesResponse{Messages: page})
}

func (h *HTTPHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := authorizeSender(r.Context(), req.SenderID); err != nil {
		common.WriteServiceError(w, err)
		return
	}

	msg, err := h.chatService.SendMessage(r.Context(), service.AppendInput{
		ConversationID: req.ConversationID,
		Content:        req.Content,
		SenderID:       req.SenderID,
		ReceiverID:     req.ReceiverID,
	})
	if err != nil {
		h.fail(w, "send message", err)
		return
	}
	common.WriteJSON(w, http.StatusCreated, SendMessageResponse{Message: msg})
}

// Socket upgrades to a websocket attached to the fanout hub. A token query
// parameter is optional and only ties the connection to a user.
func (h *HTTPHandler) Socket(w http.ResponseWriter, r *http.Request) {
	var userID string
	if token := r.URL.Query().Get("token"); token != "" {
		claims, err := h.tokens.ValidToken(token)
		if err != nil {
			common.WriteError(w, http.StatusForbidden, "Invalid token")
			return
		}
		userID = claims.UserID
	}

	fanout.ServeWebSocket(h.hub, w, r, userID, h.buffer, h.log)
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", common.ErrValidation, key)
	}
	return n, nil
}
