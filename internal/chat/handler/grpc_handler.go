// Package handler exposes the chat services over gRPC and HTTP.
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"blogchat/internal/chat/fanout"
	"blogchat/internal/chat/service"
	"blogchat/internal/common"
	"blogchat/internal/config"
)

type ChatHandler struct {
	chatService   service.ChatService
	conversations service.ConversationService
	hub           *fanout.Hub
	buffer        int
	log           *slog.Logger
}

func NewChatHandler(
	chatService service.ChatService,
	conversations service.ConversationService,
	hub *fanout.Hub,
	cfg *config.Config,
	log *slog.Logger,
) *ChatHandler {
	return &ChatHandler{
		chatService:   chatService,
		conversations: conversations,
		hub:           hub,
		buffer:        cfg.Chat.ConnectionBuffer,
		log:           log,
	}
}

// rpcError maps err onto a status; internal causes are logged because the
// status only carries a generic message.
func (h *ChatHandler) rpcError(op string, err error) error {
	code := common.GRPCCode(err)
	if code == codes.Internal {
		h.log.Error(op+" failed", "error", err)
	}
	return status.Error(code, common.PublicMessage(err))
}

func (h *ChatHandler) ResolveConversation(ctx context.Context, req *ResolveConversationRequest) (*ConversationResponse, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return nil, h.rpcError("resolve conversation", err)
	}
	conv, created, err := h.conversations.ResolveOrCreate(ctx, caller, req.PeerID)
	if err != nil {
		return nil, h.rpcError("resolve conversation", err)
	}
	return &ConversationResponse{Conversation: conv, Created: created}, nil
}

func (h *ChatHandler) FindConversation(ctx context.Context, req *FindConversationRequest) (*FindConversationResponse, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return nil, h.rpcError("find conversation", err)
	}
	conv, err := h.conversations.Find(ctx, caller, req.PeerID)
	if errors.Is(err, common.ErrNotFound) {
		return &FindConversationResponse{}, nil
	}
	if err != nil {
		return nil, h.rpcError("find conversation", err)
	}
	return &FindConversationResponse{ConversationID: &conv.ID}, nil
}

func (h *ChatHandler) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error) {
	if err := authorizeSender(ctx, req.SenderID); err != nil {
		return nil, h.rpcError("send message", err)
	}
	msg, err := h.chatService.SendMessage(ctx, service.AppendInput{
		ConversationID: req.ConversationID,
		Content:        req.Content,
		SenderID:       req.SenderID,
		ReceiverID:     req.ReceiverID,
	})
	if err != nil {
		return nil, h.rpcError("send message", err)
	}
	return &SendMessageResponse{Message: msg}, nil
}

func (h *ChatHandler) ListMessages(ctx context.Context, req *ListMessagesRequest) (*ListMessagesResponse, error) {
	messages, err := h.chatService.ListMessages(ctx, req.ConversationID)
	if err != nil {
		return nil, h.rpcError("list messages", err)
	}
	page, err := paginate(messages, req.Limit, req.Offset)
	if err != nil {
		return nil, h.rpcError("list messages", err)
	}
	return &ListMessagesResponse{Messages: page}, nil
}

// StreamMessages attaches the stream to the fanout hub: inbound frames are
// relayed like socket frames and every hub event is written back.
func (h *ChatHandler) StreamMessages(stream grpc.BidiStreamingServer[fanout.Event, fanout.Event]) error {
	ctx := stream.Context()
	userID, _ := common.UserIDFromContext(ctx)

	sub := newStreamSubscriber(userID, h.buffer)
	if err := h.hub.Attach(sub); err != nil {
		return status.Error(codes.Unavailable, err.Error())
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sub.writeLoop(stream, h.log)
	}()
	defer func() {
		h.hub.Detach(sub)
		sub.Close()
		wg.Wait()
	}()

	relayed := make(chan error, 1)
	go func() { relayed <- h.relay(ctx, stream, sub.ID()) }()

	for {
		select {
		case err := <-relayed:
			if err != nil {
				return err
			}
			// half-closed: keep delivering until the client goes away
			relayed = nil
		case <-ctx.Done():
			return nil
		case <-sub.done:
			// dropped for falling behind, or the hub shut down
			return status.Error(codes.Unavailable, "stream closed by server")
		}
	}
}

func (h *ChatHandler) relay(ctx context.Context, stream grpc.BidiStreamingServer[fanout.Event, fanout.Event], subID string) error {
	for {
		ev, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if status.Code(err) == codes.Canceled {
				return nil
			}
			h.log.Debug("stream receive failed", "subscriber_id", subID, "error", err)
			return err
		}

		frame, err := encodeEvent(ev)
		if err != nil {
			continue
		}
		if err := h.hub.HandleInbound(ctx, frame); err != nil {
			h.log.Debug("inbound frame ignored", "subscriber_id", subID, "error", err)
		}
	}
}

// streamSubscriber adapts a gRPC stream to fanout.Subscriber with the same
// bounded, non-blocking buffer the websocket connections use.
type streamSubscriber struct {
	id     string
	userID string
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func newStreamSubscriber(userID string, buffer int) *streamSubscriber {
	if buffer <= 0 {
		buffer = 128
	}
	return &streamSubscriber{
		id:     uuid.NewString(),
		userID: userID,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

func (s *streamSubscriber) ID() string     { return s.id }
func (s *streamSubscriber) UserID() string { return s.userID }

func (s *streamSubscriber) Send(payload []byte) error {
	select {
	case <-s.done:
		return fanout.ErrClosed
	default:
	}
	select {
	case s.send <- payload:
		return nil
	case <-s.done:
		return fanout.ErrClosed
	default:
		s.Close()
		return fanout.ErrBufferFull
	}
}

func (s *streamSubscriber) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *streamSubscriber) writeLoop(stream grpc.BidiStreamingServer[fanout.Event, fanout.Event], log *slog.Logger) {
	for {
		select {
		case <-s.done:
			return
		case <-stream.Context().Done():
			return
		case payload := <-s.send:
			ev, err := decodeEvent(payload)
			if err != nil {
				log.Warn("dropping undecodable frame", "error", err)
				continue
			}
			if err := stream.Send(ev); err != nil {
				s.Close()
				return
			}
		}
	}
}

var _ fanout.Subscriber = (*streamSubscriber)(nil)
