package handler

import (
	"blogchat/internal/dbmysql"
)

type ResolveConversationRequest struct {
	PeerID string `json:"peerId"`
}

type ConversationResponse struct {
	Conversation *dbmysql.Conversation `json:"conversation"`
	Created      bool                  `json:"created"`
}

type FindConversationRequest struct {
	PeerID string `json:"peerId"`
}

// FindConversationResponse carries a null id when the pair has not talked yet.
type FindConversationResponse struct {
	ConversationID *string `json:"conversationId"`
}

type SendMessageRequest struct {
	ConversationID string `json:"conversationId,omitempty"`
	Content        string `json:"content"`
	SenderID       string `json:"senderId"`
	ReceiverID     string `json:"receiverId"`
}

type SendMessageResponse struct {
	Message *dbmysql.Message `json:"message"`
}

type ListMessagesRequest struct {
	ConversationID string `json:"conversationId"`
	Limit          int    `json:"limit,omitempty"`
	Offset         int    `json:"offset,omitempty"`
}

type ListMessagesResponse struct {
	Messages []*dbmysql.Message `json:"messages"`
}
