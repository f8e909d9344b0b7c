//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"blogchat/internal/chat/fanout"
	"blogchat/internal/chat/handler"
	"blogchat/internal/chat/service"
	"blogchat/internal/common"
	"blogchat/internal/config"
	"blogchat/internal/dbmysql"
	"blogchat/internal/user"
)

var storageSet = wire.NewSet(
	dbmysql.NewMySQL,
	ProvideChatStores,
	wire.FieldsOf(new(*ChatStores), "Conversations", "Messages"),
	user.NewUserRepository,
	ProvideUserDirectory,
)

var chatSet = wire.NewSet(
	service.NewConversationService,
	service.NewChatService,
	fanout.NewRedisBackplane,
	fanout.NewHub,
	handler.NewChatHandler,
	handler.NewHTTPHandler,
)

var transportSet = wire.NewSet(
	user.NewUserService,
	user.NewHandler,
	ProvideRouter,
	ProvideHTTPServer,
	ProvideHealthServer,
	ProvideGRPCServer,
)

func InitializeApplication(cfg *config.Config) (*Application, func(), error) {
	wire.Build(
		ProvideLogger,
		common.NewTokenManager,
		storageSet,
		chatSet,
		transportSet,
		wire.Struct(new(Application), "*"),
	)
	return &Application{}, nil, nil
}
