package di

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"gorm.io/gorm"

	"blogchat/internal/chat/fanout"
	"blogchat/internal/chat/handler"
	"blogchat/internal/chat/repository"
	"blogchat/internal/chat/service"
	"blogchat/internal/common"
	"blogchat/internal/config"
	"blogchat/internal/dbmongo"
	"blogchat/internal/user"
)

// Application is everything `chat-svc serve` needs to run.
type Application struct {
	Config     *config.Config
	Logger     *slog.Logger
	DB         *gorm.DB
	Hub        *fanout.Hub
	HTTPServer *http.Server
	GRPCServer *grpc.Server
	Health     *health.Server
}

// ChatStores is the conversation and message storage selected by CHAT_STORE.
type ChatStores struct {
	Conversations repository.ConversationRepository
	Messages      repository.MessageRepository
}

func ProvideLogger(cfg *config.Config) (*slog.Logger, func()) {
	logger, closeFile := config.SetupLogger(cfg.Logging)
	slog.SetDefault(logger)
	return logger, func() {
		if err := closeFile(); err != nil {
			logger.Warn("closing log file", "error", err)
		}
	}
}

func ProvideChatStores(cfg *config.Config, db *gorm.DB, log *slog.Logger) (*ChatStores, func(), error) {
	switch cfg.Chat.Store {
	case config.StoreMySQL, "":
		log.Info("chat store selected", "store", config.StoreMySQL)
		return &ChatStores{
			Conversations: repository.NewConversationRepository(db),
			Messages:      repository.NewMessageRepository(db),
		}, func() {}, nil

	case config.StoreMongo:
		mc, err := dbmongo.NewMongoConnection(cfg)
		if err != nil {
			return nil, nil, err
		}
		store := dbmongo.NewChatStore(mc)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = mc.Close(ctx)
			return nil, nil, err
		}

		log.Info("chat store selected", "store", config.StoreMongo, "database", cfg.MongoDB.Database)
		cleanup := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mc.Close(ctx); err != nil {
				log.Warn("closing MongoDB", "error", err)
			}
		}
		return &ChatStores{Conversations: store, Messages: store}, cleanup, nil

	default:
		return nil, nil, fmt.Errorf("unknown CHAT_STORE %q (want %s or %s)", cfg.Chat.Store, config.StoreMySQL, config.StoreMongo)
	}
}

// ProvideUserDirectory lets the message reader join display names from the
// user table, whichever chat store is active.
func ProvideUserDirectory(users user.UserRepository) service.UserDirectory {
	return users
}

func ProvideRouter(log *slog.Logger, tokens *common.TokenManager, users *user.Handler, chat *handler.HTTPHandler) *mux.Router {
	r := mux.NewRouter()
	r.Use(common.LoggingMiddleware(log))

	api := r.PathPrefix("/api/v1").Subrouter()
	protected := api.NewRoute().Subrouter()
	protected.Use(common.RequireAuth(tokens))

	users.RegisterRoutes(api, protected)
	chat.RegisterRoutes(api, protected)
	return r
}

// ProvideHTTPServer wraps the router in CORS outside of mux so preflight
// requests are answered even for routes that only accept POST.
func ProvideHTTPServer(cfg *config.Config, router *mux.Router) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:           common.CORSMiddleware(router),
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeout) * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func ProvideHealthServer() *health.Server {
	return health.NewServer()
}

func ProvideGRPCServer(cfg *config.Config, log *slog.Logger, tokens *common.TokenManager, chat *handler.ChatHandler, hs *health.Server) *grpc.Server {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			common.RecoveryUnaryInterceptor(log),
			common.LoggingUnaryInterceptor(log),
			common.AuthInterceptor(tokens),
		),
		grpc.ChainStreamInterceptor(
			common.RecoveryStreamInterceptor(log),
			common.LoggingStreamInterceptor(log),
			common.StreamAuthInterceptor(tokens),
		),
	)
	handler.RegisterChatServiceServer(s, chat)
	healthpb.RegisterHealthServer(s, hs)
	if cfg.Server.Environment != "production" {
		reflection.Register(s)
	}
	return s
}
