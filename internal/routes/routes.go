package routes

import (
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"

	"github.com/juanrobin09-stack/Astraloves-sub001/internal/config"
	"github.com/juanrobin09-stack/Astraloves-sub001/internal/delivery"
	"github.com/juanrobin09-stack/Astraloves-sub001/internal/handlers"
	"github.com/juanrobin09-stack/Astraloves-sub001/internal/middleware"
	"github.com/juanrobin09-stack/Astraloves-sub001/internal/presence"
	"github.com/juanrobin09-stack/Astraloves-sub001/internal/repository"
	"github.com/juanrobin09-stack/Astraloves-sub001/internal/services"
)

func RegisterRoutes(
	app *fiber.App,
	cfg *config.Config,
	db *pgxpool.Pool,
	rdb *redis.Client,
	hub *delivery.Hub,
	tracker *presence.Tracker,
) {
	userRepo := repository.NewUserRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	matchRepo := repository.NewMatchRepository(db)

	var quota *services.QuotaClient
	if cfg.QuotaServiceURL != "" {
		quota = services.NewQuotaClient(cfg.QuotaServiceURL)
	}

	var storage services.StorageService
	if cfg.StorageURL != "" && cfg.StorageBucket != "" && cfg.StorageServiceKey != "" {
		storage = services.NewSupabaseStorageService(cfg.StorageURL, cfg.StorageBucket, cfg.StorageServiceKey)
	}

	chatService := newChatService(db, conversationRepo, messageRepo, userRepo, matchRepo, quota, tracker)
	chatHandler := handlers.NewChatHandler(chatService, hub, tracker, storage, cfg.JWTSecret)
	presenceHandler := handlers.NewPresenceHandler(tracker)

	api := app.Group("/api")
	v1 := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	conversations := v1.Group("/conversations")
	conversations.Get("", chatHandler.ListConversations)
	conversations.Post("", chatHandler.StartConversation)
	conversations.Get("/:id/messages", chatHandler.GetMessages)
	conversations.Post("/:id/messages", chatHandler.SendMessage)
	conversations.Post("/:id/read", chatHandler.MarkRead)

	v1.Post("/media/images", chatHandler.UploadImage)

	presenceGroup := v1.Group("/presence")
	presenceGroup.Post("/heartbeat", presenceHandler.Heartbeat)
	presenceGroup.Get("/:id", presenceHandler.Get)

	api.Use("/v1/ws", chatHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(chatHandler.HandleWebSocket))
}

// newChatService keeps nil-interface plumbing out of RegisterRoutes: an
// unconfigured quota client must become a nil interface, not a typed nil.
func newChatService(
	db *pgxpool.Pool,
	conversationRepo *repository.ConversationRepository,
	messageRepo *repository.MessageRepository,
	userRepo *repository.UserRepository,
	matchRepo *repository.MatchRepository,
	quota *services.QuotaClient,
	tracker *presence.Tracker,
) *services.ChatService {
	if quota == nil {
		return services.NewChatService(db, conversationRepo, messageRepo, userRepo, matchRepo, nil, tracker)
	}
	return services.NewChatService(db, conversationRepo, messageRepo, userRepo, matchRepo, quota, tracker)
}
