package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc"

	"github.com/iamvkosarev/webex-ai-bot/config"
	in_memory "github.com/iamvkosarev/webex-ai-bot/internal/storage/in-memory"
	key_value "github.com/iamvkosarev/webex-ai-bot/internal/storage/key-value"
	"github.com/iamvkosarev/webex-ai-bot/internal/usecase"
	"github.com/iamvkosarev/webex-ai-bot/internal/webex"
	"github.com/iamvkosarev/webex-ai-bot/internal/webhook"
)

const (
	webhookName      = "webex-ai-bot"
	webhookListLimit = 100
)

func Run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := webex.NewClient(cfg.Webex.BotToken).WithBaseURL(cfg.Webex.APIBaseURL)

	me, err := client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bot identity: %w", err)
	}
	if len(me.Emails) == 0 {
		return fmt.Errorf("bot account has no email")
	}
	botEmail := me.Emails[0]
	slog.Info("authorized", "bot_email", botEmail, "model", cfg.OpenWebUI.Model)

	conversations, roomState, err := buildStorages(ctx, cfg)
	if err != nil {
		return err
	}

	openAIUsecase := usecase.NewOpenAIUsecase(cfg.OpenWebUI)

	botUsecase := usecase.NewBotUsecase(
		cfg.Webex, botEmail, usecase.BotUsecaseDeps{
			Conversations: conversations,
			AI:            openAIUsecase,
			Sender:        client,
		},
	)

	if cfg.Listener.Mode == config.ListenerModeWebhook {
		return runWebhook(ctx, cfg, client, me.ID, botUsecase)
	}
	return runPoller(ctx, cfg, client, botEmail, roomState, botUsecase)
}

func buildStorages(ctx context.Context, cfg *config.Config) (
	usecase.ConversationStorage, usecase.RoomStateStorage, error,
) {
	if cfg.Storage.Backend == config.StorageBackendRedis {
		rdb := redis.NewClient(
			&redis.Options{
				Addr: cfg.Storage.RedisEndpoint,
			},
		)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		conversations := key_value.NewConversationStorage(rdb, cfg.Conversation.MaxTurns, cfg.Conversation.IdleTimeout)
		return conversations, key_value.NewRoomStateStorage(rdb), nil
	}
	conversations := in_memory.NewConversationStorage(cfg.Conversation.MaxTurns, cfg.Conversation.IdleTimeout)
	return conversations, in_memory.NewRoomStateStorage(), nil
}

func runPoller(
	ctx context.Context, cfg *config.Config, client *webex.Client,
	botEmail string, roomState usecase.RoomStateStorage, bot *usecase.BotUsecase,
) error {
	poller := usecase.NewPollerUsecase(
		cfg.Listener, botEmail, usecase.PollerUsecaseDeps{
			Webex:     client,
			RoomState: roomState,
			Bot:       bot,
		},
	)
	return poller.Run(ctx)
}

func runWebhook(
	ctx context.Context, cfg *config.Config, client *webex.Client,
	botPersonID string, bot *usecase.BotUsecase,
) error {
	secret := cfg.Listener.Secret
	if secret == "" {
		secret = uuid.NewString()
	}
	if err := ensureWebhook(ctx, client, cfg.Listener.TargetURL, secret); err != nil {
		return fmt.Errorf("failed to register webhook: %w", err)
	}

	server := webhook.NewServer(
		cfg.Listener, secret, botPersonID, webhook.ServerDeps{
			Webex:   client,
			Handler: bot,
		},
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg := conc.NewWaitGroup()
	wg.Go(
		func() {
			defer cancel()
			if err := server.ListenAndServe(ctx); err != nil {
				slog.Error("webhook server stopped", "error", err)
			}
		},
	)
	wg.Go(
		func() {
			defer cancel()
			if err := server.Run(ctx); err != nil {
				slog.Error("webhook worker stopped", "error", err)
			}
		},
	)
	wg.Wait()
	return nil
}

// ensureWebhook registers the message webhook, replacing any previous
// registration with the same name. Secrets are write-only in the API,
// so a stale webhook cannot be reused.
func ensureWebhook(ctx context.Context, client *webex.Client, targetURL, secret string) error {
	webhooks, err := client.ListWebhooks(ctx, webhookListLimit)
	if err != nil {
		return fmt.Errorf("failed to list webhooks: %w", err)
	}
	for _, hook := range webhooks {
		if hook.Name != webhookName {
			continue
		}
		if err := client.DeleteWebhook(ctx, hook.ID); err != nil {
			return fmt.Errorf("failed to delete webhook: %w", err)
		}
	}
	_, err = client.CreateWebhook(
		ctx, webex.CreateWebhookRequest{
			Name:      webhookName,
			TargetURL: targetURL,
			Resource:  webex.WebhookResourceMessages,
			Event:     webex.WebhookEventCreated,
			Secret:    secret,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}
	slog.Info("webhook registered", "target_url", targetURL)
	return nil
}
