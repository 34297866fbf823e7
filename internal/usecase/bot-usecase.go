package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/iamvkosarev/webex-ai-bot/config"
	"github.com/iamvkosarev/webex-ai-bot/internal/model"
	"github.com/iamvkosarev/webex-ai-bot/internal/webex"
)

const (
	MessageServerError       = "Something wrong with me. Try later"
	MessageUserNoAccess      = "You are not allowed to use this bot"
	MessageCommandUnknown    = "I don't know that command"
	MessageFailedToGetModels = "Failed to get available models. Try later"
	MessageHistoryCleared    = "✓ Conversation history cleared!"
	MessageSearchUsage       = "❌ Please provide a search query. Example: `/search latest AI news`"
	MessageSearchingWeb      = "🔍 Searching the web...\n\n"
	MessageSearchingAuto     = "🔍 *Searching for current info...*\n\n"
	MessageModelsHeader      = "**Available Models:**"

	MessageCommandHelp = "**Available Commands:**\n" +
		"• Just type your message - AI auto-searches when needed 🔍\n" +
		"• `/search <query>` - Force a web search\n" +
		"• `/clear` - Clear conversation history\n" +
		"• `/help` - Show this help message\n" +
		"• `/models` - List available AI models\n" +
		"\n" +
		"💡 *Web search activates automatically for current events, troubleshooting, and when you need real-time info!*"
)

type ConversationStorage interface {
	History(ctx context.Context, roomID string) ([]model.Turn, error)
	Append(ctx context.Context, roomID string, turns ...model.Turn) error
	Clear(ctx context.Context, roomID string) error
}

type AIService interface {
	Chat(ctx context.Context, history []model.Turn, message string) (string, error)
	Search(ctx context.Context, history []model.Turn, query string) (string, error)
	ListModels(ctx context.Context) ([]string, error)
}

type MessageSender interface {
	CreateMessage(ctx context.Context, request webex.CreateMessageRequest) (*webex.Message, error)
}

type BotUsecaseDeps struct {
	Conversations ConversationStorage
	AI            AIService
	Sender        MessageSender
}

type BotUsecase struct {
	BotUsecaseDeps
	botEmail       string
	allowedEmails  map[string]struct{}
	allowedDomains map[string]struct{}
}

func NewBotUsecase(cfg config.Webex, botEmail string, deps BotUsecaseDeps) *BotUsecase {
	allowedEmails := make(map[string]struct{})
	for _, email := range cfg.AllowedEmails {
		allowedEmails[strings.ToLower(strings.TrimSpace(email))] = struct{}{}
	}
	allowedDomains := make(map[string]struct{})
	for _, domain := range cfg.AllowedDomains {
		allowedDomains[strings.ToLower(strings.TrimSpace(domain))] = struct{}{}
	}
	return &BotUsecase{
		BotUsecaseDeps: deps,
		botEmail:       strings.ToLower(botEmail),
		allowedEmails:  allowedEmails,
		allowedDomains: allowedDomains,
	}
}

// HandleMessage runs one inbound message through the command dispatcher
// or the AI pipeline and replies in the same room. Commands never reach
// the AI backend.
func (b *BotUsecase) HandleMessage(ctx context.Context, msg model.Message) error {
	if strings.EqualFold(msg.PersonEmail, b.botEmail) {
		return nil
	}
	if !b.hasAccess(msg.PersonEmail) {
		b.sendReplyAndHandleErr(ctx, msg.RoomID, MessageUserNoAccess)
		return nil
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}

	command, args, err := model.ParseCommand(text)
	switch {
	case err == nil:
		return b.handleCommand(ctx, msg.RoomID, command, args)
	case errors.Is(err, model.ErrUnknownCommand):
		b.sendReplyAndHandleErr(ctx, msg.RoomID, MessageCommandUnknown)
		return nil
	default:
		return b.handleChat(ctx, msg.RoomID, text)
	}
}

func (b *BotUsecase) handleCommand(ctx context.Context, roomID string, command model.Command, args string) error {
	var answerText string
	switch command {
	case model.CommandHelp:
		answerText = MessageCommandHelp
	case model.CommandClear:
		if err := b.Conversations.Clear(ctx, roomID); err != nil {
			b.sendReplyAndHandleErr(ctx, roomID, MessageServerError)
			return fmt.Errorf("failed to clear conversation: %w", err)
		}
		answerText = MessageHistoryCleared
	case model.CommandModels:
		models, err := b.AI.ListModels(ctx)
		if err != nil {
			b.sendReplyAndHandleErr(ctx, roomID, MessageFailedToGetModels)
			return fmt.Errorf("failed to list models: %w", err)
		}
		answerText = prepareModelsList(models)
	case model.CommandSearch:
		if args == "" {
			b.sendReplyAndHandleErr(ctx, roomID, MessageSearchUsage)
			return nil
		}
		return b.handleSearch(ctx, roomID, args, MessageSearchingWeb)
	default:
		answerText = MessageCommandUnknown
	}
	b.sendReplyAndHandleErr(ctx, roomID, answerText)
	return nil
}

func (b *BotUsecase) handleChat(ctx context.Context, roomID, text string) error {
	if needSearch, trigger := ShouldSearch(text); needSearch {
		slog.Info("auto search triggered", "room_id", roomID, "trigger", trigger)
		return b.handleSearch(ctx, roomID, text, MessageSearchingAuto)
	}

	history, err := b.Conversations.History(ctx, roomID)
	if err != nil {
		b.sendReplyAndHandleErr(ctx, roomID, MessageServerError)
		return fmt.Errorf("failed to get conversation history: %w", err)
	}
	answer, err := b.AI.Chat(ctx, history, text)
	if err != nil {
		b.sendReplyAndHandleErr(ctx, roomID, MessageServerError)
		return fmt.Errorf("failed to get ai answer: %w", err)
	}
	b.storeExchange(ctx, roomID, text, answer)
	b.sendReplyAndHandleErr(ctx, roomID, answer)
	return nil
}

func (b *BotUsecase) handleSearch(ctx context.Context, roomID, query, banner string) error {
	history, err := b.Conversations.History(ctx, roomID)
	if err != nil {
		b.sendReplyAndHandleErr(ctx, roomID, MessageServerError)
		return fmt.Errorf("failed to get conversation history: %w", err)
	}
	answer, err := b.AI.Search(ctx, history, query)
	if err != nil {
		b.sendReplyAndHandleErr(ctx, roomID, MessageServerError)
		return fmt.Errorf("failed to get search answer: %w", err)
	}
	b.storeExchange(ctx, roomID, query, answer)
	b.sendReplyAndHandleErr(ctx, roomID, banner+answer)
	return nil
}

// storeExchange saves a user question and the assistant answer as one
// pair, only after the AI call succeeded. A failed save is logged but
// does not block the reply.
func (b *BotUsecase) storeExchange(ctx context.Context, roomID, question, answer string) {
	err := b.Conversations.Append(ctx, roomID,
		model.Turn{Role: model.RoleUser, Text: question},
		model.Turn{Role: model.RoleAssistant, Text: answer},
	)
	if err != nil {
		slog.Error("failed to save conversation turns", "room_id", roomID, "error", err)
	}
}

func (b *BotUsecase) hasAccess(email string) bool {
	if len(b.allowedEmails) == 0 && len(b.allowedDomains) == 0 {
		return true
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if _, ok := b.allowedEmails[email]; ok {
		return true
	}
	if _, domain, found := strings.Cut(email, "@"); found {
		if _, ok := b.allowedDomains[domain]; ok {
			return true
		}
	}
	return false
}

func prepareModelsList(models []string) string {
	result := strings.Builder{}
	result.WriteString(MessageModelsHeader)
	for _, modelID := range models {
		result.WriteString(fmt.Sprintf("\n• %s", modelID))
	}
	return result.String()
}

func (b *BotUsecase) sendReplyAndHandleErr(ctx context.Context, roomID string, markdown string) {
	_, err := b.Sender.CreateMessage(
		ctx, webex.CreateMessageRequest{
			RoomID:   roomID,
			Markdown: markdown,
		},
	)
	if err != nil {
		slog.Error("failed to send reply", "room_id", roomID, "error", err)
	}
}
