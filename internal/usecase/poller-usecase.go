package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iamvkosarev/webex-ai-bot/config"
	"github.com/iamvkosarev/webex-ai-bot/internal/model"
	"github.com/iamvkosarev/webex-ai-bot/internal/webex"
)

type MessageSource interface {
	ListRooms(ctx context.Context, limit int) ([]webex.Room, error)
	ListMessages(ctx context.Context, roomID string, limit int) ([]webex.Message, error)
}

type RoomStateStorage interface {
	Mark(ctx context.Context, roomID string) (time.Time, error)
	SetMark(ctx context.Context, roomID string, seen time.Time) error
}

type PollerUsecaseDeps struct {
	Webex     MessageSource
	RoomState RoomStateStorage
	Bot       *BotUsecase
}

// PollerUsecase drives the bot without webhooks: it walks the bot's
// rooms on an interval and hands every message newer than the per-room
// mark to the bot.
type PollerUsecase struct {
	PollerUsecaseDeps
	cfg      config.Listener
	botEmail string
}

func NewPollerUsecase(cfg config.Listener, botEmail string, deps PollerUsecaseDeps) *PollerUsecase {
	return &PollerUsecase{
		PollerUsecaseDeps: deps,
		cfg:               cfg,
		botEmail:          strings.ToLower(botEmail),
	}
}

func (p *PollerUsecase) Run(ctx context.Context) error {
	if err := p.seed(ctx); err != nil {
		slog.Warn("failed to seed room marks", "error", err)
	}
	slog.Info("poller started", "poll_interval", p.cfg.PollInterval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.cfg.PollInterval):
		}
		if err := p.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("failed to poll rooms", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.cfg.ErrorBackoff):
			}
		}
	}
}

// seed records the newest message of each room as already seen, so a
// freshly started bot does not replay history.
func (p *PollerUsecase) seed(ctx context.Context) error {
	rooms, err := p.Webex.ListRooms(ctx, p.cfg.RoomLimit)
	if err != nil {
		return fmt.Errorf("failed to list rooms: %w", err)
	}
	for _, room := range rooms {
		mark, err := p.RoomState.Mark(ctx, room.ID)
		if err != nil {
			return fmt.Errorf("failed to get room mark: %w", err)
		}
		if !mark.IsZero() {
			continue
		}
		if err := p.seedRoom(ctx, room.ID); err != nil {
			return err
		}
	}
	return nil
}

func (p *PollerUsecase) seedRoom(ctx context.Context, roomID string) error {
	messages, err := p.Webex.ListMessages(ctx, roomID, p.cfg.MessageLimit)
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}
	mark := time.Now()
	if len(messages) > 0 {
		mark = messages[0].Created
	}
	if err := p.RoomState.SetMark(ctx, roomID, mark); err != nil {
		return fmt.Errorf("failed to set room mark: %w", err)
	}
	return nil
}

func (p *PollerUsecase) pollOnce(ctx context.Context) error {
	rooms, err := p.Webex.ListRooms(ctx, p.cfg.RoomLimit)
	if err != nil {
		return fmt.Errorf("failed to list rooms: %w", err)
	}
	for _, room := range rooms {
		if err := p.pollRoom(ctx, room.ID); err != nil {
			return err
		}
	}
	return nil
}

func (p *PollerUsecase) pollRoom(ctx context.Context, roomID string) error {
	mark, err := p.RoomState.Mark(ctx, roomID)
	if err != nil {
		return fmt.Errorf("failed to get room mark: %w", err)
	}
	if mark.IsZero() {
		return p.seedRoom(ctx, roomID)
	}

	messages, err := p.Webex.ListMessages(ctx, roomID, p.cfg.MessageLimit)
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}

	// The API returns newest first; handle oldest first so replies
	// keep conversation order.
	newMark := mark
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if !msg.Created.After(mark) {
			continue
		}
		if msg.Created.After(newMark) {
			newMark = msg.Created
		}
		if strings.EqualFold(msg.PersonEmail, p.botEmail) {
			continue
		}
		slog.Info("new message", "room_id", roomID, "person_email", msg.PersonEmail)
		if err := p.Bot.HandleMessage(ctx, toModelMessage(msg)); err != nil {
			slog.Error("failed to handle message", "room_id", roomID, "error", err)
		}
	}
	if newMark.After(mark) {
		if err := p.RoomState.SetMark(ctx, roomID, newMark); err != nil {
			return fmt.Errorf("failed to set room mark: %w", err)
		}
	}
	return nil
}

func toModelMessage(msg webex.Message) model.Message {
	text := msg.Text
	if text == "" {
		text = msg.Markdown
	}
	return model.Message{
		ID:          msg.ID,
		RoomID:      msg.RoomID,
		PersonID:    msg.PersonID,
		PersonEmail: msg.PersonEmail,
		Text:        text,
		Created:     msg.Created,
	}
}
