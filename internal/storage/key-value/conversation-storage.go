package key_value

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iamvkosarev/webex-ai-bot/internal/model"
	"github.com/redis/go-redis/v9"
)

var (
	ErrConversationDoesNotExist = errors.New("conversation does not exist")
)

type turnInternal struct {
	Role model.Role `json:"role"`
	Text string     `json:"text"`
}

type conversationInternal struct {
	RoomID    string         `json:"room_id"`
	Turns     []turnInternal `json:"turns"`
	UpdatedAt int64          `json:"updated_at"`
}

type ConversationStorage struct {
	rdb         *redis.Client
	maxTurns    int
	idleTimeout time.Duration
}

func NewConversationStorage(rdb *redis.Client, maxTurns int, idleTimeout time.Duration) *ConversationStorage {
	return &ConversationStorage{
		rdb:         rdb,
		maxTurns:    maxTurns,
		idleTimeout: idleTimeout,
	}
}

func (c *ConversationStorage) History(ctx context.Context, roomID string) ([]model.Turn, error) {
	conversationInt, err := c.getConversationInt(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrConversationDoesNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get conversation %s: %w", roomID, err)
	}
	turns := make([]model.Turn, 0, len(conversationInt.Turns))
	for _, turn := range conversationInt.Turns {
		turns = append(
			turns, model.Turn{
				Role: turn.Role,
				Text: turn.Text,
			},
		)
	}
	return turns, nil
}

func (c *ConversationStorage) Append(ctx context.Context, roomID string, turns ...model.Turn) error {
	conversationInt, err := c.getConversationInt(ctx, roomID)
	if err != nil {
		if !errors.Is(err, ErrConversationDoesNotExist) {
			return fmt.Errorf("failed to get conversation %s: %w", roomID, err)
		}
		conversationInt = conversationInternal{
			RoomID: roomID,
			Turns:  make([]turnInternal, 0, len(turns)),
		}
	}
	for _, turn := range turns {
		conversationInt.Turns = append(
			conversationInt.Turns, turnInternal{
				Role: turn.Role,
				Text: turn.Text,
			},
		)
	}
	if c.maxTurns > 0 && len(conversationInt.Turns) > c.maxTurns {
		conversationInt.Turns = conversationInt.Turns[len(conversationInt.Turns)-c.maxTurns:]
	}
	conversationInt.UpdatedAt = time.Now().Unix()
	if err = c.setConversationInt(ctx, roomID, conversationInt); err != nil {
		return fmt.Errorf("failed to set conversation %s: %w", roomID, err)
	}
	return nil
}

func (c *ConversationStorage) Clear(ctx context.Context, roomID string) error {
	if err := c.rdb.Del(ctx, getConversationKey(roomID)).Err(); err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", roomID, err)
	}
	return nil
}

func (c *ConversationStorage) getConversationInt(ctx context.Context, roomID string) (conversationInternal, error) {
	conversationKey := getConversationKey(roomID)
	conversationRaw, err := c.rdb.Get(ctx, conversationKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return conversationInternal{}, ErrConversationDoesNotExist
		}
		return conversationInternal{}, fmt.Errorf("failed to get conversation %s: %w", conversationKey, err)
	}
	var conversationInt conversationInternal
	if err = json.Unmarshal([]byte(conversationRaw), &conversationInt); err != nil {
		return conversationInternal{}, fmt.Errorf("failed to unmarshal conversation %s: %w", conversationKey, err)
	}
	return conversationInt, nil
}

func (c *ConversationStorage) setConversationInt(
	ctx context.Context, roomID string, conversationInt conversationInternal,
) error {
	conversationKey := getConversationKey(roomID)
	conversationJSON, err := json.Marshal(conversationInt)
	if err != nil {
		return fmt.Errorf("failed to marshal internal conversation: %w", err)
	}
	if err = c.rdb.Set(ctx, conversationKey, conversationJSON, c.idleTimeout).Err(); err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", conversationKey, err)
	}
	return nil
}

func getConversationKey(roomID string) string {
	return fmt.Sprintf("conversation_%s", roomID)
}
