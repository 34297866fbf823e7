package in_memory

import (
	"context"
	"sync"
	"time"

	"github.com/iamvkosarev/webex-ai-bot/internal/model"
)

type ConversationStorage struct {
	mu            sync.Mutex
	conversations map[string]*model.Conversation
	maxTurns      int
	idleTimeout   time.Duration
}

func NewConversationStorage(maxTurns int, idleTimeout time.Duration) *ConversationStorage {
	return &ConversationStorage{
		conversations: make(map[string]*model.Conversation),
		maxTurns:      maxTurns,
		idleTimeout:   idleTimeout,
	}
}

func (c *ConversationStorage) History(ctx context.Context, roomID string) ([]model.Turn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conversation, ok := c.conversations[roomID]
	if !ok {
		return nil, nil
	}
	if c.expired(conversation) {
		delete(c.conversations, roomID)
		return nil, nil
	}
	turns := make([]model.Turn, len(conversation.Turns))
	copy(turns, conversation.Turns)
	return turns, nil
}

func (c *ConversationStorage) Append(ctx context.Context, roomID string, turns ...model.Turn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	conversation, ok := c.conversations[roomID]
	if !ok || c.expired(conversation) {
		conversation = &model.Conversation{
			RoomID: roomID,
			Turns:  make([]model.Turn, 0, len(turns)),
		}
		c.conversations[roomID] = conversation
	}
	conversation.Turns = append(conversation.Turns, turns...)
	if c.maxTurns > 0 && len(conversation.Turns) > c.maxTurns {
		conversation.Turns = conversation.Turns[len(conversation.Turns)-c.maxTurns:]
	}
	conversation.UpdatedAt = time.Now()
	return nil
}

func (c *ConversationStorage) Clear(ctx context.Context, roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conversations, roomID)
	return nil
}

func (c *ConversationStorage) expired(conversation *model.Conversation) bool {
	if c.idleTimeout <= 0 {
		return false
	}
	return time.Since(conversation.UpdatedAt) > c.idleTimeout
}
