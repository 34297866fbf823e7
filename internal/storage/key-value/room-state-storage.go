package key_value

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RoomStateStorage struct {
	rdb *redis.Client
}

func NewRoomStateStorage(rdb *redis.Client) *RoomStateStorage {
	return &RoomStateStorage{
		rdb: rdb,
	}
}

func (r *RoomStateStorage) Mark(ctx context.Context, roomID string) (time.Time, error) {
	markRaw, err := r.rdb.Get(ctx, getRoomMarkKey(roomID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to get room mark %s: %w", roomID, err)
	}
	mark, err := time.Parse(time.RFC3339Nano, markRaw)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse room mark %s: %w", roomID, err)
	}
	return mark, nil
}

func (r *RoomStateStorage) SetMark(ctx context.Context, roomID string, seen time.Time) error {
	markRaw := seen.Format(time.RFC3339Nano)
	if err := r.rdb.Set(ctx, getRoomMarkKey(roomID), markRaw, 0).Err(); err != nil {
		return fmt.Errorf("failed to save room mark %s: %w", roomID, err)
	}
	return nil
}

func getRoomMarkKey(roomID string) string {
	return fmt.Sprintf("room_mark_%s", roomID)
}
