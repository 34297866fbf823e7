package in_memory

import (
	"context"
	"sync"
	"time"
)

type RoomStateStorage struct {
	mu    sync.Mutex
	marks map[string]time.Time
}

func NewRoomStateStorage() *RoomStateStorage {
	return &RoomStateStorage{
		marks: make(map[string]time.Time),
	}
}

func (r *RoomStateStorage) Mark(ctx context.Context, roomID string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.marks[roomID], nil
}

func (r *RoomStateStorage) SetMark(ctx context.Context, roomID string, seen time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.marks[roomID] = seen
	return nil
}
