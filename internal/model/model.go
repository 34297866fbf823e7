package model

import "time"

type Message struct {
	ID          string
	RoomID      string
	PersonID    string
	PersonEmail string
	Text        string
	Created     time.Time
}
