package model

import "time"

type Turn struct {
	Role Role
	Text string
}

type Conversation struct {
	RoomID    string
	Turns     []Turn
	UpdatedAt time.Time
}
