package webex

import "time"

type Person struct {
	ID          string   `json:"id"`
	Emails      []string `json:"emails"`
	DisplayName string   `json:"displayName"`
}

type Room struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Type         string    `json:"type"`
	LastActivity time.Time `json:"lastActivity"`
}

type Message struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"roomId"`
	PersonID    string    `json:"personId"`
	PersonEmail string    `json:"personEmail"`
	Text        string    `json:"text"`
	Markdown    string    `json:"markdown,omitempty"`
	Created     time.Time `json:"created"`
}

type CreateMessageRequest struct {
	RoomID   string `json:"roomId"`
	Text     string `json:"text,omitempty"`
	Markdown string `json:"markdown,omitempty"`
}

type Webhook struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	TargetURL string `json:"targetUrl"`
	Resource  string `json:"resource"`
	Event     string `json:"event"`
	Secret    string `json:"secret,omitempty"`
	Status    string `json:"status,omitempty"`
}

type CreateWebhookRequest struct {
	Name      string `json:"name"`
	TargetURL string `json:"targetUrl"`
	Resource  string `json:"resource"`
	Event     string `json:"event"`
	Secret    string `json:"secret,omitempty"`
}

type roomList struct {
	Items []Room `json:"items"`
}

type messageList struct {
	Items []Message `json:"items"`
}

type webhookList struct {
	Items []Webhook `json:"items"`
}
