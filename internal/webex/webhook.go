package webex

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"
)

const (
	WebhookResourceMessages = "messages"
	WebhookEventCreated     = "created"

	// SignatureHeader carries the HMAC digest Webex computes over the
	// callback body when the webhook has a secret.
	SignatureHeader = "X-Spark-Signature"
)

type WebhookEvent struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Resource string      `json:"resource"`
	Event    string      `json:"event"`
	Data     WebhookData `json:"data"`
}

// WebhookData identifies the message a callback is about. It never
// contains the message text, that has to be fetched separately.
type WebhookData struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"roomId"`
	PersonID    string    `json:"personId"`
	PersonEmail string    `json:"personEmail"`
	Created     time.Time `json:"created"`
}

// VerifySignature checks the hex encoded HMAC-SHA1 digest of body
// against the signature sent by Webex.
func VerifySignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature)))
}
