package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SignatureHeader carries the base64 HMAC-SHA256 of the request body.
const SignatureHeader = "X-Line-Signature"

const maxWebhookBody = 1 << 20

// Event types handled by the bot
const (
	EventTypeMessage  = "message"
	EventTypeFollow   = "follow"
	EventTypeUnfollow = "unfollow"
	EventTypeJoin     = "join"
	EventTypePostback = "postback"
)

// Source identifies who triggered an event
type Source struct {
	Type    string `json:"type"`
	UserID  string `json:"userId,omitempty"`
	GroupID string `json:"groupId,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

// ID returns the push target for the source: group, room or user.
func (s Source) ID() string {
	switch {
	case s.GroupID != "":
		return s.GroupID
	case s.RoomID != "":
		return s.RoomID
	}
	return s.UserID
}

// EventMessage is the message carried by a message event
type EventMessage struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Event is one webhook event
type Event struct {
	Type           string        `json:"type"`
	Mode           string        `json:"mode"`
	Timestamp      int64         `json:"timestamp"`
	WebhookEventID string        `json:"webhookEventId"`
	ReplyToken     string        `json:"replyToken,omitempty"`
	Source         Source        `json:"source"`
	Message        *EventMessage `json:"message,omitempty"`
	Postback       *struct {
		Data string `json:"data"`
	} `json:"postback,omitempty"`
	DeliveryContext struct {
		IsRedelivery bool `json:"isRedelivery"`
	} `json:"deliveryContext"`
}

// Time converts the millisecond timestamp.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Text returns the text of a text message event, or the postback data.
func (e Event) Text() string {
	if e.Message != nil && e.Message.Type == "text" {
		return e.Message.Text
	}
	if e.Postback != nil {
		return e.Postback.Data
	}
	return ""
}

// Webhook is the request body posted to the callback endpoint
type Webhook struct {
	Destination string  `json:"destination"`
	Events      []Event `json:"events"`
}

// Sign computes the signature LINE sends for body.
func Sign(channelSecret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature header value in constant time.
func VerifySignature(channelSecret string, body []byte, signature string) bool {
	decoded, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	return hmac.Equal(decoded, mac.Sum(nil))
}

// ParseRequest verifies and decodes a webhook request
func ParseRequest(channelSecret string, r *http.Request) (*Webhook, error) {
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		return nil, ErrMissingSignature
	}
	if !VerifySignature(channelSecret, body, signature) {
		return nil, ErrInvalidSignature
	}

	var wh Webhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &wh, nil
}
