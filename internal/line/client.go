// Package line provides a LINE Messaging API client and webhook parsing.
package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/keiba-line-bot/internal/config"
	"github.com/yourusername/keiba-line-bot/internal/metrics"
	"golang.org/x/time/rate"
)

// Messaging API limits
const (
	MaxMessagesPerRequest = 5
	MaxTextLength         = 5000
)

const (
	replyPath     = "/v2/bot/message/reply"
	pushPath      = "/v2/bot/message/push"
	broadcastPath = "/v2/bot/message/broadcast"
)

// Message is a LINE message object. Only text messages are sent by the bot.
type Message struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewTextMessage builds a text message, truncating to the API limit.
func NewTextMessage(text string) Message {
	return Message{Type: "text", Text: truncate(text, MaxTextLength)}
}

// TextMessages splits text into as many text messages as needed, breaking on line boundaries.
func TextMessages(text string) []Message {
	var (
		msgs []Message
		buf  strings.Builder
	)
	for _, line := range strings.SplitAfter(text, "\n") {
		if buf.Len() > 0 && utf8.RuneCountInString(buf.String())+utf8.RuneCountInString(line) > MaxTextLength {
			msgs = append(msgs, NewTextMessage(strings.TrimRight(buf.String(), "\n")))
			buf.Reset()
		}
		buf.WriteString(line)
	}
	if s := strings.TrimRight(buf.String(), "\n"); s != "" {
		msgs = append(msgs, NewTextMessage(s))
	}
	return msgs
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

// Sender is the messaging surface used by the bot
type Sender interface {
	Reply(ctx context.Context, replyToken string, messages ...Message) error
	Push(ctx context.Context, to string, messages ...Message) error
	Broadcast(ctx context.Context, messages ...Message) error
}

// Client calls the LINE Messaging API
type Client struct {
	client  *retryablehttp.Client
	limiter *rate.Limiter
	baseURL string
	token   string
	logger  *logrus.Logger
}

// NewClient creates a new Messaging API client
func NewClient(cfg config.LINEConfig, logger *logrus.Logger) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	retryClient.RetryMax = cfg.RetryAttempts
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil

	limit := cfg.RateLimitPerSecond
	if limit <= 0 {
		limit = 10
	}

	return &Client{
		client:  retryClient,
		limiter: rate.NewLimiter(rate.Limit(limit), 1),
		baseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		token:   cfg.ChannelAccessToken,
		logger:  logger,
	}
}

type replyRequest struct {
	ReplyToken string    `json:"replyToken"`
	Messages   []Message `json:"messages"`
}

type pushRequest struct {
	To       string    `json:"to"`
	Messages []Message `json:"messages"`
}

type broadcastRequest struct {
	Messages []Message `json:"messages"`
}

// Reply answers a webhook event. Reply tokens are single use, so only the first
// MaxMessagesPerRequest messages are sent.
func (c *Client) Reply(ctx context.Context, replyToken string, messages ...Message) error {
	if len(messages) == 0 {
		return ErrNoMessages
	}
	if len(messages) > MaxMessagesPerRequest {
		c.logger.WithField("messages", len(messages)).Warn("Reply truncated to API limit")
		messages = messages[:MaxMessagesPerRequest]
	}
	return c.send(ctx, "reply", replyPath, replyRequest{ReplyToken: replyToken, Messages: messages}, false)
}

// Push sends messages to one user, group or room
func (c *Client) Push(ctx context.Context, to string, messages ...Message) error {
	if len(messages) == 0 {
		return ErrNoMessages
	}
	for _, batch := range batches(messages) {
		if err := c.send(ctx, "push", pushPath, pushRequest{To: to, Messages: batch}, true); err != nil {
			return err
		}
	}
	return nil
}

// Broadcast sends messages to every follower of the channel
func (c *Client) Broadcast(ctx context.Context, messages ...Message) error {
	if len(messages) == 0 {
		return ErrNoMessages
	}
	for _, batch := range batches(messages) {
		if err := c.send(ctx, "broadcast", broadcastPath, broadcastRequest{Messages: batch}, true); err != nil {
			return err
		}
	}
	return nil
}

func batches(messages []Message) [][]Message {
	var out [][]Message
	for len(messages) > MaxMessagesPerRequest {
		out = append(out, messages[:MaxMessagesPerRequest])
		messages = messages[MaxMessagesPerRequest:]
	}
	return append(out, messages)
}

// send posts one request. Push and broadcast carry a retry key so the API
// drops duplicates when a retried request had already been accepted.
func (c *Client) send(ctx context.Context, kind, path string, payload any, retryKey bool) error {
	start := time.Now()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if retryKey {
		req.Header.Set("X-Line-Retry-Key", uuid.NewString())
	}

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.RecordLINEMessage(kind, "network_error")
		return fmt.Errorf("line %s request failed: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{StatusCode: resp.StatusCode, RequestID: resp.Header.Get("X-Line-Request-Id")}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		// A 409 on a retried push means the first attempt was accepted.
		if retryKey && resp.StatusCode == http.StatusConflict {
			metrics.RecordLINEMessage(kind, "duplicate")
			return nil
		}
		metrics.RecordLINEMessage(kind, "http_error")
		return apiErr
	}

	metrics.RecordLINEMessage(kind, "success")
	c.logger.WithFields(logrus.Fields{
		"kind":     kind,
		"duration": time.Since(start),
	}).Debug("LINE message sent")
	return nil
}
