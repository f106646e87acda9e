// Package genie drives conversations with a Databricks Genie space: it submits
// natural-language questions, polls the resulting messages until the service
// reaches a terminal state and normalizes the tabular answer.
package genie

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	dbxerrors "dbxagent/internal/errors"
	"dbxagent/internal/httpclient"
	"dbxagent/internal/logging"
	"dbxagent/internal/observability"
)

const (
	DefaultTimeout      = 60 * time.Second
	DefaultPollInterval = 2 * time.Second
)

// PollRecorder receives poll and wait outcomes.
type PollRecorder interface {
	RecordGeniePoll(ctx context.Context, spaceID, status string)
	RecordGenieWait(ctx context.Context, spaceID, outcome string, elapsed time.Duration)
}

// Config configures a Client. Host and Token are required.
type Config struct {
	Host  string
	Token string
	// Timeout is the default wait budget of WaitForCompletion.
	Timeout      time.Duration
	PollInterval time.Duration
	HTTPTimeout  time.Duration
	// WaitForCompletion makes StartConversation and ContinueConversation
	// block until the new message is terminal.
	WaitForCompletion bool
	HTTPClient        *http.Client
	Logger            logging.Logger
	Metrics           PollRecorder
}

// Client talks to the Genie conversation API.
type Client struct {
	baseURL      string
	timeout      time.Duration
	pollInterval time.Duration
	wait         bool
	httpClient   *http.Client
	logger       logging.Logger
	metrics      PollRecorder
}

// NewClient validates cfg and returns a client.
func NewClient(cfg Config) (*Client, error) {
	host := strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	if host == "" {
		return nil, fmt.Errorf("databricks host is required")
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	if cfg.HTTPClient == nil && strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("databricks token is required")
	}

	logger := logging.OrNop(cfg.Logger)
	client := cfg.HTTPClient
	if client == nil {
		client = httpclient.New(httpclient.Options{
			Timeout: cfg.HTTPTimeout,
			Token:   cfg.Token,
			Breaker: "genie",
			Logger:  logger,
		})
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &Client{
		baseURL:      host + "/api/2.0/genie/spaces",
		timeout:      timeout,
		pollInterval: interval,
		wait:         cfg.WaitForCompletion,
		httpClient:   client,
		logger:       logger,
		metrics:      cfg.Metrics,
	}, nil
}

// StartConversation opens a conversation in spaceID with content as the
// first question.
func (c *Client) StartConversation(ctx context.Context, spaceID, content string) (*Message, error) {
	if err := requireIDs(spaceID); err != nil {
		return nil, err
	}
	var resp struct {
		ConversationID string `json:"conversation_id"`
		MessageID      string `json:"message_id"`
		Status         string `json:"status"`
	}
	path := "/" + url.PathEscape(spaceID) + "/start-conversation"
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"content": content}, &resp); err != nil {
		return nil, err
	}
	if resp.ConversationID == "" || resp.MessageID == "" {
		return nil, fmt.Errorf("start conversation: response is missing conversation or message id")
	}
	logging.FromContext(ctx, c.logger).Info("Started genie conversation %s in space %s", resp.ConversationID, spaceID)
	return c.settle(ctx, spaceID, resp.ConversationID, resp.MessageID, content, resp.Status)
}

// ContinueConversation posts a follow-up question to an existing conversation.
func (c *Client) ContinueConversation(ctx context.Context, spaceID, conversationID, content string) (*Message, error) {
	if err := requireIDs(spaceID, conversationID); err != nil {
		return nil, err
	}
	var resp wireMessage
	if err := c.do(ctx, http.MethodPost, messagesPath(spaceID, conversationID), map[string]string{"content": content}, &resp); err != nil {
		return nil, err
	}
	id := resp.ID
	if id == "" {
		id = resp.MessageID
	}
	if id == "" {
		return nil, fmt.Errorf("continue conversation: response is missing message id")
	}
	return c.settle(ctx, spaceID, conversationID, id, content, resp.Status)
}

func (c *Client) settle(ctx context.Context, spaceID, conversationID, messageID, content, status string) (*Message, error) {
	if c.wait {
		return c.WaitForCompletion(ctx, spaceID, conversationID, messageID, 0)
	}
	if status == "" {
		status = string(StatusPending)
	}
	return &Message{
		ID:             messageID,
		ConversationID: conversationID,
		Content:        content,
		Status:         Status(status),
	}, nil
}

// GetMessage fetches the current state of one message without blocking.
func (c *Client) GetMessage(ctx context.Context, spaceID, conversationID, messageID string) (*Message, error) {
	if err := requireIDs(spaceID, conversationID, messageID); err != nil {
		return nil, err
	}
	var resp wireMessage
	path := messagesPath(spaceID, conversationID) + "/" + url.PathEscape(messageID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	msg := resp.toMessage()
	if msg.ConversationID == "" {
		msg.ConversationID = conversationID
	}
	if c.metrics != nil {
		c.metrics.RecordGeniePoll(ctx, spaceID, string(msg.Status))
	}
	return &msg, nil
}

// ConversationHistory lists every message of a conversation in service order.
func (c *Client) ConversationHistory(ctx context.Context, spaceID, conversationID string) ([]Message, error) {
	if err := requireIDs(spaceID, conversationID); err != nil {
		return nil, err
	}
	var resp struct {
		Messages []wireMessage `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, messagesPath(spaceID, conversationID), nil, &resp); err != nil {
		return nil, err
	}
	history := make([]Message, 0, len(resp.Messages))
	for _, wire := range resp.Messages {
		msg := wire.toMessage()
		if msg.ConversationID == "" {
			msg.ConversationID = conversationID
		}
		history = append(history, msg)
	}
	return history, nil
}

// WaitForCompletion polls a message until it is COMPLETED, FAILED or the
// budget runs out. A zero timeout uses the client default. Statuses the
// client does not recognise keep the wait going.
func (c *Client) WaitForCompletion(ctx context.Context, spaceID, conversationID, messageID string, timeout time.Duration) (msg *Message, err error) {
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, span := observability.StartSpan(ctx, observability.SpanGenieWait,
		attribute.String(observability.AttrSpaceID, spaceID))
	defer func() { observability.EndSpan(span, err) }()

	logger := logging.FromContext(ctx, c.logger)
	start := time.Now()
	deadline := start.Add(timeout)
	outcome := "error"
	defer func() {
		if c.metrics != nil {
			c.metrics.RecordGenieWait(ctx, spaceID, outcome, time.Since(start))
		}
	}()

	for {
		msg, err = c.GetMessage(ctx, spaceID, conversationID, messageID)
		if err != nil {
			return nil, err
		}

		switch msg.Status {
		case StatusCompleted:
			outcome = "completed"
			logger.Info("Genie message %s completed in %v", messageID, time.Since(start).Round(time.Millisecond))
			return msg, nil
		case StatusFailed:
			outcome = "failed"
			reason := msg.Error
			if reason == "" {
				reason = "query failed"
			}
			return nil, &QueryFailedError{MessageID: messageID, Reason: reason}
		case StatusPending, StatusFetchingMetadata, StatusExecutingQuery:
			logger.Debug("Genie message %s is %s", messageID, msg.Status)
		default:
			logger.Warn("Unknown genie status %q for message %s, continuing to wait", msg.Status, messageID)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			outcome = "timeout"
			return nil, &TimeoutError{MessageID: messageID, Timeout: timeout, LastStatus: msg.Status}
		}
		delay := min(c.pollInterval, remaining)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			outcome = "cancelled"
			return nil, ctx.Err()
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("genie %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := httpclient.ReadAllWithLimit(resp.Body, httpclient.MaxResponseBytes)
	if err != nil {
		return fmt.Errorf("read genie response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(data)}
		return dbxerrors.ClassifyHTTPStatus(resp.StatusCode, apiErr)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode genie response: %w", err)
	}
	return nil
}

func messagesPath(spaceID, conversationID string) string {
	return "/" + url.PathEscape(spaceID) + "/conversations/" + url.PathEscape(conversationID) + "/messages"
}

func requireIDs(ids ...string) error {
	names := []string{"space id", "conversation id", "message id"}
	for i, id := range ids {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%s is required", names[i])
		}
	}
	return nil
}
