package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/elena/assistant/domain/repositories"
)

const (
	defaultAssistantBaseURL = "https://api.openai.com/v1"
	defaultPollInterval     = 500 * time.Millisecond
	defaultRunDeadline      = 60 * time.Second
)

var (
	// ErrRunFailed is returned when a run ends in a terminal state other than completed
	ErrRunFailed = errors.New("assistant run failed")
	// ErrRunTimeout is returned when a run does not complete before the poll deadline
	ErrRunTimeout = errors.New("assistant run timed out")
)

// AssistantConfig holds configuration for the AssistantClient adapter
type AssistantConfig struct {
	APIKey       string        // Required
	AssistantID  string        // Required
	BaseURL      string        // Optional: defaults to the OpenAI API
	PollInterval time.Duration // Optional: delay between run status checks
	RunDeadline  time.Duration // Optional: hard limit on polling one run
}

// ValidateAssistantConfig validates the AssistantConfig
func ValidateAssistantConfig(config AssistantConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("OpenAI API key is required")
	}
	if config.AssistantID == "" {
		return fmt.Errorf("assistant ID is required")
	}
	if config.PollInterval < 0 {
		return fmt.Errorf("poll interval must be positive, got %s", config.PollInterval)
	}
	return nil
}

// AssistantClient implements Conversation on the OpenAI Assistants API: a session is a
// thread, and every message is answered by a run that is polled until it finishes
type AssistantClient struct {
	apiKey       string
	assistantID  string
	baseURL      string
	pollInterval time.Duration
	runDeadline  time.Duration
	client       *http.Client
	logger       *zap.Logger
	now          func() time.Time
}

var _ repositories.Conversation = (*AssistantClient)(nil)

type threadResponse struct {
	ID string `json:"id"`
}

type runResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
}

type messageList struct {
	Data []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"data"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewAssistantClient creates a new AssistantClient
func NewAssistantClient(config AssistantConfig, logger *zap.Logger) (*AssistantClient, error) {
	if err := ValidateAssistantConfig(config); err != nil {
		return nil, err
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultAssistantBaseURL
	}
	pollInterval := config.PollInterval
	if pollInterval == 0 {
		pollInterval = defaultPollInterval
	}
	runDeadline := config.RunDeadline
	if runDeadline == 0 {
		runDeadline = defaultRunDeadline
	}

	return &AssistantClient{
		apiKey:       config.APIKey,
		assistantID:  config.AssistantID,
		baseURL:      strings.TrimRight(baseURL, "/"),
		pollInterval: pollInterval,
		runDeadline:  runDeadline,
		client:       &http.Client{},
		logger:       logger,
		now:          time.Now,
	}, nil
}

// CreateSession creates a new thread
func (a *AssistantClient) CreateSession(ctx context.Context) (string, error) {
	var thread threadResponse
	if err := a.do(ctx, http.MethodPost, "/threads", struct{}{}, &thread); err != nil {
		return "", fmt.Errorf("failed to create thread: %w", err)
	}
	if thread.ID == "" {
		return "", fmt.Errorf("failed to create thread: empty thread id")
	}
	a.logger.Info("Conversation thread created", zap.String("thread_id", thread.ID))
	return thread.ID, nil
}

// Send adds the enveloped message to the thread, runs the assistant and returns the
// newest assistant message
func (a *AssistantClient) Send(ctx context.Context, threadID, author, message string) (string, error) {
	body := map[string]string{
		"role":    "user",
		"content": FormatMessage(a.now(), author, message),
	}
	if err := a.do(ctx, http.MethodPost, "/threads/"+threadID+"/messages", body, nil); err != nil {
		return "", fmt.Errorf("failed to add message: %w", err)
	}

	var run runResponse
	if err := a.do(ctx, http.MethodPost, "/threads/"+threadID+"/runs", map[string]string{"assistant_id": a.assistantID}, &run); err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}

	if err := a.waitForRun(ctx, threadID, run); err != nil {
		return "", err
	}

	var messages messageList
	if err := a.do(ctx, http.MethodGet, "/threads/"+threadID+"/messages?limit=1&order=desc", nil, &messages); err != nil {
		return "", fmt.Errorf("failed to list messages: %w", err)
	}

	for _, m := range messages.Data {
		if m.Role != "assistant" {
			continue
		}
		var parts []string
		for _, c := range m.Content {
			if c.Type == "text" {
				parts = append(parts, c.Text.Value)
			}
		}
		return strings.Join(parts, "\n"), nil
	}

	a.logger.Warn("Run completed without an assistant message", zap.String("thread_id", threadID))
	return "", nil
}

func (a *AssistantClient) waitForRun(ctx context.Context, threadID string, run runResponse) error {
	deadline := time.NewTimer(a.runDeadline)
	defer deadline.Stop()
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		switch run.Status {
		case "completed":
			return nil
		case "failed", "cancelled", "expired", "incomplete", "requires_action":
			reason := run.Status
			if run.LastError != nil && run.LastError.Message != "" {
				reason = run.Status + ": " + run.LastError.Message
			}
			return fmt.Errorf("%w: %s", ErrRunFailed, reason)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w after %s (status %s)", ErrRunTimeout, a.runDeadline, run.Status)
		case <-ticker.C:
		}

		if err := a.do(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+run.ID, nil, &run); err != nil {
			return fmt.Errorf("failed to poll run: %w", err)
		}
		a.logger.Debug("Polled assistant run", zap.String("run_id", run.ID), zap.String("status", run.Status))
	}
}

func (a *AssistantClient) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("API error: status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
