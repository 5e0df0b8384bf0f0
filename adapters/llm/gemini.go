package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/elena/assistant/domain/entities"
	"github.com/satriahrh/elena/assistant/domain/repositories"
)

const (
	defaultModel        = "gemini-2.0-flash"
	defaultTemperature  = 0.7
	defaultMaxTokens    = 1024
	defaultHistoryLimit = 20
)

// GeminiConfig holds configuration for the GeminiConversation adapter
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int
	SystemPrompt    string
	Language        string
	HistoryLimit    int
}

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("Google AI API key is required")
	}
	if config.Temperature != 0 && (config.Temperature < 0 || config.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", config.Temperature)
	}
	if config.MaxOutputTokens < 0 {
		return fmt.Errorf("max output tokens must be positive, got %d", config.MaxOutputTokens)
	}
	if config.HistoryLimit < 0 {
		return fmt.Errorf("history limit must be positive, got %d", config.HistoryLimit)
	}
	return nil
}

// contentGenerator is the part of *genai.Models the conversation needs
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiConversation implements Conversation with Gemini. Gemini keeps no server-side
// threads, so a session is a stored history document replayed on every call.
type GeminiConversation struct {
	models       contentGenerator
	sessions     repositories.SessionRepository
	logger       *zap.Logger
	model        string
	temperature  float32
	maxTokens    int
	systemPrompt string
	language     string
	historyLimit int
	now          func() time.Time
}

var _ repositories.Conversation = (*GeminiConversation)(nil)

// NewGeminiConversation creates a new Gemini client backed by sessions
func NewGeminiConversation(ctx context.Context, config GeminiConfig, sessions repositories.SessionRepository, logger *zap.Logger) (*GeminiConversation, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return newGeminiConversation(client.Models, config, sessions, logger), nil
}

func newGeminiConversation(models contentGenerator, config GeminiConfig, sessions repositories.SessionRepository, logger *zap.Logger) *GeminiConversation {
	model := config.Model
	if model == "" {
		model = defaultModel
		logger.Info("Using default model", zap.String("model", model))
	}
	temperature := config.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}
	maxTokens := config.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	historyLimit := config.HistoryLimit
	if historyLimit == 0 {
		historyLimit = defaultHistoryLimit
	}

	return &GeminiConversation{
		models:       models,
		sessions:     sessions,
		logger:       logger,
		model:        model,
		temperature:  temperature,
		maxTokens:    maxTokens,
		systemPrompt: config.SystemPrompt,
		language:     config.Language,
		historyLimit: historyLimit,
		now:          time.Now,
	}
}

// CreateSession stores a new empty history and returns its identifier
func (g *GeminiConversation) CreateSession(ctx context.Context) (string, error) {
	session := entities.NewSession("gemini", g.language)
	session.Metadata.Model = g.model
	if err := g.sessions.Create(ctx, session); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	g.logger.Info("Conversation session created", zap.String("session_id", session.ID.Hex()))
	return session.ID.Hex(), nil
}

// Send replays the recent history plus the new message and stores both turns
func (g *GeminiConversation) Send(ctx context.Context, sessionID, author, message string) (string, error) {
	session, err := g.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	start := g.now()
	envelope := FormatMessage(start, author, message)

	contents := convertHistoryToGemini(session.RecentHistory(g.historyLimit))
	contents = append(contents, genai.NewContentFromText(envelope, genai.RoleUser))

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.temperature),
		MaxOutputTokens: int32(g.maxTokens),
	}
	if g.systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(g.systemPrompt, genai.RoleUser)
	}

	response, err := g.models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	reply := responseText(response)
	if reply == "" {
		g.logger.Warn("Empty response from Gemini", zap.String("session_id", sessionID))
	}

	session.AddMessage(entities.MessageRoleUser, author, envelope, 0)
	session.AddMessage(entities.MessageRoleAssistant, "Elena", reply, int(g.now().Sub(start).Milliseconds()))
	if err := g.sessions.Update(ctx, session); err != nil {
		g.logger.Error("Failed to store conversation turn", zap.String("session_id", sessionID), zap.Error(err))
	}

	g.logger.Info("Conversation message processed",
		zap.String("session_id", sessionID),
		zap.Int("history_length", len(session.Messages)))

	return reply, nil
}

// convertHistoryToGemini converts stored messages to Gemini contents
func convertHistoryToGemini(messages []entities.SessionMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages)+1)
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		role := genai.Role(genai.RoleUser)
		if msg.Role == entities.MessageRoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	return contents
}

func responseText(response *genai.GenerateContentResponse) string {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return ""
	}
	var text strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			text.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(text.String())
}
