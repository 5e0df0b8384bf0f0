package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"google.golang.org/genai"

	"github.com/satriahrh/elena/assistant/adapters/memory"
	"github.com/satriahrh/elena/assistant/domain/entities"
	"github.com/satriahrh/elena/assistant/domain/repositories"
)

type fakeGenerator struct {
	reply    string
	err      error
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.contents = contents
	f.config = config
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: genai.NewContentFromText(f.reply, genai.RoleModel),
		}},
	}, nil
}

func newTestGemini(t *testing.T, gen *fakeGenerator) (*GeminiConversation, *memory.SessionRepository) {
	t.Helper()
	repo := memory.NewSessionRepository()
	g := newGeminiConversation(gen, GeminiConfig{
		APIKey:       "test",
		SystemPrompt: "Si Elena.",
		Language:     "sk",
		HistoryLimit: 4,
	}, repo, zaptest.NewLogger(t))
	g.now = func() time.Time { return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC) }
	return g, repo
}

func TestGeminiConversation_SendStoresHistory(t *testing.T) {
	gen := &fakeGenerator{reply: "Ahoj! Ako ti môžem pomôcť?"}
	g, repo := newTestGemini(t, gen)
	ctx := context.Background()

	id, err := g.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	reply, err := g.Send(ctx, id, "Používateľ", "Ahoj")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if reply != "Ahoj! Ako ti môžem pomôcť?" {
		t.Errorf("Unexpected reply %q", reply)
	}

	if gen.config.SystemInstruction == nil || gen.config.SystemInstruction.Parts[0].Text != "Si Elena." {
		t.Error("Expected system prompt as system instruction")
	}
	if len(gen.contents) != 1 || gen.contents[0].Parts[0].Text != "[2025-01-01 12:00:00] [Používateľ]: Ahoj" {
		t.Errorf("Unexpected contents for the first turn: %+v", gen.contents)
	}

	session, _ := repo.GetByID(ctx, id)
	if len(session.Messages) != 2 {
		t.Fatalf("Expected 2 stored messages, got %d", len(session.Messages))
	}
	if session.Messages[1].Role != entities.MessageRoleAssistant {
		t.Errorf("Expected assistant turn second, got %s", session.Messages[1].Role)
	}

	if _, err := g.Send(ctx, id, "Používateľ", "Ďakujem"); err != nil {
		t.Fatalf("Second send failed: %v", err)
	}
	if len(gen.contents) != 3 {
		t.Fatalf("Expected history replayed, got %d contents", len(gen.contents))
	}
	if gen.contents[1].Role != string(genai.RoleModel) {
		t.Errorf("Expected model role for the stored reply, got %s", gen.contents[1].Role)
	}
}

func TestGeminiConversation_HistoryLimit(t *testing.T) {
	gen := &fakeGenerator{reply: "OK"}
	g, _ := newTestGemini(t, gen)
	ctx := context.Background()

	id, _ := g.CreateSession(ctx)
	for i := 0; i < 5; i++ {
		if _, err := g.Send(ctx, id, "Používateľ", "správa"); err != nil {
			t.Fatalf("Send %d failed: %v", i, err)
		}
	}
	if len(gen.contents) != 5 {
		t.Errorf("Expected 4 history contents plus the new message, got %d", len(gen.contents))
	}
}

func TestGeminiConversation_Errors(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("quota exceeded")}
	g, repo := newTestGemini(t, gen)
	ctx := context.Background()

	if _, err := g.Send(ctx, "missing", "Používateľ", "Ahoj"); !errors.Is(err, repositories.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}

	id, _ := g.CreateSession(ctx)
	if _, err := g.Send(ctx, id, "Používateľ", "Ahoj"); err == nil {
		t.Error("Expected generation error")
	}
	session, _ := repo.GetByID(ctx, id)
	if len(session.Messages) != 0 {
		t.Error("Failed turns must not be stored")
	}
}

func TestGeminiConversation_EmptyReply(t *testing.T) {
	gen := &fakeGenerator{reply: "  "}
	g, _ := newTestGemini(t, gen)
	ctx := context.Background()

	id, _ := g.CreateSession(ctx)
	reply, err := g.Send(ctx, id, "Používateľ", "Ahoj")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if reply != "" {
		t.Errorf("Expected empty reply, got %q", reply)
	}
}

func TestConvertHistoryToGemini(t *testing.T) {
	contents := convertHistoryToGemini([]entities.SessionMessage{
		{Role: entities.MessageRoleUser, Content: "Ahoj"},
		{Role: entities.MessageRoleAssistant, Content: ""},
		{Role: entities.MessageRoleAssistant, Content: "Ahoj! Čo potrebuješ?"},
	})

	if len(contents) != 2 {
		t.Fatalf("Expected empty messages skipped, got %d contents", len(contents))
	}
	if contents[0].Role != string(genai.RoleUser) || contents[0].Parts[0].Text != "Ahoj" {
		t.Errorf("Unexpected user content %+v", contents[0])
	}
	if contents[1].Role != string(genai.RoleModel) || contents[1].Parts[0].Text != "Ahoj! Čo potrebuješ?" {
		t.Errorf("Unexpected model content %+v", contents[1])
	}
}

func TestValidateGeminiConfig(t *testing.T) {
	if err := ValidateGeminiConfig(GeminiConfig{}); err == nil {
		t.Error("Expected missing key error")
	}
	if err := ValidateGeminiConfig(GeminiConfig{APIKey: "k", Temperature: 3}); err == nil {
		t.Error("Expected temperature error")
	}
	if err := ValidateGeminiConfig(GeminiConfig{APIKey: "k", Temperature: 0.7}); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}
