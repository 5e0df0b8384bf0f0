package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/satriahrh/elena/assistant/domain/entities"
	"github.com/satriahrh/elena/assistant/domain/repositories"
)

func TestSessionRepository_CreateAndGet(t *testing.T) {
	repo := NewSessionRepository()
	ctx := context.Background()

	session := entities.NewSession("gemini", "sk")
	if err := repo.Create(ctx, session); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := repo.GetByID(ctx, session.ID.Hex())
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Assistant != "gemini" || got.Metadata.Language != "sk" {
		t.Errorf("Unexpected session %+v", got)
	}

	if err := repo.Create(ctx, session); err == nil {
		t.Error("Expected duplicate create to fail")
	}
}

func TestSessionRepository_CopiesState(t *testing.T) {
	repo := NewSessionRepository()
	ctx := context.Background()

	session := entities.NewSession("gemini", "sk")
	repo.Create(ctx, session)

	session.AddMessage(entities.MessageRoleUser, "Používateľ", "Ahoj", 0)
	stored, _ := repo.GetByID(ctx, session.ID.Hex())
	if len(stored.Messages) != 0 {
		t.Error("Stored session changed without Update")
	}

	if err := repo.Update(ctx, session); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	stored, _ = repo.GetByID(ctx, session.ID.Hex())
	if len(stored.Messages) != 1 {
		t.Errorf("Expected 1 stored message, got %d", len(stored.Messages))
	}

	stored.Messages[0].Content = "changed"
	again, _ := repo.GetByID(ctx, session.ID.Hex())
	if again.Messages[0].Content != "Ahoj" {
		t.Error("Returned session shares state with the repository")
	}
}

func TestSessionRepository_NotFound(t *testing.T) {
	repo := NewSessionRepository()
	ctx := context.Background()

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, repositories.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
	if err := repo.Update(ctx, entities.NewSession("gemini", "sk")); !errors.Is(err, repositories.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound on update, got %v", err)
	}
}

func TestSessionRepository_RejectsInvalid(t *testing.T) {
	repo := NewSessionRepository()
	if err := repo.Create(context.Background(), &entities.Session{}); err == nil {
		t.Error("Expected validation error")
	}
	if repo.Count() != 0 {
		t.Errorf("Expected empty repository, got %d", repo.Count())
	}
}
