package entities

import (
	"testing"
)

func TestSessionCreation(t *testing.T) {
	session := NewSession("Elena", "sk")

	if session.Assistant != "Elena" {
		t.Errorf("Expected assistant Elena, got %s", session.Assistant)
	}

	if session.Status != SessionStatusActive {
		t.Errorf("Expected status %s, got %s", SessionStatusActive, session.Status)
	}

	if len(session.Messages) != 0 {
		t.Errorf("Expected empty messages, got %d messages", len(session.Messages))
	}

	if session.Metadata.Language != "sk" {
		t.Errorf("Expected language sk, got %s", session.Metadata.Language)
	}

	if session.ID.IsZero() {
		t.Error("Expected a generated ID")
	}
}

func TestAddMessage(t *testing.T) {
	session := NewSession("Elena", "sk")

	userContent := "Ahoj, ako sa máš?"
	session.AddMessage(MessageRoleUser, "Používateľ", userContent, 1500)

	if len(session.Messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(session.Messages))
	}

	if session.Messages[0].Role != MessageRoleUser {
		t.Errorf("Expected user role, got %s", session.Messages[0].Role)
	}

	if session.Messages[0].Author != "Používateľ" {
		t.Errorf("Expected author Používateľ, got %s", session.Messages[0].Author)
	}

	if session.Messages[0].Content != userContent {
		t.Errorf("Expected content %s, got %s", userContent, session.Messages[0].Content)
	}

	if session.LastMessageAt == nil {
		t.Error("Expected LastMessageAt to be set")
	}

	session.AddMessage(MessageRoleAssistant, "Elena", "Mám sa dobre, ďakujem!", 2000)

	if len(session.Messages) != 2 {
		t.Errorf("Expected 2 messages, got %d", len(session.Messages))
	}

	if session.Messages[1].Role != MessageRoleAssistant {
		t.Errorf("Expected assistant role, got %s", session.Messages[1].Role)
	}
}

func TestRecentHistory(t *testing.T) {
	session := NewSession("Elena", "sk")
	for _, content := range []string{"a", "b", "c", "d"} {
		session.AddMessage(MessageRoleUser, "u", content, 0)
	}

	recent := session.RecentHistory(2)
	if len(recent) != 2 || recent[0].Content != "c" || recent[1].Content != "d" {
		t.Errorf("Expected [c d], got %+v", recent)
	}

	if all := session.RecentHistory(0); len(all) != 4 {
		t.Errorf("Expected full history for limit 0, got %d", len(all))
	}

	if all := session.RecentHistory(10); len(all) != 4 {
		t.Errorf("Expected full history for large limit, got %d", len(all))
	}
}

func TestSessionTerminate(t *testing.T) {
	session := NewSession("Elena", "sk")
	if !session.IsActive() {
		t.Error("Session should be active initially")
	}

	session.Terminate()
	if session.IsActive() {
		t.Error("Session should not be active after Terminate")
	}
}

func TestSessionValidation(t *testing.T) {
	session := NewSession("Elena", "sk")
	if err := session.Validate(); err != nil {
		t.Errorf("Valid session should not have validation errors, got: %v", err)
	}

	session.Assistant = ""
	if err := session.Validate(); err == nil {
		t.Error("Session with empty assistant should have validation error")
	}

	session.Assistant = "Elena"
	session.Status = SessionStatus("invalid")
	if err := session.Validate(); err == nil {
		t.Error("Session with invalid status should have validation error")
	}
}
