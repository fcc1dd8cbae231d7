package stores

import (
	"testing"
)

func TestSanitizeTurns_EmptyHistory(t *testing.T) {
	turns := []Turn{}
	result := SanitizeTurns(turns)
	if len(result) != 0 {
		t.Errorf("Expected empty result, got %d turns", len(result))
	}
}

func TestSanitizeTurns_ValidHistory(t *testing.T) {
	turns := []Turn{
		{Sequence: 1, UserPrompt: "Hi", BotResponse: "Hello"},
		{Sequence: 2, UserPrompt: "How are you?", BotResponse: "Fine"},
		{Sequence: 3, UserPrompt: "Bye", BotResponse: "Goodbye"},
	}
	result := SanitizeTurns(turns)
	if len(result) != 3 {
		t.Errorf("Expected 3 turns, got %d", len(result))
	}
}

func TestSanitizeTurns_MissingBotResponse(t *testing.T) {
	// Simulates an interrupted write - prompt saved but no response
	turns := []Turn{
		{Sequence: 1, UserPrompt: "Hi", BotResponse: "Hello"},
		{Sequence: 2, UserPrompt: "How are you?", BotResponse: ""},
		{Sequence: 3, UserPrompt: "Bye", BotResponse: "Goodbye"},
	}
	result := SanitizeTurns(turns)
	if len(result) != 2 {
		t.Errorf("Expected 2 turns (skipping incomplete turn), got %d", len(result))
	}
	if result[1].Sequence != 3 {
		t.Errorf("Expected surviving turns to keep order, got seq %d last", result[1].Sequence)
	}
}

func TestSanitizeTurns_MissingUserPrompt(t *testing.T) {
	turns := []Turn{
		{Sequence: 1, UserPrompt: "", BotResponse: "Hello"},
		{Sequence: 2, UserPrompt: "How are you?", BotResponse: "Fine"},
	}
	result := SanitizeTurns(turns)
	if len(result) != 1 {
		t.Errorf("Expected 1 turn, got %d", len(result))
	}
	if result[0].UserPrompt != "How are you?" {
		t.Errorf("Expected the valid turn to survive, got %q", result[0].UserPrompt)
	}
}

func TestSanitizeTurns_AllMalformed(t *testing.T) {
	turns := []Turn{
		{Sequence: 1, UserPrompt: "", BotResponse: ""},
		{Sequence: 2, UserPrompt: "orphan", BotResponse: ""},
	}
	result := SanitizeTurns(turns)
	if len(result) != 0 {
		t.Errorf("Expected empty result for fully malformed history, got %d turns", len(result))
	}
}

func TestDetectMalformedTurns_Clean(t *testing.T) {
	turns := []Turn{
		{Sequence: 1, UserPrompt: "Hi", BotResponse: "Hello"},
	}
	issues := DetectMalformedTurns(turns)
	if len(issues) != 0 {
		t.Errorf("Expected no issues for clean history, got: %v", issues)
	}
}

func TestDetectMalformedTurns_Mixed(t *testing.T) {
	turns := []Turn{
		{Sequence: 1, UserPrompt: "Hi", BotResponse: "Hello"},
		{Sequence: 2, UserPrompt: "", BotResponse: "stray"},
		{Sequence: 3, UserPrompt: "lost", BotResponse: ""},
	}
	issues := DetectMalformedTurns(turns)
	if len(issues) != 2 {
		t.Errorf("Expected 2 issues, got %d: %v", len(issues), issues)
	}
}
