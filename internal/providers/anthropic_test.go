package providers

import "testing"

func TestExtractSystem(t *testing.T) {
	messages := []Message{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "hi"},
	}
	if got := extractSystem(messages); got != "be helpful" {
		t.Errorf("extractSystem() = %q, want %q", got, "be helpful")
	}
	if got := extractSystem(messages[1:]); got != "" {
		t.Errorf("extractSystem() with no system message = %q, want empty", got)
	}
}

func TestToAnthropicMessagesSkipsSystemRole(t *testing.T) {
	messages := []Message{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}
	out := toAnthropicMessages(messages)
	if len(out) != 2 {
		t.Fatalf("toAnthropicMessages() produced %d messages, want 2 (system excluded)", len(out))
	}
}

func TestToAnthropicSchemaPassesPropertiesThrough(t *testing.T) {
	params := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"prompt": map[string]interface{}{"type": "string"},
		},
	}
	schema := toAnthropicSchema(params)
	if schema.Properties == nil {
		t.Error("toAnthropicSchema() dropped properties")
	}
}
