package validator

import (
	"encoding/json"
	"testing"

	"github.com/ryn-shv/clawdbot-smart-context-sub000/pkg/models"
)

func TestValidate_WellFormedPasses(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleUser, Content: "hello"},
		{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{
				{ID: "tc-1", Name: "search", Input: json.RawMessage(`{}`)},
			},
		},
		{
			Role: models.RoleTool,
			ToolResults: []models.ToolResult{
				{ToolCallID: "tc-1", Content: "result"},
			},
		},
	}
	if err := Validate(msgs); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
}

func TestValidate_InvalidToolUseID(t *testing.T) {
	msgs := []models.Message{
		{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{
				{ID: "bad id!", Name: "search"},
			},
		},
	}
	if err := Validate(msgs); err != ErrInvalidToolUseID {
		t.Fatalf("Validate() error = %v, want ErrInvalidToolUseID", err)
	}
}

func TestValidate_InvalidToolResultBlock(t *testing.T) {
	msgs := []models.Message{
		{
			Role: models.RoleTool,
			ToolResults: []models.ToolResult{
				{ToolCallID: "", Content: "result"},
			},
		},
	}
	if err := Validate(msgs); err != ErrInvalidToolResultBlock {
		t.Fatalf("Validate() error = %v, want ErrInvalidToolResultBlock", err)
	}
}

func TestSanitize_DropsInvalidBlocksKeepsMessage(t *testing.T) {
	msgs := []models.Message{
		{
			ID:   "m1",
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{
				{ID: "tc-1", Name: "search"},
				{ID: "bad id", Name: "search"},
			},
		},
	}
	out := Sanitize(msgs)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if len(out[0].ToolCalls) != 1 {
		t.Errorf("ToolCalls len = %d, want 1", len(out[0].ToolCalls))
	}
}

func TestSanitize_DropsEmptyMessage(t *testing.T) {
	msgs := []models.Message{
		{
			ID:   "m1",
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{
				{ID: "bad id", Name: "search"},
			},
		},
		{ID: "m2", Role: models.RoleUser, Content: "hello"},
	}
	out := Sanitize(msgs)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if out[0].ID != "m2" {
		t.Errorf("out[0].ID = %q, want m2", out[0].ID)
	}
}

func TestSanitize_DropsOrphanedToolResult(t *testing.T) {
	msgs := []models.Message{
		{
			ID:   "m1",
			Role: models.RoleTool,
			ToolResults: []models.ToolResult{
				{ToolCallID: "nonexistent", Content: "result"},
			},
		},
	}
	out := Sanitize(msgs)
	if len(out) != 0 {
		t.Fatalf("len(out) = %d, want 0", len(out))
	}
}

func TestSanitize_NeverAltersWellFormedMessages(t *testing.T) {
	msgs := []models.Message{
		{ID: "m1", Role: models.RoleUser, Content: "hello world"},
		{ID: "m2", Role: models.RoleSystem, Content: "you are a helpful assistant"},
	}
	out := Sanitize(msgs)
	if len(out) != len(msgs) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(msgs))
	}
	for i := range msgs {
		if out[i].Content != msgs[i].Content || out[i].ID != msgs[i].ID {
			t.Errorf("message %d altered: got %+v, want %+v", i, out[i], msgs[i])
		}
	}
}
