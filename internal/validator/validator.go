// Package validator checks and sanitizes tool-use/tool-result structure in
// a message transcript before it reaches the scorer. Grounded on the
// reference agent runtime's transcript-repair pass, adapted from a
// pending-tool-call-id sweep into an explicit validate/sanitize pair.
package validator

import (
	"errors"
	"regexp"

	"github.com/ryn-shv/clawdbot-smart-context-sub000/pkg/models"
)

// ErrInvalidToolUseID is returned in strict mode when a tool-use block's id
// fails the allowed character set.
var ErrInvalidToolUseID = errors.New("validator: invalid tool-use id")

// ErrInvalidToolResultBlock is returned in strict mode when a tool-result
// block has no matching tool-use id or a nil content payload.
var ErrInvalidToolResultBlock = errors.New("validator: invalid tool-result block")

var toolUseIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Validate checks every message in strict mode: the first structural
// violation is returned as an error and no messages are modified.
func Validate(messages []models.Message) error {
	for i := range messages {
		if err := validateMessage(&messages[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateMessage(msg *models.Message) error {
	for _, tc := range msg.ToolCalls {
		if tc.Name == "" || !toolUseIDPattern.MatchString(tc.ID) {
			return ErrInvalidToolUseID
		}
	}
	pending := pendingIDs(msg.ToolCalls)
	for _, tr := range msg.ToolResults {
		if tr.ToolCallID == "" || tr.Content == "" {
			return ErrInvalidToolResultBlock
		}
		if len(pending) > 0 {
			if _, ok := pending[tr.ToolCallID]; !ok {
				return ErrInvalidToolResultBlock
			}
		}
	}
	return nil
}

// Sanitize returns a filtered copy of messages: invalid tool-use blocks and
// tool-result blocks whose id has no matching tool-use in the same message
// are dropped. Messages that end up with no content, tool calls, or tool
// results are dropped entirely. Well-formed messages are returned
// unmodified (same field values, fresh slices).
func Sanitize(messages []models.Message) []models.Message {
	out := make([]models.Message, 0, len(messages))
	for _, msg := range messages {
		clone := *msg.Clone()

		validCalls := make([]models.ToolCall, 0, len(clone.ToolCalls))
		for _, tc := range clone.ToolCalls {
			if tc.Name != "" && toolUseIDPattern.MatchString(tc.ID) {
				validCalls = append(validCalls, tc)
			}
		}
		clone.ToolCalls = validCalls

		pending := pendingIDs(validCalls)
		validResults := make([]models.ToolResult, 0, len(clone.ToolResults))
		for _, tr := range clone.ToolResults {
			if tr.ToolCallID == "" || tr.Content == "" {
				continue
			}
			if len(pending) > 0 {
				if _, ok := pending[tr.ToolCallID]; !ok {
					continue
				}
			}
			validResults = append(validResults, tr)
		}
		clone.ToolResults = validResults

		if clone.IsEmpty() {
			continue
		}
		out = append(out, clone)
	}
	return out
}

func pendingIDs(calls []models.ToolCall) map[string]struct{} {
	if len(calls) == 0 {
		return nil
	}
	ids := make(map[string]struct{}, len(calls))
	for _, tc := range calls {
		ids[tc.ID] = struct{}{}
	}
	return ids
}
