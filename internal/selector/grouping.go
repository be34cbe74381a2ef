package selector

import "github.com/ryn-shv/clawdbot-smart-context-sub000/pkg/models"

// group is a contiguous run of original message indices that must be kept
// or dropped together: an assistant message emitting tool calls, the
// resulting tool-result messages, and any trailing assistant message that
// emits no new tool use of its own (folded in as the group's natural
// continuation).
type group struct {
	indices []int
}

// groupToolChains folds adjacent messages with matching tool-use/tool-
// result ids into atomic groups. A group is complete once every pending
// tool-use id has a matching result; a following assistant message with no
// new tool calls is pulled into the still-open group instead of starting a
// new one.
func groupToolChains(messages []models.Message) []group {
	var groups []group
	var current *group
	pending := map[string]bool{}

	closeCurrent := func() {
		if current != nil {
			groups = append(groups, *current)
			current = nil
		}
		pending = map[string]bool{}
	}

	for i, m := range messages {
		hasNewCalls := len(m.ToolCalls) > 0
		hasResults := len(m.ToolResults) > 0
		continuesGroup := current != nil && len(pending) > 0 && !hasNewCalls

		if !hasNewCalls && !hasResults && !continuesGroup {
			closeCurrent()
			groups = append(groups, group{indices: []int{i}})
			continue
		}

		if current == nil {
			current = &group{}
		}
		current.indices = append(current.indices, i)

		for _, tc := range m.ToolCalls {
			pending[tc.ID] = true
		}
		for _, tr := range m.ToolResults {
			delete(pending, tr.ToolCallID)
		}

		if len(pending) == 0 {
			closeCurrent()
		}
	}
	closeCurrent()
	return groups
}

// groupFor returns the group containing messageIndex, or nil if messages
// weren't grouped (tool-chain grouping disabled).
func groupFor(groups []group, messageIndex int) *group {
	for i := range groups {
		for _, idx := range groups[i].indices {
			if idx == messageIndex {
				return &groups[i]
			}
		}
	}
	return nil
}

// expandToGroups takes a set of kept message indices and, when groups is
// non-nil, expands each kept index to its full group's indices, returning
// a deduplicated, sorted set.
func expandToGroups(kept map[int]bool, groups []group) map[int]bool {
	if groups == nil {
		return kept
	}
	out := make(map[int]bool, len(kept))
	for idx := range kept {
		if g := groupFor(groups, idx); g != nil {
			for _, gi := range g.indices {
				out[gi] = true
			}
			continue
		}
		out[idx] = true
	}
	return out
}
