package engine

import "github.com/StarkFactory/arc-reactor-sub012/pkg/arc"

// EstimateChars is the default budget function: a cheap proxy for token
// count, mirroring the teacher's own estimateContextChars approach rather
// than a real tokenizer.
func EstimateChars(messages []arc.Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content)
		for _, tc := range m.ToolCalls {
			total += len(tc.Arguments)
		}
	}
	return total
}

// TrimHistory bounds history to budget chars while preserving: the last
// UserMessage is always retained; an AssistantMessage-with-tool-calls and
// its matching ToolMessages are removed or kept together, never split;
// messages are dropped oldest-non-essential-first. budget <= 0 disables
// trimming.
func TrimHistory(history []arc.Message, budget int, estimate func([]arc.Message) int) []arc.Message {
	if budget <= 0 {
		return history
	}
	if estimate == nil {
		estimate = EstimateChars
	}

	units := groupIntoUnits(history)
	lastUserUnit := lastUnitContainingLastUser(units)

	kept := make([]bool, len(units))
	for i := range kept {
		kept[i] = true
	}

	// Drop oldest-non-essential-first until under budget (strict
	// inequality: stop as soon as total < budget).
	for i := 0; i < len(units); i++ {
		if i == lastUserUnit {
			continue
		}
		if flatten(units, kept) == nil {
			break
		}
		if estimate(flatten(units, kept)) < budget {
			break
		}
		kept[i] = false
	}

	return flatten(units, kept)
}

// unit is one or more messages that must be trimmed atomically: either a
// single ordinary message, or an AssistantMessage-with-tool-calls plus its
// matching ToolMessages.
type unit struct {
	messages []arc.Message
}

func groupIntoUnits(history []arc.Message) []unit {
	var units []unit
	i := 0
	for i < len(history) {
		m := history[i]
		if m.HasToolCalls() {
			group := []arc.Message{m}
			ids := make(map[string]bool, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				ids[tc.ID] = true
			}
			j := i + 1
			for j < len(history) && history[j].Role == arc.RoleTool && ids[history[j].ToolCallID] {
				group = append(group, history[j])
				delete(ids, history[j].ToolCallID)
				j++
			}
			units = append(units, unit{messages: group})
			i = j
			continue
		}
		units = append(units, unit{messages: []arc.Message{m}})
		i++
	}
	return units
}

func lastUnitContainingLastUser(units []unit) int {
	for i := len(units) - 1; i >= 0; i-- {
		for _, m := range units[i].messages {
			if m.Role == arc.RoleUser {
				return i
			}
		}
	}
	return -1
}

func flatten(units []unit, kept []bool) []arc.Message {
	var out []arc.Message
	for i, u := range units {
		if !kept[i] {
			continue
		}
		out = append(out, u.messages...)
	}
	return out
}
