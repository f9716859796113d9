package autonomous

import "github.com/nextlevelbuilder/agentdaemon/internal/providers"

// TrimHistory trims messages to at most maxMessages, keeping the most
// recent; messages already within the limit are returned unchanged. When it
// trims, assistant turns at the start of the kept tail are dropped so the
// tail does not open on an assistant response. When preserveFirst is true the very first message
// (the original task) is always kept and the budget is filled from the
// tail; the autonomous loop uses this to keep the task prompt alive across
// many iterations, while the dispatcher's plain conversation-history
// update passes preserveFirst=false.
func TrimHistory(messages []providers.Message, maxMessages int, preserveFirst bool) []providers.Message {
	if len(messages) <= maxMessages {
		return messages
	}

	if preserveFirst && maxMessages >= 2 && len(messages) > 0 {
		first := messages[0]
		tail := messages[len(messages)-(maxMessages-1):]
		tail = stripLeadingAssistant(tail)
		return append([]providers.Message{first}, tail...)
	}

	trimmed := messages[len(messages)-maxMessages:]
	return stripLeadingAssistant(trimmed)
}

func stripLeadingAssistant(messages []providers.Message) []providers.Message {
	for len(messages) > 0 && messages[0].Role == "assistant" {
		messages = messages[1:]
	}
	return messages
}
