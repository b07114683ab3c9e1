package dispatch

import (
	"log"

	"github.com/pysugar/vertex-nexus/internal/proxy/mappers"
)

// keepTailMessages is how many trailing messages survive truncation verbatim.
const keepTailMessages = 4

// estimateTokens is the chars/4 heuristic; close enough for a safety margin.
func estimateTokens(messages []mappers.ChatMessage) int {
	total := 0
	for _, msg := range messages {
		total += len(msg.Content.PlainText()) / 4
		for _, call := range msg.ToolCalls {
			total += len(call.Function.Arguments) / 4
		}
	}
	return total
}

// TruncateMessages drops the oldest non-system messages until the estimated
// prompt plus the reserved output budget fits the context window. System
// messages and the last four messages are always kept; order never changes.
func TruncateMessages(messages []mappers.ChatMessage, contextWindow, reserveOutput int) []mappers.ChatMessage {
	budget := contextWindow - reserveOutput
	if budget <= 0 || estimateTokens(messages) <= budget {
		return messages
	}

	protected := len(messages) - keepTailMessages
	if protected < 0 {
		protected = 0
	}

	kept := append([]mappers.ChatMessage(nil), messages...)
	dropped := 0
	for i := 0; i < protected; i++ {
		if estimateTokens(kept) <= budget {
			break
		}
		// Index shifts as we drop: the oldest droppable message is always
		// at position i-dropped.
		idx := i - dropped
		if kept[idx].Role == "system" {
			continue
		}
		kept = append(kept[:idx], kept[idx+1:]...)
		dropped++
	}

	if dropped > 0 {
		log.Printf("✂️ Truncated %d older message(s) to fit context window (%d tokens reserved for output)", dropped, reserveOutput)
	}
	return kept
}
