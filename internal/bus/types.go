// Package bus defines the event carried from a trigger driver to the
// execution dispatcher, and the shared text-chunking helper every driver
// uses before handing a reply back to its origin channel.
package bus

import (
	"strings"
	"time"
)

// Trigger type constants. Scheduled is synthesized by the schedule queue,
// never configured directly on a role.
const (
	TriggerCron      = "cron"
	TriggerFileWatch = "file_watch"
	TriggerWebhook   = "webhook"
	TriggerTelegram  = "telegram"
	TriggerDiscord   = "discord"
	TriggerScheduled = "scheduled"
)

// Conversational trigger types get exactly one reply per user turn and
// never run the autonomous loop, regardless of role autonomy config.
var Conversational = map[string]bool{
	TriggerTelegram: true,
	TriggerDiscord:  true,
}

// ReplyFunc delivers text back to the channel a TriggerEvent originated
// from. Implementations must be safe to call from any goroutine.
type ReplyFunc func(text string) error

// TriggerEvent is one external stimulus handed from a driver to the
// dispatcher. It is immutable after dispatch; only ReplyFn is consumed.
type TriggerEvent struct {
	TriggerType string
	Prompt      string
	Timestamp   time.Time
	Metadata    map[string]string
	ReplyFn     ReplyFunc
}

// ConversationKey derives the stable conversation identifier for this
// event, or "" if the event does not belong to a stateful conversational
// stream.
func (e TriggerEvent) ConversationKey() string {
	switch e.TriggerType {
	case TriggerTelegram:
		if chatID := e.Metadata["chat_id"]; chatID != "" {
			return "telegram:" + chatID
		}
	case TriggerDiscord:
		if channelID := e.Metadata["channel_id"]; channelID != "" {
			return "discord:" + channelID
		}
	}
	return ""
}

// Handler is the single callback every trigger driver invokes, synchronously,
// from its own worker goroutine, when it has an event to deliver. The
// callback owns its own concurrency.
type Handler func(TriggerEvent)

// Chunk splits text into pieces no longer than limit, preferring to break
// at the last newline before the limit and falling back to a hard cut.
// Every chunk after the first has its leading newlines stripped.
func Chunk(text string, limit int) []string {
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > limit {
		cut := strings.LastIndexByte(remaining[:limit], '\n')
		if cut <= 0 {
			cut = limit
		}
		chunks = append(chunks, remaining[:cut])
		remaining = strings.TrimLeft(remaining[cut:], "\n")
	}
	chunks = append(chunks, remaining)
	return chunks
}
