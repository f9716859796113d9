package autonomous

import (
	"fmt"
	"testing"

	"github.com/nextlevelbuilder/agentdaemon/internal/providers"
)

func makeHistory(n int) []providers.Message {
	out := make([]providers.Message, n)
	for i := range out {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		out[i] = providers.Message{Role: role, Content: fmt.Sprintf("msg-%d", i)}
	}
	return out
}

func TestTrimHistoryUnderLimitIsUntouched(t *testing.T) {
	messages := makeHistory(5)
	got := TrimHistory(messages, 10, true)
	if len(got) != 5 {
		t.Errorf("len = %d, want 5 (no trim needed)", len(got))
	}
}

func TestTrimHistoryPreservesFirstMessage(t *testing.T) {
	messages := makeHistory(20)
	got := TrimHistory(messages, 6, true)

	if len(got) > 6 {
		t.Fatalf("len = %d, want <= 6", len(got))
	}
	if got[0].Content != "msg-0" {
		t.Errorf("first message = %q, want the original task msg-0", got[0].Content)
	}
	last := got[len(got)-1]
	if last.Content != "msg-19" {
		t.Errorf("last message = %q, want the most recent msg-19", last.Content)
	}
}

func TestTrimHistoryWithoutPreserveKeepsTail(t *testing.T) {
	messages := makeHistory(10)
	got := TrimHistory(messages, 4, false)

	if len(got) > 4 {
		t.Fatalf("len = %d, want <= 4", len(got))
	}
	if got[0].Role == "assistant" {
		t.Errorf("trimmed history starts with an assistant turn: %+v", got[0])
	}
	if got[len(got)-1].Content != "msg-9" {
		t.Errorf("last message = %q, want msg-9", got[len(got)-1].Content)
	}
}
