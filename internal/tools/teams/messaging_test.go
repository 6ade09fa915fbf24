package teams

import (
	"testing"
	"time"

	"github.com/jaakkos/opencode-teams/internal/domain"
)

type messagesResult struct {
	Messages []domain.Message `json:"messages"`
}

func TestSendMessageAndReadInbox(t *testing.T) {
	h := newTestHarness(t)
	mustCreateTeam(t, h)
	mustSpawn(t, h, "r1")

	result := callTool(t, h, "send_message", map[string]any{
		"teamName":  "demo",
		"type":      "message",
		"recipient": "r1",
		"content":   "check the tests",
		"summary":   "tests",
		"sender":    "r1", // server policy rewrites chat attribution to the lead
	})
	if result.IsError {
		t.Fatalf("send_message: %s", resultText(t, result))
	}

	read := callTool(t, h, "read_inbox", map[string]any{"teamName": "demo", "agentName": "r1"})
	var inboxMsgs messagesResult
	resultJSON(t, read, &inboxMsgs)
	// Spawn already queued the initial prompt as message one.
	if len(inboxMsgs.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(inboxMsgs.Messages))
	}
	msg := inboxMsgs.Messages[1]
	if msg.From != "lead" {
		t.Errorf("chat sender = %q, want forced to lead", msg.From)
	}
	if msg.Content != "check the tests" || msg.Summary != "tests" {
		t.Errorf("message = %+v", msg)
	}
	if msg.ReadAt == 0 {
		t.Error("read_inbox default must mark as read")
	}

	// Marked state persisted: a snapshot read shows no unread left.
	again := callTool(t, h, "read_inbox", map[string]any{"teamName": "demo", "agentName": "r1", "markAsRead": false})
	var snapshot messagesResult
	resultJSON(t, again, &snapshot)
	for _, m := range snapshot.Messages {
		if m.ReadAt == 0 {
			t.Errorf("message %s still unread", m.ID)
		}
	}
}

func TestSendMessageUnknownRecipient(t *testing.T) {
	h := newTestHarness(t)
	mustCreateTeam(t, h)

	result := callTool(t, h, "send_message", map[string]any{
		"teamName":  "demo",
		"type":      "message",
		"recipient": "ghost",
		"content":   "hello",
		"sender":    "lead",
	})
	wantErrorKind(t, result, "ErrNotFound")
}

func TestSendMessageInvalidType(t *testing.T) {
	h := newTestHarness(t)
	mustCreateTeam(t, h)

	result := callTool(t, h, "send_message", map[string]any{
		"teamName":  "demo",
		"type":      "telegram",
		"recipient": "lead",
		"content":   "hello",
		"sender":    "lead",
	})
	wantErrorKind(t, result, "ErrInvalidArg")
}

func TestBroadcastReachesEveryoneButSender(t *testing.T) {
	h := newTestHarness(t)
	mustCreateTeam(t, h)
	mustSpawn(t, h, "r1")
	mustSpawn(t, h, "r2")

	result := callTool(t, h, "send_message", map[string]any{
		"teamName":  "demo",
		"type":      "broadcast",
		"recipient": "*",
		"content":   "stand up",
		"sender":    "lead",
	})
	if result.IsError {
		t.Fatalf("broadcast: %s", resultText(t, result))
	}
	var sent struct {
		Delivered int `json:"delivered"`
	}
	resultJSON(t, result, &sent)
	if sent.Delivered != 2 {
		t.Errorf("delivered = %d, want 2 (everyone but the sender)", sent.Delivered)
	}

	for _, name := range []string{"r1", "r2"} {
		read := callTool(t, h, "read_inbox", map[string]any{"teamName": "demo", "agentName": name, "markAsRead": false})
		var msgs messagesResult
		resultJSON(t, read, &msgs)
		found := false
		for _, m := range msgs.Messages {
			if m.Type == domain.MessageBroadcast && m.Content == "stand up" {
				found = true
			}
		}
		if !found {
			t.Errorf("%s did not receive the broadcast", name)
		}
	}
}

func TestShutdownRequestKeepsSenderAttribution(t *testing.T) {
	h := newTestHarness(t)
	mustCreateTeam(t, h)
	mustSpawn(t, h, "r1")

	result := callTool(t, h, "send_message", map[string]any{
		"teamName":  "demo",
		"type":      "shutdown_request",
		"recipient": "lead",
		"content":   "please wrap up",
		"sender":    "r1", // only plain chat is rewritten to the lead
	})
	if result.IsError {
		t.Fatalf("send_message: %s", resultText(t, result))
	}
	read := callTool(t, h, "read_inbox", map[string]any{"teamName": "demo", "agentName": "lead", "markAsRead": false})
	var msgs messagesResult
	resultJSON(t, read, &msgs)
	last := msgs.Messages[len(msgs.Messages)-1]
	if last.Type != domain.MessageShutdownRequest {
		t.Errorf("type = %s", last.Type)
	}
	if last.From != "r1" {
		t.Errorf("sender = %q, want r1 kept", last.From)
	}
}

func TestPollInboxLongPoll(t *testing.T) {
	h := newTestHarness(t)
	mustCreateTeam(t, h)
	mustSpawn(t, h, "r1")
	// Drain the spawn prompt so the poll genuinely waits.
	callTool(t, h, "read_inbox", map[string]any{"teamName": "demo", "agentName": "r1"})

	type pollResult struct {
		msgs    messagesResult
		elapsed time.Duration
	}
	done := make(chan pollResult, 1)
	go func() {
		start := time.Now()
		result := callTool(t, h, "poll_inbox", map[string]any{
			"teamName":  "demo",
			"agentName": "r1",
			"timeoutMs": 5000,
		})
		var msgs messagesResult
		resultJSON(t, result, &msgs)
		done <- pollResult{msgs, time.Since(start)}
	}()

	time.Sleep(250 * time.Millisecond)
	send := callTool(t, h, "send_message", map[string]any{
		"teamName":  "demo",
		"type":      "message",
		"recipient": "r1",
		"content":   "ping",
		"sender":    "lead",
	})
	if send.IsError {
		t.Fatalf("send during poll: %s", resultText(t, send))
	}

	res := <-done
	if len(res.msgs.Messages) != 1 || res.msgs.Messages[0].Content != "ping" {
		t.Fatalf("poll result = %+v", res.msgs.Messages)
	}
	if res.msgs.Messages[0].ReadAt == 0 {
		t.Error("polled message has no readAt")
	}
	if res.elapsed > 2*time.Second {
		t.Errorf("poll took %v, want well under the 5s limit", res.elapsed)
	}
}

func TestPollInboxTimeout(t *testing.T) {
	h := newTestHarness(t)
	mustCreateTeam(t, h)
	mustSpawn(t, h, "r1")
	callTool(t, h, "read_inbox", map[string]any{"teamName": "demo", "agentName": "r1"})

	result := callTool(t, h, "poll_inbox", map[string]any{
		"teamName":  "demo",
		"agentName": "r1",
		"timeoutMs": 100,
	})
	var msgs messagesResult
	resultJSON(t, result, &msgs)
	if len(msgs.Messages) != 0 {
		t.Errorf("timeout poll = %+v, want empty", msgs.Messages)
	}
}
