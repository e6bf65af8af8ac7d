package conversation

import (
	"sync"
	"time"

	"github.com/elliotchance/pie/v2"
	"github.com/google/uuid"
)

// Transcript is the append-only message list of one conversation.
// Consecutive connection notices of the same category are collapsed:
// flapping connectivity must not fill the chat with identical lines.
type Transcript struct {
	mu       sync.Mutex
	messages []Message
}

func NewTranscript() *Transcript {
	return &Transcript{}
}

func (t *Transcript) Append(role Role, kind MessageKind, content string) (Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if isConnectionKind(kind) && len(t.messages) > 0 {
		if t.messages[len(t.messages)-1].Kind == kind {
			return Message{}, false
		}
	}

	msg := Message{
		ID:      uuid.NewString(),
		Role:    role,
		Kind:    kind,
		Content: content,
		At:      time.Now(),
	}

	t.messages = append(t.messages, msg)

	return msg, true
}

// RemoveRetryNotices drops every pending "retrying..." line so the next
// notice replaces rather than stacks.
func (t *Transcript) RemoveRetryNotices() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.messages = pie.Filter(t.messages, func(msg Message) bool {
		return msg.Kind != KindRetryNotice
	})
}

func (t *Transcript) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := make([]Message, len(t.messages))
	copy(result, t.messages)

	return result
}

func (t *Transcript) Last() (Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.messages) == 0 {
		return Message{}, false
	}

	return t.messages[len(t.messages)-1], true
}

func (t *Transcript) CountKind(kind MessageKind) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(pie.Filter(t.messages, func(msg Message) bool {
		return msg.Kind == kind
	}))
}

func isConnectionKind(kind MessageKind) bool {
	return kind == KindConnError || kind == KindConnRestored
}
