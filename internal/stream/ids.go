package stream

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var completionCounter atomic.Uint64

// NewCompletionID generates an OpenAI-dialect "chatcmpl-..." response id:
// a unix-nano timestamp plus a process-local monotone counter, keeping the
// format but not the exact generator the upstream API uses internally.
func NewCompletionID() string {
	n := completionCounter.Add(1)
	return fmt.Sprintf("chatcmpl-%x%x", time.Now().UnixNano(), n)
}

// NewMessageID generates an Anthropic-dialect "msg_..." response id.
func NewMessageID() string {
	return "msg_" + uuid.NewString()
}
