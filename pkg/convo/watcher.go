package convo

import (
	"context"
	"strings"
	"time"

	"github.com/tinyland-inc/convosplit/pkg/bus"
)

// Reason is why a conversation's watch phase resolved.
type Reason int

const (
	ReasonTimeout Reason = iota
	ReasonSignal
)

func (r Reason) String() string {
	if r == ReasonSignal {
		return "signal"
	}
	return "timeout"
}

const (
	// farewellKeyword starts the bot's termination message.
	farewellKeyword = "goodbye"
	// exitToken starts a command-interaction echo ending the conversation.
	exitToken = "/exit"
)

func isFarewell(content string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(content)), farewellKeyword)
}

// AwaitTermination blocks until the conversation ends. Every message that
// does not match the termination predicate re-arms the full inactivity
// timeout. The predicate matches the bot's own farewell message, or a
// command-interaction echo from the initiator invoking the exit command.
func AwaitTermination(
	ctx context.Context,
	msgs <-chan bus.Inbound,
	botID, initiatorID string,
	timeout time.Duration,
) (Reason, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ReasonTimeout, ctx.Err()
		case <-timer.C:
			return ReasonTimeout, nil
		case m, ok := <-msgs:
			if !ok {
				return ReasonTimeout, bus.ErrBusClosed
			}
			if m.FromBot && m.SenderID == botID && isFarewell(m.Content) {
				return ReasonSignal, nil
			}
			if m.Interaction && m.InvokerID == initiatorID && strings.HasPrefix(m.Content, exitToken) {
				return ReasonSignal, nil
			}
			timer.Reset(timeout)
		}
	}
}
