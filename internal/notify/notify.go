// Package notify defines the outbound messaging port.
//
// The engine produces announcements and trade prompts; the messaging layer
// (out of scope here) renders and delivers them. Delivery failures are never
// fatal to the operation that produced them.
package notify

import (
	"context"
	"log"
)

// PromptTradeInput carries everything the messaging layer needs to present
// an actionable trade offer to the responder.
type PromptTradeInput struct {
	ResponderID  string
	ProposerID   string
	ProposerCard string
	// ResponderCard is the card the proposer asks for in return.
	ResponderCard string
}

// Notifier delivers engine output to users.
type Notifier interface {
	Notify(ctx context.Context, userID, text string) error
	PromptTrade(ctx context.Context, input PromptTradeInput) error
}

// LogNotifier writes notifications to the process log. It stands in when no
// messaging layer is wired, and in tests.
type LogNotifier struct{}

// Notify logs the outbound message.
func (LogNotifier) Notify(ctx context.Context, userID, text string) error {
	log.Printf("notify %s: %s", userID, text)
	return nil
}

// PromptTrade logs the outbound trade prompt.
func (LogNotifier) PromptTrade(ctx context.Context, input PromptTradeInput) error {
	log.Printf("prompt %s: %s offers %s for %s", input.ResponderID, input.ProposerID, input.ProposerCard, input.ResponderCard)
	return nil
}
