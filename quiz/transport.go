// Package quiz implements per-chat quiz game sessions: a refcounted
// session registry, the per-session worker state machine, and the
// crash-recovery snapshot store.
package quiz

// MessageOptions control how an outbound message is delivered.
type MessageOptions struct {
	// Quiet suppresses the notification sound.
	Quiet bool
	// ReplyTo threads the message under an earlier one; 0 for none.
	ReplyTo int
	// HTML enables HTML parse mode.
	HTML bool
}

// Transport delivers outbound messages to a chat. Implementations must
// be safe for concurrent use across sessions.
type Transport interface {
	SendMessage(chatID int64, text string, opts MessageOptions) error
	// SendPhoto posts an image by URL and returns the sent message id.
	SendPhoto(chatID int64, url, caption string, replyTo int) (int, error)
}

// Renderer turns question text into a displayable image URL.
type Renderer interface {
	Render(question string) (string, error)
}
