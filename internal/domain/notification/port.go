package notification

import "context"

// Message is a single encoded publish to a channel target.
type Message struct {
	Channel    Channel
	Key        string
	Recipient  string
	Subject    string
	Body       string
	Payload    []byte
	Attributes map[string]string
}

type Publisher interface {
	Publish(ctx context.Context, m Message) error
}

// DeadLetters receives inbound messages that could not be parsed.
type DeadLetters interface {
	DeadLetter(ctx context.Context, key, value []byte, reason error) error
}
