package store

import "context"

// MessageStore is durable, append-only persistence for chat messages. Create
// must complete successfully before a message may be forwarded to a recipient
// mailbox; callers treat every method as may-block, may-fail, with no
// implicit retry.
type MessageStore interface {
	// Create persists the message and returns the assigned id.
	Create(ctx context.Context, msg *Message) (uint64, error)
	// ByRecipient returns all messages addressed to the given recipient,
	// oldest first. Used for history reads outside the delivery hot path.
	ByRecipient(ctx context.Context, id uint64, kind ReceiverKind) ([]Message, error)
}
