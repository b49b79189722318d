package store

import (
	"context"
	"testing"
)

func TestMemoryStoreCreateAssignsIDs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.Create(ctx, &Message{SenderUID: 1, ReceiverKind: ReceiverUser, ReceiverID: 2, Content: "a"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	second, err := s.Create(ctx, &Message{SenderUID: 2, ReceiverKind: ReceiverUser, ReceiverID: 1, Content: "b"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if first == 0 || second == 0 || first == second {
		t.Errorf("ids not unique and non-zero: %d, %d", first, second)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestMemoryStoreByRecipient(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	seed := []Message{
		{SenderUID: 1, ReceiverKind: ReceiverUser, ReceiverID: 2, Content: "first"},
		{SenderUID: 3, ReceiverKind: ReceiverUser, ReceiverID: 2, Content: "second"},
		{SenderUID: 1, ReceiverKind: ReceiverGroup, ReceiverID: 2, Content: "group, same id"},
		{SenderUID: 1, ReceiverKind: ReceiverUser, ReceiverID: 9, Content: "other user"},
	}
	for i := range seed {
		if _, err := s.Create(ctx, &seed[i]); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}

	msgs, err := s.ByRecipient(ctx, 2, ReceiverUser)
	if err != nil {
		t.Fatalf("ByRecipient() error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("ByRecipient() returned %d messages, want 2", len(msgs))
	}
	if msgs[0].Content != "first" || msgs[1].Content != "second" {
		t.Errorf("messages out of order: %q, %q", msgs[0].Content, msgs[1].Content)
	}
}
