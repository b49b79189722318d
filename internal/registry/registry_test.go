package registry

import (
	"errors"
	"testing"

	"github.com/qumn/echat/internal/store"
)

func TestRegisterAndLookup(t *testing.T) {
	reg := New()
	mb := NewMailbox(4)

	reg.Register(1, mb)

	got, ok := reg.Lookup(1)
	if !ok {
		t.Fatal("Lookup(1) found nothing after Register")
	}
	if got != mb {
		t.Error("Lookup(1) returned a different mailbox")
	}
	if _, ok := reg.Lookup(2); ok {
		t.Error("Lookup(2) found an entry that was never registered")
	}
	if reg.Count() != 1 {
		t.Errorf("Count() = %d, want 1", reg.Count())
	}
}

// TestRegisterReplacesPreviousMailbox verifies last-connect-wins: after
// re-registering, the first mailbox is unreachable for new deliveries.
func TestRegisterReplacesPreviousMailbox(t *testing.T) {
	reg := New()
	old := NewMailbox(4)
	replacement := NewMailbox(4)

	reg.Register(1, old)
	reg.Register(1, replacement)

	got, ok := reg.Lookup(1)
	if !ok || got != replacement {
		t.Fatal("Lookup(1) did not return the replacement mailbox")
	}

	if err := got.Put(store.Message{Content: "hi"}); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	select {
	case <-old.C():
		t.Error("replaced mailbox received a delivery")
	default:
	}
	if len(replacement.C()) != 1 {
		t.Error("replacement mailbox did not receive the delivery")
	}
}

// TestRemoveIsCompareAndDelete verifies that a replaced connection tearing
// down late cannot evict its successor's registry entry.
func TestRemoveIsCompareAndDelete(t *testing.T) {
	reg := New()
	old := NewMailbox(4)
	replacement := NewMailbox(4)

	reg.Register(1, old)
	reg.Register(1, replacement)

	// The old connection's teardown runs after the replacement registered.
	reg.Remove(1, old)

	if _, ok := reg.Lookup(1); !ok {
		t.Fatal("stale Remove evicted the successor's entry")
	}

	reg.Remove(1, replacement)
	if _, ok := reg.Lookup(1); ok {
		t.Fatal("Remove did not delete the matching entry")
	}

	// Removing again must be harmless.
	reg.Remove(1, replacement)
}

func TestMailboxOrderedDelivery(t *testing.T) {
	mb := NewMailbox(4)

	for _, content := range []string{"one", "two", "three"} {
		if err := mb.Put(store.Message{Content: content}); err != nil {
			t.Fatalf("Put(%q) error: %v", content, err)
		}
	}

	for _, want := range []string{"one", "two", "three"} {
		got := <-mb.C()
		if got.Content != want {
			t.Errorf("received %q, want %q", got.Content, want)
		}
	}
}

func TestMailboxFull(t *testing.T) {
	mb := NewMailbox(2)

	if err := mb.Put(store.Message{Content: "one"}); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if err := mb.Put(store.Message{Content: "two"}); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	if err := mb.Put(store.Message{Content: "overflow"}); !errors.Is(err, ErrMailboxFull) {
		t.Errorf("Put() on full mailbox = %v, want ErrMailboxFull", err)
	}

	// Draining frees capacity again.
	<-mb.C()
	if err := mb.Put(store.Message{Content: "three"}); err != nil {
		t.Errorf("Put() after drain error: %v", err)
	}
}

func TestMailboxClose(t *testing.T) {
	mb := NewMailbox(2)

	if err := mb.Put(store.Message{Content: "queued"}); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	mb.Close()
	mb.Close() // idempotent

	if err := mb.Put(store.Message{Content: "late"}); !errors.Is(err, ErrMailboxClosed) {
		t.Errorf("Put() after Close = %v, want ErrMailboxClosed", err)
	}

	// Messages enqueued before Close stay readable, then the channel ends.
	if got, ok := <-mb.C(); !ok || got.Content != "queued" {
		t.Errorf("drain after Close = (%q, %v), want (queued, true)", got.Content, ok)
	}
	if _, ok := <-mb.C(); ok {
		t.Error("consumer channel still open after Close and drain")
	}
}

func TestNewMailboxDefaultCapacity(t *testing.T) {
	mb := NewMailbox(0)
	if cap(mb.ch) != DefaultMailboxCapacity {
		t.Errorf("capacity = %d, want %d", cap(mb.ch), DefaultMailboxCapacity)
	}
}
