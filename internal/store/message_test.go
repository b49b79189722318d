package store

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestMessageWireDecoding(t *testing.T) {
	data := []byte(`{"receiver_kind":"User","receiver_id":2,"content":"hi"}`)

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}

	want := Message{ReceiverKind: ReceiverUser, ReceiverID: 2, Content: "hi"}
	if diff := cmp.Diff(want, msg); diff != "" {
		t.Errorf("decoded message mismatch (-want +got):\n%s", diff)
	}
}

func TestMessageWireDecodingRejectsUnknownKind(t *testing.T) {
	cases := []string{
		`{"receiver_kind":"Channel","receiver_id":2,"content":"hi"}`,
		`{"receiver_kind":1,"receiver_id":2,"content":"hi"}`,
		`not json at all`,
	}
	for _, raw := range cases {
		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err == nil {
			t.Errorf("Unmarshal(%q) succeeded, want error", raw)
		}
	}
}

func TestForwardedMessageCarriesSenderAttribution(t *testing.T) {
	msg := Message{
		MID:          7,
		SenderUID:    1,
		ReceiverKind: ReceiverUser,
		ReceiverID:   2,
		Content:      "hi",
		CreatedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	for _, want := range []string{`"sender_uid":1`, `"receiver_kind":"User"`, `"receiver_id":2`, `"mid":7`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("encoded message %s missing %s", data, want)
		}
	}
}

func TestFormatErrorNoticeShape(t *testing.T) {
	// A format-error notice is an ordinary message with receiver_id 0; the
	// zero must survive encoding so clients can recognize the shape.
	notice := Message{ReceiverKind: ReceiverUser, ReceiverID: 0, Content: "message format error"}

	data, err := json.Marshal(notice)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if !strings.Contains(string(data), `"receiver_id":0`) {
		t.Errorf("notice %s does not carry receiver_id 0", data)
	}
}

func TestReceiverKindColumnMapping(t *testing.T) {
	for kind, column := range map[ReceiverKind]int64{ReceiverUser: 0, ReceiverGroup: 1} {
		val, err := kind.Value()
		if err != nil {
			t.Fatalf("%s.Value() error: %v", kind, err)
		}
		if val != column {
			t.Errorf("%s.Value() = %v, want %d", kind, val, column)
		}

		var scanned ReceiverKind
		if err := scanned.Scan(column); err != nil {
			t.Fatalf("Scan(%d) error: %v", column, err)
		}
		if scanned != kind {
			t.Errorf("Scan(%d) = %s, want %s", column, scanned, kind)
		}
	}

	if _, err := ReceiverKind("Channel").Value(); err == nil {
		t.Error("Value() accepted an unknown kind")
	}
	var k ReceiverKind
	if err := k.Scan(int64(5)); err == nil {
		t.Error("Scan() accepted an out-of-range column value")
	}
}

func TestReceiverKindValid(t *testing.T) {
	for _, kind := range []ReceiverKind{ReceiverUser, ReceiverGroup} {
		if !kind.Valid() {
			t.Errorf("%s.Valid() = false", kind)
		}
	}
	// The zero kind is what a decoded message carries when the JSON body
	// omitted receiver_kind entirely.
	for _, kind := range []ReceiverKind{"", "Channel", "user"} {
		if kind.Valid() {
			t.Errorf("ReceiverKind(%q).Valid() = true", string(kind))
		}
	}
}

func TestParseReceiverKind(t *testing.T) {
	if kind, err := ParseReceiverKind("Group"); err != nil || kind != ReceiverGroup {
		t.Errorf("ParseReceiverKind(Group) = (%v, %v)", kind, err)
	}
	if _, err := ParseReceiverKind("group"); err == nil {
		t.Error("ParseReceiverKind is case-insensitive, want exact match only")
	}
}
