// Package store defines the chat message model and its durable persistence.
package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ReceiverKind distinguishes direct and group recipients. On the wire it is
// the string "User" or "Group"; in MySQL it is stored as 0 or 1.
type ReceiverKind string

const (
	ReceiverUser  ReceiverKind = "User"
	ReceiverGroup ReceiverKind = "Group"
)

// ParseReceiverKind validates a wire or query-parameter value.
func ParseReceiverKind(s string) (ReceiverKind, error) {
	switch ReceiverKind(s) {
	case ReceiverUser:
		return ReceiverUser, nil
	case ReceiverGroup:
		return ReceiverGroup, nil
	}
	return "", fmt.Errorf("unknown receiver kind %q", s)
}

// Valid reports whether k is one of the known kinds. Decoding JSON into a
// Message leaves the zero kind when the receiver_kind key is absent, so
// decoded values must be checked before use.
func (k ReceiverKind) Valid() bool {
	return k == ReceiverUser || k == ReceiverGroup
}

func (k *ReceiverKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	kind, err := ParseReceiverKind(s)
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// Value implements driver.Valuer for the receiver_type column.
func (k ReceiverKind) Value() (driver.Value, error) {
	switch k {
	case ReceiverUser:
		return int64(0), nil
	case ReceiverGroup:
		return int64(1), nil
	}
	return nil, fmt.Errorf("unknown receiver kind %q", string(k))
}

// Scan implements sql.Scanner for the receiver_type column.
func (k *ReceiverKind) Scan(src any) error {
	var n int64
	switch v := src.(type) {
	case int64:
		n = v
	case []byte:
		if len(v) != 1 {
			return fmt.Errorf("cannot scan %q into ReceiverKind", v)
		}
		n = int64(v[0] - '0')
	default:
		return fmt.Errorf("cannot scan %T into ReceiverKind", src)
	}

	switch n {
	case 0:
		*k = ReceiverUser
	case 1:
		*k = ReceiverGroup
	default:
		return fmt.Errorf("receiver_type %d out of range", n)
	}
	return nil
}

// Message is a chat message. Clients send only receiver_kind, receiver_id,
// and content; the relay stamps SenderUID and CreatedAt before persisting,
// and the store assigns MID.
type Message struct {
	MID          uint64       `json:"mid,omitempty" db:"mid"`
	SenderUID    uint64       `json:"sender_uid,omitempty" db:"sender_uid"`
	ReceiverKind ReceiverKind `json:"receiver_kind" db:"receiver_type"`
	ReceiverID   uint64       `json:"receiver_id" db:"receiver_id"`
	Content      string       `json:"content" db:"content"`
	CreatedAt    time.Time    `json:"create_time,omitempty" db:"create_time"`
}
