package store

import (
	"context"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// MySQLStore implements MessageStore on a MySQL message table. The underlying
// sqlx pool provides its own connection reuse and concurrency safety.
type MySQLStore struct {
	db *sqlx.DB
}

// Open connects to MySQL with the given DSN and verifies the connection. The
// DSN must include parseTime=true so create_time scans into time.Time.
func Open(dsn string) (*MySQLStore, error) {
	if dsn == "" {
		return nil, errors.New("mysql store: empty DSN")
	}

	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql store: open: %w", err)
	}

	// sqlx.Open does not dial; force a network round trip here.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql store: ping: %w", err)
	}

	return &MySQLStore{db: db}, nil
}

// Close releases the connection pool.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}

func (s *MySQLStore) Create(ctx context.Context, msg *Message) (uint64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO message(sender_uid, receiver_type, receiver_id, content, create_time) VALUES(?, ?, ?, ?, ?)",
		msg.SenderUID, msg.ReceiverKind, msg.ReceiverID, msg.Content, msg.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("mysql store: insert message: %w", err)
	}

	mid, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("mysql store: last insert id: %w", err)
	}
	return uint64(mid), nil
}

func (s *MySQLStore) ByRecipient(ctx context.Context, id uint64, kind ReceiverKind) ([]Message, error) {
	var msgs []Message
	err := s.db.SelectContext(ctx, &msgs,
		"SELECT mid, sender_uid, receiver_type, receiver_id, content, create_time"+
			" FROM message WHERE receiver_id = ? AND receiver_type = ? ORDER BY create_time",
		id, kind)
	if err != nil {
		return nil, fmt.Errorf("mysql store: query by recipient: %w", err)
	}
	return msgs, nil
}
