package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type Conversation struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

func (db *PostgresDB) CreateConversation(ctx context.Context) (*Conversation, error) {
	conv := &Conversation{}
	err := db.Pool.QueryRow(ctx,
		`INSERT INTO conversations (id) VALUES ($1) RETURNING id, title, created_at, updated_at`,
		uuid.New(),
	).Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (db *PostgresDB) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	conv := &Conversation{}
	err := db.Pool.QueryRow(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations WHERE id = $1`, id,
	).Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

func (db *PostgresDB) ListConversations(ctx context.Context) ([]Conversation, error) {
	rows, err := db.Pool.Query(ctx, `SELECT id, title, created_at, updated_at FROM conversations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func (db *PostgresDB) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]Message, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, conversation_id, role, content, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// AddMessage stores a message and bumps the conversation's updated_at.
func (db *PostgresDB) AddMessage(ctx context.Context, conversationID uuid.UUID, role, content string) (*Message, error) {
	msg := &Message{ID: uuid.New(), ConversationID: conversationID, Role: role, Content: content}
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, role, content)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, msg.ID, conversationID, role, content).Scan(&msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save %s message: %w", role, err)
	}
	if _, err := db.Pool.Exec(ctx, `UPDATE conversations SET updated_at = NOW() WHERE id = $1`, conversationID); err != nil {
		return nil, fmt.Errorf("failed to touch conversation: %w", err)
	}
	return msg, nil
}

func (db *PostgresDB) SetConversationTitle(ctx context.Context, id uuid.UUID, title string) error {
	if _, err := db.Pool.Exec(ctx, `UPDATE conversations SET title = $2 WHERE id = $1`, id, title); err != nil {
		return fmt.Errorf("failed to update conversation title: %w", err)
	}
	return nil
}
