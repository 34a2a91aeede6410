package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eli-ai/eli-backend/internal/model/chat"
)

// PostgresStore persists chats in PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a connection pool and verifies it with a ping.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the chat tables when they do not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chat_groups (
			id UUID PRIMARY KEY,
			first_start_timestamp TIMESTAMPTZ NOT NULL,
			most_recent_start_timestamp TIMESTAMPTZ NOT NULL,
			num_chats INTEGER NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT FALSE
		);

		CREATE TABLE IF NOT EXISTS chats (
			id UUID PRIMARY KEY,
			chat_group_id UUID NOT NULL REFERENCES chat_groups(id),
			user_id TEXT NOT NULL,
			start_timestamp TIMESTAMPTZ NOT NULL,
			end_timestamp TIMESTAMPTZ,
			event_count INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_chats_user ON chats(user_id, start_timestamp DESC);

		CREATE TABLE IF NOT EXISTS chat_events (
			id UUID PRIMARY KEY,
			chat_id UUID NOT NULL REFERENCES chats(id),
			"timestamp" TIMESTAMPTZ NOT NULL,
			role TEXT NOT NULL,
			type TEXT NOT NULL,
			message_text TEXT,
			emotion_features JSONB NOT NULL DEFAULT '{}'::jsonb
		);
		CREATE INDEX IF NOT EXISTS idx_chat_events_chat ON chat_events(chat_id, "timestamp");
	`)
	return err
}

// CreateGroup inserts a new active chat group.
func (s *PostgresStore) CreateGroup(ctx context.Context, now time.Time) (*chat.Group, error) {
	group := &chat.Group{
		ID:                       uuid.NewString(),
		FirstStartTimestamp:      now,
		MostRecentStartTimestamp: now,
		NumChats:                 1,
		Active:                   true,
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_groups (id, first_start_timestamp, most_recent_start_timestamp, num_chats, active)
		VALUES ($1, $2, $3, $4, $5)
	`, group.ID, group.FirstStartTimestamp, group.MostRecentStartTimestamp, group.NumChats, group.Active)
	if err != nil {
		return nil, err
	}
	return group, nil
}

// CreateChat inserts an open chat under the given group.
func (s *PostgresStore) CreateChat(ctx context.Context, groupID, userID string, now time.Time) (*chat.Chat, error) {
	c := &chat.Chat{
		ID:             uuid.NewString(),
		GroupID:        groupID,
		UserID:         userID,
		StartTimestamp: now,
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO chats (id, chat_group_id, user_id, start_timestamp, event_count)
		VALUES ($1, $2, $3, $4, 0)
	`, c.ID, c.GroupID, c.UserID, c.StartTimestamp)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// AppendEvent inserts the event and bumps the chat's event_count in one
// transaction so the counter can never drift from the row count.
func (s *PostgresStore) AppendEvent(ctx context.Context, event *chat.Event) error {
	features := event.EmotionFeatures
	if features == nil {
		features = map[string]float64{}
	}
	payload, err := json.Marshal(features)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE chats SET event_count = event_count + 1 WHERE id = $1
	`, event.ChatID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	var text *string
	if event.MessageText != "" {
		text = &event.MessageText
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO chat_events (id, chat_id, "timestamp", role, type, message_text, emotion_features)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.ID, event.ChatID, event.Timestamp, event.Role, event.Type, text, payload)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// CloseChat finalizes the chat. The end_timestamp IS NULL guard makes
// the terminal write happen at most once.
func (s *PostgresStore) CloseChat(ctx context.Context, chatID string, end time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE chats SET end_timestamp = $2 WHERE id = $1 AND end_timestamp IS NULL
	`, chatID, end)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM chats WHERE id = $1)`, chatID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrChatClosed
	}
	return nil
}

// DeactivateGroup clears the active flag on the group.
func (s *PostgresStore) DeactivateGroup(ctx context.Context, groupID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE chat_groups SET active = FALSE WHERE id = $1
	`, groupID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListChats returns the user's chats, most recent first.
func (s *PostgresStore) ListChats(ctx context.Context, userID string) ([]chat.Chat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, chat_group_id, user_id, start_timestamp, end_timestamp, event_count
		FROM chats WHERE user_id = $1 ORDER BY start_timestamp DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []chat.Chat
	for rows.Next() {
		var c chat.Chat
		if err := rows.Scan(&c.ID, &c.GroupID, &c.UserID, &c.StartTimestamp, &c.EndTimestamp, &c.EventCount); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetChat fetches a single chat by id.
func (s *PostgresStore) GetChat(ctx context.Context, chatID string) (*chat.Chat, error) {
	c := &chat.Chat{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, chat_group_id, user_id, start_timestamp, end_timestamp, event_count
		FROM chats WHERE id = $1
	`, chatID).Scan(&c.ID, &c.GroupID, &c.UserID, &c.StartTimestamp, &c.EndTimestamp, &c.EventCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// ListEvents returns the chat's events in append order.
func (s *PostgresStore) ListEvents(ctx context.Context, chatID string) ([]chat.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, chat_id, "timestamp", role, type, message_text, emotion_features
		FROM chat_events WHERE chat_id = $1 ORDER BY "timestamp" ASC, id ASC
	`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []chat.Event
	for rows.Next() {
		var (
			ev      chat.Event
			text    *string
			payload []byte
		)
		if err := rows.Scan(&ev.ID, &ev.ChatID, &ev.Timestamp, &ev.Role, &ev.Type, &text, &payload); err != nil {
			return nil, err
		}
		if text != nil {
			ev.MessageText = *text
		}
		if err := json.Unmarshal(payload, &ev.EmotionFeatures); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// EmotionAverages computes mean emotion scores over the chat's user
// messages, strongest emotions first.
func (s *PostgresStore) EmotionAverages(ctx context.Context, chatID string) ([]EmotionAverage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT key AS emotion, AVG(value::numeric)::float8 AS average_score
		FROM chat_events, jsonb_each_text(emotion_features)
		WHERE chat_id = $1 AND type = $2
		GROUP BY key
		ORDER BY average_score DESC
	`, chatID, chat.EventUserMessage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var averages []EmotionAverage
	for rows.Next() {
		var avg EmotionAverage
		if err := rows.Scan(&avg.Emotion, &avg.AverageScore); err != nil {
			return nil, err
		}
		averages = append(averages, avg)
	}
	return averages, rows.Err()
}
