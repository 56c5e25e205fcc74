package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/pagewise/core"
	"github.com/poiesic/pagewise/storage"
)

type conversationRepository struct {
	db    *sql.DB
	table string
}

var _ storage.ConversationRepository = (*conversationRepository)(nil)

func newConversationRepository(db *sql.DB, table string) *conversationRepository {
	return &conversationRepository{db: db, table: table}
}

// Append assigns indexes and timestamps inside one IMMEDIATE transaction, so
// concurrent appends to a conversation queue on the write lock.
func (r *conversationRepository) Append(ctx context.Context, turns ...*core.ConversationTurn) ([]*core.ConversationTurn, error) {
	if len(turns) == 0 {
		return turns, nil
	}
	if err := storage.ValidateTurns(turns); err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storage.Unavailable(fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck

	type tail struct {
		next int64
		last time.Time
	}
	tails := make(map[string]*tail)
	lastQuery := fmt.Sprintf(
		"SELECT message_index, created_at FROM %s WHERE conversation_id = ? ORDER BY message_index DESC LIMIT 1", r.table)
	insert := fmt.Sprintf(
		"INSERT INTO %s (conversation_id, message_index, role, content, created_at) VALUES (?, ?, ?, ?, ?)", r.table)

	now := time.Now()
	for _, turn := range turns {
		t, ok := tails[turn.ConversationID]
		if !ok {
			t = &tail{}
			var (
				index     int64
				createdAt int64
			)
			err := tx.QueryRowContext(ctx, lastQuery, turn.ConversationID).Scan(&index, &createdAt)
			switch {
			case errors.Is(err, sql.ErrNoRows):
			case err != nil:
				return nil, storage.Unavailable(err)
			default:
				t.next = index + 1
				t.last = time.UnixMicro(createdAt).UTC()
			}
			tails[turn.ConversationID] = t
		}

		turn.Index = t.next
		turn.CreatedAt = storage.NextCreatedAt(t.last, now)
		t.next++
		t.last = turn.CreatedAt

		if _, err := tx.ExecContext(ctx, insert, turn.ConversationID, turn.Index, string(turn.Role),
			turn.Content, turn.CreatedAt.UnixMicro()); err != nil {
			return nil, storage.Unavailable(fmt.Errorf("saving turn: %w", err))
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, storage.Unavailable(fmt.Errorf("committing transaction: %w", err))
	}
	return turns, nil
}

// Recent reads the newest turns and returns them oldest first.
func (r *conversationRepository) Recent(ctx context.Context, conversationID string, limit int) ([]*core.ConversationTurn, error) {
	turns := []*core.ConversationTurn{}
	if limit <= 0 {
		return turns, nil
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT conversation_id, message_index, role, content, created_at
		FROM %s WHERE conversation_id = ?
		ORDER BY message_index DESC LIMIT ?
	`, r.table), conversationID, limit)
	if err != nil {
		return nil, storage.Unavailable(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			turn      core.ConversationTurn
			role      string
			createdAt int64
		)
		if err := rows.Scan(&turn.ConversationID, &turn.Index, &role, &turn.Content, &createdAt); err != nil {
			return nil, storage.Unavailable(err)
		}
		turn.Role = core.Role(role)
		turn.CreatedAt = time.UnixMicro(createdAt).UTC()
		turns = append(turns, &turn)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable(err)
	}
	return storage.Reverse(turns), nil
}

// Delete removes every turn of a conversation.
func (r *conversationRepository) Delete(ctx context.Context, conversationID string) error {
	if _, err := r.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE conversation_id = ?", r.table), conversationID); err != nil {
		return storage.Unavailable(err)
	}
	return nil
}
