package badger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/pagewise/core"
	"github.com/poiesic/pagewise/storage"
)

// maxConflictRetries bounds how often Append retries after a concurrent
// append to the same conversation won the race.
const maxConflictRetries = 16

// ConversationRepository implements storage.ConversationRepository for BadgerDB.
// Turns are keyed by a hash of the conversation id followed by the big-endian
// message index, so a prefix scan yields one conversation in order.
type ConversationRepository struct {
	backend *Backend
	table   string
	logger  *slog.Logger
}

var _ storage.ConversationRepository = (*ConversationRepository)(nil)

// NewConversationRepository creates a new ConversationRepository using the
// schema's conversation table.
func NewConversationRepository(backend *Backend, schema storage.Schema) (*ConversationRepository, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return &ConversationRepository{
		backend: backend,
		table:   schema.ConversationTable,
		logger:  backend.logger.With("table", schema.ConversationTable),
	}, nil
}

// Append assigns indexes and timestamps and writes all turns in one transaction.
func (r *ConversationRepository) Append(ctx context.Context, turns ...*core.ConversationTurn) ([]*core.ConversationTurn, error) {
	if len(turns) == 0 {
		return turns, nil
	}
	if err := storage.ValidateTurns(turns); err != nil {
		return nil, err
	}

	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = r.backend.WithTx(func(tx *badger.Txn) error {
			return r.append(tx, turns)
		}, true)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		r.logger.Debug("conversation append conflicted, retrying", "attempt", attempt+1)
	}
	if err != nil {
		return nil, storage.Unavailable(err)
	}
	return turns, nil
}

type tail struct {
	next int64
	last time.Time
}

func (r *ConversationRepository) append(tx *badger.Txn, turns []*core.ConversationTurn) error {
	tails := make(map[string]*tail)
	now := time.Now()
	for _, turn := range turns {
		t, ok := tails[turn.ConversationID]
		if !ok {
			if err := r.touchHead(tx, turn.ConversationID); err != nil {
				return err
			}
			last, err := r.lastTurn(tx, turn.ConversationID)
			if err != nil {
				return err
			}
			t = &tail{}
			if last != nil {
				t.next = last.Index + 1
				t.last = last.CreatedAt
			}
			tails[turn.ConversationID] = t
		}

		turn.Index = t.next
		turn.CreatedAt = storage.NextCreatedAt(t.last, now)
		t.next++
		t.last = turn.CreatedAt

		value := storage.MarshalTurn(turn)
		if err := tx.Set(makeTurnKey(r.table, turn.ConversationID, turn.Index), value); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// touchHead reads and rewrites the conversation's head key. Two transactions
// appending to the same conversation, even an empty one, then always conflict.
func (r *ConversationRepository) touchHead(tx *badger.Txn, conversationID string) error {
	key := makeHeadKey(r.table, conversationID)
	if _, err := tx.Get(key); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	return tx.Set(key, []byte(conversationID))
}

// lastTurn reads the newest turn of a conversation inside tx so that a
// concurrent append to the same conversation causes a commit conflict.
func (r *ConversationRepository) lastTurn(tx *badger.Txn, conversationID string) (*core.ConversationTurn, error) {
	turns, err := r.newest(tx, conversationID, 1)
	if err != nil || len(turns) == 0 {
		return nil, err
	}
	return turns[0], nil
}

// newest returns up to limit turns, newest first.
func (r *ConversationRepository) newest(tx *badger.Txn, conversationID string, limit int) ([]*core.ConversationTurn, error) {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.Prefix = makeConversationPrefix(r.table, conversationID)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var turns []*core.ConversationTurn
	for iter.Seek(makeLastTurnKey(r.table, conversationID)); iter.Valid() && len(turns) < limit; iter.Next() {
		turn, err := readTurn(iter.Item())
		if err != nil {
			return nil, err
		}
		// Different ids can share a hash prefix
		if turn.ConversationID != conversationID {
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// Recent returns up to limit most recent turns, oldest first.
func (r *ConversationRepository) Recent(ctx context.Context, conversationID string, limit int) ([]*core.ConversationTurn, error) {
	if limit <= 0 {
		return []*core.ConversationTurn{}, nil
	}
	var turns []*core.ConversationTurn
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		turns, err = r.newest(tx, conversationID, limit)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if turns == nil {
		turns = []*core.ConversationTurn{}
	}
	return storage.Reverse(turns), nil
}

// Delete removes every turn of a conversation, committing in several
// transactions when one would grow too large.
func (r *ConversationRepository) Delete(ctx context.Context, conversationID string) error {
	var keys [][]byte
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeConversationPrefix(r.table, conversationID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			turn, err := readTurn(iter.Item())
			if err != nil {
				return err
			}
			if turn.ConversationID == conversationID {
				keys = append(keys, iter.Item().KeyCopy(nil))
			}
		}
		return nil
	}, false)
	if err != nil || len(keys) == 0 {
		return err
	}

	batch := r.backend.db.NewWriteBatch()
	defer batch.Cancel()
	for _, key := range keys {
		if err := batch.Delete(key); err != nil {
			return storage.Unavailable(err)
		}
	}
	if err := batch.Flush(); err != nil {
		return storage.Unavailable(err)
	}
	r.logger.Debug("deleted conversation", "turns", len(keys))
	return nil
}

func readTurn(item *badger.Item) (*core.ConversationTurn, error) {
	var turn *core.ConversationTurn
	err := item.Value(func(val []byte) error {
		var err error
		turn, err = storage.UnmarshalTurn(val)
		return err
	})
	return turn, err
}
