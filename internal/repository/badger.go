package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"youapp/internal/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	messagePrefix   = "msg:"
	outboxPrefix    = "outbox:"
	userIDPrefix    = "user:id:"
	userEmailPrefix = "user:email:"
	sequenceKey     = "seq:insert"
	// Number of sequence values leased from disk at a time.
	sequenceBandwidth = 1000
)

// BadgerStore implements Store on an embedded BadgerDB.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
}

var _ Store = (*BadgerStore)(nil)

func NewBadgerStore(db *badger.DB) (*BadgerStore, error) {
	seq, err := db.GetSequence([]byte(sequenceKey), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("failed to lease sequence: %w", err)
	}
	return &BadgerStore{db: db, seq: seq}, nil
}

// OpenBadger opens the database at path, or an in-memory one when path is empty.
func OpenBadger(path string) (*BadgerStore, error) {
	options := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	if path == "" {
		options = options.WithInMemory(true)
	}
	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	store, err := NewBadgerStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Migrate is a no-op, badger is schemaless.
func (s *BadgerStore) Migrate(context.Context) error {
	return nil
}

func (s *BadgerStore) Close() error {
	if err := s.seq.Release(); err != nil {
		_ = s.db.Close()
		return fmt.Errorf("failed to release sequence: %w", err)
	}
	return s.db.Close()
}

// CreateMessage stores the message under
// "msg:{low}|{high}:{unixnano padded 19}:{seq padded 20}" so a prefix scan over
// the unordered pair yields the conversation sorted by time, then insertion.
func (s *BadgerStore) CreateMessage(ctx context.Context, msg *domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	seq, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("failed to allocate sequence: %w", err)
	}
	msg.Seq = seq

	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	event, err := newMessageCreatedEvent(msg)
	if err != nil {
		return err
	}
	eventValue, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox event: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(msg), value); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		if err := txn.Set(outboxKey(seq), eventValue); err != nil {
			return fmt.Errorf("failed to save outbox event: %w", err)
		}
		return nil
	})
}

func (s *BadgerStore) ListConversation(ctx context.Context, a, b uuid.UUID) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte(messagePrefix + domain.ConversationKey(a, b) + ":")
	var messages []domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var msg domain.Message
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			})
			if err != nil {
				return fmt.Errorf("failed to decode message: %w", err)
			}
			msg.Seq = seqFromKey(it.Item().Key())
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *BadgerStore) CreateUser(ctx context.Context, user domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	user.Email = strings.ToLower(user.Email)
	value, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		emailKey := []byte(userEmailPrefix + user.Email)
		if _, err := txn.Get(emailKey); err == nil {
			return ErrAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to check email: %w", err)
		}
		if err := txn.Set(emailKey, []byte(user.ID.String())); err != nil {
			return fmt.Errorf("failed to index email: %w", err)
		}
		if err := txn.Set(userKey(user.ID), value); err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		return nil
	})
}

func (s *BadgerStore) GetUser(ctx context.Context, id uuid.UUID) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	var user domain.User
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = getUser(txn, id)
		return err
	})
	return user, err
}

func (s *BadgerStore) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	var user domain.User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(userEmailPrefix + strings.ToLower(email)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read email index: %w", err)
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("failed to read email index: %w", err)
		}
		id, err := uuid.ParseBytes(raw)
		if err != nil {
			return fmt.Errorf("corrupt email index: %w", err)
		}
		user, err = getUser(txn, id)
		return err
	})
	return user, err
}

func (s *BadgerStore) GetUsers(ctx context.Context, ids []uuid.UUID) ([]domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var users []domain.User
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			user, err := getUser(txn, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			users = append(users, user)
		}
		return nil
	})
	return users, err
}

func (s *BadgerStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte(userIDPrefix)
	var users []domain.User
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var user domain.User
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &user)
			}); err != nil {
				return fmt.Errorf("failed to decode user: %w", err)
			}
			users = append(users, user)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID.String() < users[j].ID.String()
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// Concurrent read-modify-write of the same user conflicts at commit; the
// transaction is retried a bounded number of times.
const profileUpdateAttempts = 5

func (s *BadgerStore) UpdateProfile(ctx context.Context, id uuid.UUID, apply func(*domain.Profile) error) (domain.User, error) {
	var user domain.User
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.User{}, err
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			var err error
			user, err = getUser(txn, id)
			if err != nil {
				return err
			}
			if err := apply(&user.Profile); err != nil {
				return err
			}
			value, err := json.Marshal(user)
			if err != nil {
				return fmt.Errorf("failed to marshal user: %w", err)
			}
			return txn.Set(userKey(id), value)
		})
		if errors.Is(err, badger.ErrConflict) && attempt < profileUpdateAttempts {
			continue
		}
		if err != nil {
			return domain.User{}, err
		}
		return user, nil
	}
}

func (s *BadgerStore) FetchPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte(outboxPrefix)
	var events []domain.OutboxEvent
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(events) < limit; it.Next() {
			var event domain.OutboxEvent
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &event)
			}); err != nil {
				return fmt.Errorf("failed to decode outbox event: %w", err)
			}
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// MarkProcessed deletes relayed events. Outbox keys are ordered by sequence,
// so the scan matches ids against stored values.
func (s *BadgerStore) MarkProcessed(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	wanted := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	prefix := []byte(outboxPrefix)
	return s.db.Update(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		var doomed [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(doomed) < len(wanted); it.Next() {
			var event domain.OutboxEvent
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &event)
			}); err != nil {
				return fmt.Errorf("failed to decode outbox event: %w", err)
			}
			if _, ok := wanted[event.ID]; ok {
				doomed = append(doomed, it.Item().KeyCopy(nil))
			}
		}
		for _, key := range doomed {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("failed to delete outbox event: %w", err)
			}
		}
		return nil
	})
}

func getUser(txn *badger.Txn, id uuid.UUID) (domain.User, error) {
	item, err := txn.Get(userKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to read user: %w", err)
	}
	var user domain.User
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &user)
	}); err != nil {
		return domain.User{}, fmt.Errorf("failed to decode user: %w", err)
	}
	return user, nil
}

func messageKey(msg *domain.Message) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%020d",
		messagePrefix,
		domain.ConversationKey(msg.SenderID, msg.RecipientID),
		msg.Timestamp.UnixNano(),
		msg.Seq,
	))
}

func outboxKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", outboxPrefix, seq))
}

func userKey(id uuid.UUID) []byte {
	return []byte(userIDPrefix + id.String())
}

func seqFromKey(key []byte) uint64 {
	idx := bytes.LastIndexByte(key, ':')
	if idx < 0 {
		return 0
	}
	var seq uint64
	_, _ = fmt.Sscanf(string(key[idx+1:]), "%d", &seq)
	return seq
}
