package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"youapp/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newMessage(from, to uuid.UUID, content string, at time.Time) *domain.Message {
	return &domain.Message{
		ID:          uuid.New(),
		SenderID:    from,
		RecipientID: to,
		Content:     content,
		Timestamp:   at,
	}
}

func Test_Badger_Conversation_Both_Directions_In_Time_Order(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newBadgerStore(t)
	alice, bob, clara := uuid.New(), uuid.New(), uuid.New()
	at := time.Now().UTC()

	// Given messages stored out of order and one unrelated message
	req.NoError(store.CreateMessage(ctx, newMessage(bob, alice, "second", at.Add(time.Minute))))
	req.NoError(store.CreateMessage(ctx, newMessage(alice, bob, "first", at)))
	req.NoError(store.CreateMessage(ctx, newMessage(alice, clara, "elsewhere", at)))
	req.NoError(store.CreateMessage(ctx, newMessage(alice, bob, "third", at.Add(2*time.Minute))))

	// When the conversation is read from both sides
	ab, err := store.ListConversation(ctx, alice, bob)
	req.NoError(err)
	ba, err := store.ListConversation(ctx, bob, alice)
	req.NoError(err)

	// Then both views are identical and sorted
	req.Len(ab, 3)
	req.Equal(ab, ba)
	req.Equal("first", ab[0].Content)
	req.Equal("second", ab[1].Content)
	req.Equal("third", ab[2].Content)
}

func Test_Badger_Conversation_Equal_Timestamps_Keep_Insertion_Order(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newBadgerStore(t)
	alice, bob := uuid.New(), uuid.New()
	at := time.Now().UTC()

	for _, content := range []string{"a", "b", "c", "d"} {
		req.NoError(store.CreateMessage(ctx, newMessage(alice, bob, content, at)))
	}

	messages, err := store.ListConversation(ctx, bob, alice)
	req.NoError(err)
	req.Len(messages, 4)
	for i, content := range []string{"a", "b", "c", "d"} {
		req.Equal(content, messages[i].Content)
	}
	req.Less(messages[0].Seq, messages[3].Seq)
}

func Test_Badger_CreateMessage_Writes_Outbox_Event(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newBadgerStore(t)
	msg := newMessage(uuid.New(), uuid.New(), "hello", time.Now().UTC())

	req.NoError(store.CreateMessage(ctx, msg))

	events, err := store.FetchPending(ctx, 10)
	req.NoError(err)
	req.Len(events, 1)
	req.Equal(domain.EventTypeMessageCreated, events[0].EventType)
	req.Contains(string(events[0].Payload), msg.ID.String())

	// When the event is marked processed it is no longer pending
	req.NoError(store.MarkProcessed(ctx, []uuid.UUID{events[0].ID}))
	events, err = store.FetchPending(ctx, 10)
	req.NoError(err)
	req.Empty(events)
}

func Test_Badger_FetchPending_Respects_Limit(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newBadgerStore(t)
	for i := 0; i < 5; i++ {
		req.NoError(store.CreateMessage(ctx, newMessage(uuid.New(), uuid.New(), "x", time.Now().UTC())))
	}

	events, err := store.FetchPending(ctx, 3)
	req.NoError(err)
	req.Len(events, 3)
}

func Test_Badger_Users(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newBadgerStore(t)
	user := domain.User{
		ID:           uuid.New(),
		Email:        "Alice@Example.com",
		Username:     "alice",
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
	}

	req.NoError(store.CreateUser(ctx, user))

	t.Run("duplicate email is rejected case-insensitively", func(t *testing.T) {
		dup := user
		dup.ID = uuid.New()
		dup.Email = "alice@example.COM"
		require.ErrorIs(t, store.CreateUser(ctx, dup), ErrAlreadyExists)
	})

	t.Run("lookup by email and id", func(t *testing.T) {
		byEmail, err := store.GetUserByEmail(ctx, "ALICE@example.com")
		require.NoError(t, err)
		require.Equal(t, user.ID, byEmail.ID)

		byID, err := store.GetUser(ctx, user.ID)
		require.NoError(t, err)
		require.Equal(t, "alice", byID.Username)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := store.GetUser(ctx, uuid.New())
		require.ErrorIs(t, err, ErrNotFound)
		_, err = store.GetUserByEmail(ctx, "nobody@example.com")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update profile", func(t *testing.T) {
		updated, err := store.UpdateProfile(ctx, user.ID, func(p *domain.Profile) error {
			p.DisplayName, p.Zodiac = "Al", "Leo"
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, "Al", updated.Profile.DisplayName)

		_, err = store.UpdateProfile(ctx, uuid.New(), func(*domain.Profile) error { return nil })
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update profile aborts on apply error", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := store.UpdateProfile(ctx, user.ID, func(p *domain.Profile) error {
			p.DisplayName = "changed"
			return boom
		})
		require.ErrorIs(t, err, boom)

		got, err := store.GetUser(ctx, user.ID)
		require.NoError(t, err)
		require.Equal(t, "Al", got.Profile.DisplayName)
	})

	t.Run("batch lookup skips unknown ids", func(t *testing.T) {
		users, err := store.GetUsers(ctx, []uuid.UUID{user.ID, uuid.New()})
		require.NoError(t, err)
		require.Len(t, users, 1)
	})

	t.Run("list", func(t *testing.T) {
		bob := domain.User{ID: uuid.New(), Email: "bob@example.com", Username: "bob", CreatedAt: user.CreatedAt.Add(time.Second)}
		require.NoError(t, store.CreateUser(ctx, bob))
		users, err := store.ListUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 2)
		require.Equal(t, "alice", users[0].Username)
		require.Equal(t, "bob", users[1].Username)
	})
}

func Test_Badger_UpdateProfile_Concurrent_Writers_Keep_Both_Fields(t *testing.T) {
	req := require.New(t)
	store := newBadgerStore(t)
	ctx := context.Background()
	user := domain.User{ID: uuid.New(), Email: "c@example.com", Username: "c", CreatedAt: time.Now().UTC()}
	req.NoError(store.CreateUser(ctx, user))

	// Given two writers touching different profile fields at the same time
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, apply := range []func(*domain.Profile) error{
		func(p *domain.Profile) error { p.DisplayName = "Cee"; return nil },
		func(p *domain.Profile) error { p.Avatar = "c.png"; return nil },
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.UpdateProfile(ctx, user.ID, apply)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	// Then neither write is lost
	got, err := store.GetUser(ctx, user.ID)
	req.NoError(err)
	req.Equal("Cee", got.Profile.DisplayName)
	req.Equal("c.png", got.Profile.Avatar)
}
