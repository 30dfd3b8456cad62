package notification_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/notification/filter"
)

func timePtr(t time.Time) *time.Time { return &t }

func newBackend(t *testing.T, opts ...notification.Option) (*notification.Backend, *notification.MemoryStore) {
	t.Helper()
	store := notification.NewMemoryStore()
	return notification.New(store, opts...), store
}

func userInput(userID string) notification.Input {
	return notification.Input{
		Identity:     notification.UserIdentity{UserID: userID},
		Type:         notification.TypeEmail,
		BodyTemplate: "hello {{name}}",
		ContextName:  "welcome",
	}
}

func TestBackendPersist(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("user notification round trip", func(t *testing.T) {
		t.Parallel()
		backend, _ := newBackend(t)

		created, err := backend.Persist(ctx, userInput("u1"))
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, notification.StatusPendingSend, created.Status)

		got, err := backend.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.UserIdentity{UserID: "u1"}, got.Identity)
		assert.Equal(t, "welcome", got.ContextName)
	})

	t.Run("one-off notification round trip", func(t *testing.T) {
		t.Parallel()
		backend, _ := newBackend(t)

		created, err := backend.Persist(ctx, notification.Input{
			Identity: notification.OneOffIdentity{
				EmailOrPhone: "ada@example.com",
				FirstName:    "Ada",
				LastName:     "Lovelace",
			},
			Type:         notification.TypeEmail,
			BodyTemplate: "hi",
			ContextName:  "invite",
		})
		require.NoError(t, err)

		got, err := backend.GetOneOff(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.OneOffIdentity{
			EmailOrPhone: "ada@example.com",
			FirstName:    "Ada",
			LastName:     "Lovelace",
		}, got.Identity)
	})

	t.Run("one-off surface hides user notifications", func(t *testing.T) {
		t.Parallel()
		backend, _ := newBackend(t)

		created, err := backend.Persist(ctx, userInput("u1"))
		require.NoError(t, err)

		_, err = backend.GetOneOff(ctx, created.ID)
		require.ErrorIs(t, err, notification.ErrNotFound)
	})

	t.Run("missing identity is rejected", func(t *testing.T) {
		t.Parallel()
		backend, _ := newBackend(t)

		_, err := backend.Persist(ctx, notification.Input{Type: notification.TypePush})
		require.ErrorIs(t, err, notification.ErrInvalidNotification)
	})

	t.Run("get missing id", func(t *testing.T) {
		t.Parallel()
		backend, _ := newBackend(t)

		_, err := backend.Get(ctx, "no-such-id")
		require.ErrorIs(t, err, notification.ErrNotFound)
	})
}

func TestBackendPersistUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("patched fields only", func(t *testing.T) {
		t.Parallel()
		backend, _ := newBackend(t)

		created, err := backend.Persist(ctx, userInput("u1"))
		require.NoError(t, err)

		updated, err := backend.PersistUpdate(ctx, created.ID, notification.Patch{
			Title: notification.Set(strPtr("Welcome!")),
		})
		require.NoError(t, err)
		require.NotNil(t, updated.Title)
		assert.Equal(t, "Welcome!", *updated.Title)
		assert.Equal(t, "welcome", updated.ContextName, "unset fields keep their values")
	})

	t.Run("identity transition to one-off clears the user link", func(t *testing.T) {
		t.Parallel()
		backend, _ := newBackend(t)

		created, err := backend.Persist(ctx, userInput("u1"))
		require.NoError(t, err)

		updated, err := backend.PersistUpdate(ctx, created.ID, notification.Patch{
			Identity: notification.OneOffIdentity{EmailOrPhone: "ada@example.com"},
		})
		require.NoError(t, err)
		assert.True(t, updated.IsOneOff())

		// The reverse transition works too.
		back, err := backend.PersistUpdate(ctx, created.ID, notification.Patch{
			Identity: notification.UserIdentity{UserID: "u2"},
		})
		require.NoError(t, err)
		id, ok := back.UserID()
		require.True(t, ok)
		assert.Equal(t, "u2", id)
	})

	t.Run("missing id", func(t *testing.T) {
		t.Parallel()
		backend, _ := newBackend(t)

		_, err := backend.PersistUpdate(ctx, "no-such-id", notification.Patch{})
		require.ErrorIs(t, err, notification.ErrNotFound)
	})
}

func TestBackendBulkPersist(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("ids come back in input order", func(t *testing.T) {
		t.Parallel()
		backend, _ := newBackend(t)

		ids, err := backend.BulkPersist(ctx, []notification.Input{
			userInput("u1"),
			userInput("u2"),
			userInput("u3"),
		})
		require.NoError(t, err)
		require.Len(t, ids, 3)

		for i, userID := range []string{"u1", "u2", "u3"} {
			got, err := backend.Get(ctx, ids[i])
			require.NoError(t, err)
			assert.Equal(t, notification.UserIdentity{UserID: userID}, got.Identity)
		}
	})

	t.Run("one invalid input fails the whole batch", func(t *testing.T) {
		t.Parallel()
		backend, _ := newBackend(t)

		_, err := backend.BulkPersist(ctx, []notification.Input{
			userInput("u1"),
			{Type: notification.TypeEmail}, // no identity
		})
		require.ErrorIs(t, err, notification.ErrInvalidNotification)

		all, err := backend.List(ctx, 0, 10)
		require.NoError(t, err)
		assert.Empty(t, all, "nothing persisted")
	})

	t.Run("attachments are rejected in bulk", func(t *testing.T) {
		t.Parallel()
		backend, _ := newBackend(t)

		in := userInput("u1")
		in.Attachments = []notification.AttachmentInput{
			notification.AttachmentReference{FileID: "f1"},
		}
		_, err := backend.BulkPersist(ctx, []notification.Input{in})
		require.ErrorIs(t, err, notification.ErrInvalidOperation)
	})
}

func TestBackendTransitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("mark as sent stamps sentAt", func(t *testing.T) {
		t.Parallel()
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		backend, _ := newBackend(t, notification.WithClock(func() time.Time { return now }))

		created, err := backend.Persist(ctx, userInput("u1"))
		require.NoError(t, err)

		sent, err := backend.MarkAsSent(ctx, created.ID, true)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusSent, sent.Status)
		require.NotNil(t, sent.SentAt)
		assert.True(t, sent.SentAt.Equal(now))
	})

	t.Run("second guarded send loses", func(t *testing.T) {
		t.Parallel()
		backend, _ := newBackend(t)

		created, err := backend.Persist(ctx, userInput("u1"))
		require.NoError(t, err)

		_, err = backend.MarkAsSent(ctx, created.ID, true)
		require.NoError(t, err)

		_, err = backend.MarkAsSent(ctx, created.ID, true)
		require.ErrorIs(t, err, notification.ErrPreconditionFailed)
	})

	t.Run("exactly one concurrent guarded send wins", func(t *testing.T) {
		t.Parallel()
		backend, _ := newBackend(t)

		created, err := backend.Persist(ctx, userInput("u1"))
		require.NoError(t, err)

		const workers = 8
		var wg sync.WaitGroup
		errs := make([]error, workers)
		for i := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = backend.MarkAsSent(ctx, created.ID, true)
			}()
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
			} else {
				require.ErrorIs(t, err, notification.ErrPreconditionFailed)
			}
		}
		assert.Equal(t, 1, wins)
	})

	t.Run("unguarded send overwrites any status", func(t *testing.T) {
		t.Parallel()
		backend, _ := newBackend(t)

		created, err := backend.Persist(ctx, userInput("u1"))
		require.NoError(t, err)
		require.NoError(t, backend.Cancel(ctx, created.ID))

		sent, err := backend.MarkAsSent(ctx, created.ID, false)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusSent, sent.Status)
	})

	t.Run("mark as failed", func(t *testing.T) {
		t.Parallel()
		backend, _ := newBackend(t)

		created, err := backend.Persist(ctx, userInput("u1"))
		require.NoError(t, err)

		failed, err := backend.MarkAsFailed(ctx, created.ID, true)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusFailed, failed.Status)
		assert.NotNil(t, failed.SentAt, "failure stamps the attempt time")
	})

	t.Run("mark as read requires sent", func(t *testing.T) {
		t.Parallel()
		backend, _ := newBackend(t)

		created, err := backend.Persist(ctx, userInput("u1"))
		require.NoError(t, err)

		_, err = backend.MarkAsRead(ctx, created.ID, true)
		require.ErrorIs(t, err, notification.ErrPreconditionFailed)

		_, err = backend.MarkAsSent(ctx, created.ID, true)
		require.NoError(t, err)

		read, err := backend.MarkAsRead(ctx, created.ID, true)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusRead, read.Status)
		assert.NotNil(t, read.ReadAt)
	})

	t.Run("one-off notifications cannot be read", func(t *testing.T) {
		t.Parallel()
		backend, _ := newBackend(t)

		created, err := backend.Persist(ctx, notification.Input{
			Identity: notification.OneOffIdentity{EmailOrPhone: "a@b.c"},
			Type:     notification.TypeEmail,
		})
		require.NoError(t, err)

		_, err = backend.MarkAsSent(ctx, created.ID, true)
		require.NoError(t, err)

		_, err = backend.MarkAsRead(ctx, created.ID, false)
		require.ErrorIs(t, err, notification.ErrInvalidOperation)

		// The record is untouched by the rejected operation.
		got, err := backend.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusSent, got.Status)
		assert.Nil(t, got.ReadAt)
	})

	t.Run("cancel is unconditional", func(t *testing.T) {
		t.Parallel()
		backend, _ := newBackend(t)

		created, err := backend.Persist(ctx, userInput("u1"))
		require.NoError(t, err)
		_, err = backend.MarkAsSent(ctx, created.ID, true)
		require.NoError(t, err)

		require.NoError(t, backend.Cancel(ctx, created.ID))

		got, err := backend.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusCancelled, got.Status)
	})
}

func TestBackendQueries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	seed := func(t *testing.T) *notification.Backend {
		t.Helper()
		backend, _ := newBackend(t, notification.WithClock(func() time.Time { return now }))

		// Due: no schedule at all.
		_, err := backend.Persist(ctx, userInput("u1"))
		require.NoError(t, err)

		// Due: scheduled exactly now.
		in := userInput("u1")
		in.SendAfter = timePtr(now)
		_, err = backend.Persist(ctx, in)
		require.NoError(t, err)

		// Not due yet, still pending.
		in = userInput("u1")
		in.SendAfter = timePtr(now.Add(time.Hour))
		_, err = backend.Persist(ctx, in)
		require.NoError(t, err)

		// Scheduled in the future and already handled: shows up in GetFuture.
		in = userInput("u2")
		in.SendAfter = timePtr(now.Add(2 * time.Hour))
		future, err := backend.Persist(ctx, in)
		require.NoError(t, err)
		require.NoError(t, backend.Cancel(ctx, future.ID))

		return backend
	}

	t.Run("pending includes unscheduled and due", func(t *testing.T) {
		t.Parallel()
		backend := seed(t)

		pending, err := backend.GetPending(ctx, 0, 10)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		for _, n := range pending {
			assert.Equal(t, notification.StatusPendingSend, n.Status)
		}
	})

	t.Run("future excludes pending and uses an exclusive bound", func(t *testing.T) {
		t.Parallel()
		backend := seed(t)

		future, err := backend.GetFuture(ctx, 0, 10)
		require.NoError(t, err)
		require.Len(t, future, 1)
		assert.Equal(t, notification.StatusCancelled, future[0].Status)
	})

	t.Run("future scoped to user", func(t *testing.T) {
		t.Parallel()
		backend := seed(t)

		future, err := backend.GetFutureFromUser(ctx, "u1", 0, 10)
		require.NoError(t, err)
		assert.Empty(t, future, "u1's future record is still pending, so it is excluded")

		future, err = backend.GetFutureFromUser(ctx, "u2", 0, 10)
		require.NoError(t, err)
		assert.Len(t, future, 1)
	})

	t.Run("list from user never returns one-offs", func(t *testing.T) {
		t.Parallel()
		backend, _ := newBackend(t)

		_, err := backend.Persist(ctx, userInput("u1"))
		require.NoError(t, err)
		_, err = backend.Persist(ctx, notification.Input{
			Identity: notification.OneOffIdentity{EmailOrPhone: "a@b.c"},
			Type:     notification.TypeEmail,
		})
		require.NoError(t, err)

		fromUser, err := backend.ListFromUser(ctx, "u1", 0, 10)
		require.NoError(t, err)
		require.Len(t, fromUser, 1)

		oneOff, err := backend.ListOneOff(ctx, 0, 10)
		require.NoError(t, err)
		require.Len(t, oneOff, 1)
		assert.True(t, oneOff[0].IsOneOff())
	})

	t.Run("unread in-app", func(t *testing.T) {
		t.Parallel()
		backend, _ := newBackend(t)

		first, err := backend.Persist(ctx, userInput("u1"))
		require.NoError(t, err)
		second, err := backend.Persist(ctx, userInput("u1"))
		require.NoError(t, err)

		_, err = backend.MarkAsSent(ctx, first.ID, true)
		require.NoError(t, err)
		_, err = backend.MarkAsSent(ctx, second.ID, true)
		require.NoError(t, err)
		_, err = backend.MarkAsRead(ctx, second.ID, true)
		require.NoError(t, err)

		unread, err := backend.FilterUnreadInApp(ctx, "u1", 0, 10)
		require.NoError(t, err)
		require.Len(t, unread, 1)
		assert.Equal(t, first.ID, unread[0].ID)
	})

	t.Run("paging", func(t *testing.T) {
		t.Parallel()
		backend, _ := newBackend(t)

		var ids []string
		for range 5 {
			n, err := backend.Persist(ctx, userInput("u1"))
			require.NoError(t, err)
			ids = append(ids, n.ID)
		}

		page0, err := backend.List(ctx, 0, 2)
		require.NoError(t, err)
		page1, err := backend.List(ctx, 1, 2)
		require.NoError(t, err)
		page2, err := backend.List(ctx, 2, 2)
		require.NoError(t, err)

		got := make([]string, 0, 5)
		for _, n := range append(append(page0, page1...), page2...) {
			got = append(got, n.ID)
		}
		assert.Equal(t, ids, got, "pages cover all records in creation order")
	})

	t.Run("filter expression round trip", func(t *testing.T) {
		t.Parallel()
		backend, _ := newBackend(t)

		sent, err := backend.Persist(ctx, userInput("u1"))
		require.NoError(t, err)
		_, err = backend.MarkAsSent(ctx, sent.ID, true)
		require.NoError(t, err)

		in := userInput("u1")
		in.ContextName = "digest"
		digest, err := backend.Persist(ctx, in)
		require.NoError(t, err)
		_, err = backend.MarkAsFailed(ctx, digest.ID, true)
		require.NoError(t, err)

		_, err = backend.Persist(ctx, userInput("u1"))
		require.NoError(t, err)

		got, err := backend.Filter(ctx, filter.Group{
			And: []filter.Expr{filter.Where{Status: []string{"SENT", "FAILED"}}},
			Not: filter.Where{ContextName: &filter.Match{Value: "digest"}},
		}, 0, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, sent.ID, got[0].ID)
	})
}

func TestBackendContextAndEmail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("store context used", func(t *testing.T) {
		t.Parallel()
		backend, _ := newBackend(t)

		created, err := backend.Persist(ctx, userInput("u1"))
		require.NoError(t, err)

		require.NoError(t, backend.StoreContextUsed(ctx, created.ID, json.RawMessage(`{"name":"Ada"}`)))

		got, err := backend.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"Ada"}`, string(got.ContextUsed))
	})

	t.Run("user email", func(t *testing.T) {
		t.Parallel()
		backend, store := newBackend(t)
		store.SetUserEmail("u1", "ada@example.com")

		created, err := backend.Persist(ctx, userInput("u1"))
		require.NoError(t, err)

		email, err := backend.UserEmail(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", email)
	})

	t.Run("one-off has no user email", func(t *testing.T) {
		t.Parallel()
		backend, _ := newBackend(t)

		created, err := backend.Persist(ctx, notification.Input{
			Identity: notification.OneOffIdentity{EmailOrPhone: "a@b.c"},
			Type:     notification.TypeEmail,
		})
		require.NoError(t, err)

		email, err := backend.UserEmail(ctx, created.ID)
		require.NoError(t, err)
		assert.Empty(t, email)
	})

	t.Run("user email for missing notification", func(t *testing.T) {
		t.Parallel()
		backend, _ := newBackend(t)

		_, err := backend.UserEmail(ctx, "no-such-id")
		require.ErrorIs(t, err, notification.ErrNotFound)
	})
}

func TestBackendPagingBounds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backend, _ := newBackend(t)
	for _, u := range []string{"u1", "u2", "u3"} {
		_, err := backend.Persist(ctx, userInput(u))
		require.NoError(t, err)
	}

	t.Run("negative page reads the first page", func(t *testing.T) {
		t.Parallel()

		got, err := backend.List(ctx, -1, 2)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("negative page size returns everything", func(t *testing.T) {
		t.Parallel()

		got, err := backend.List(ctx, 3, -5)
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("zero page size means no limit", func(t *testing.T) {
		t.Parallel()

		got, err := backend.Filter(ctx, nil, 0, 0)
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})
}
