package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/notification/filter"
)

func TestRenderPredicate(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		pred     filter.Predicate
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "compare",
			pred:     filter.Compare{Field: filter.FieldStatus, Op: filter.OpEq, Value: "SENT"},
			wantSQL:  "status = $1",
			wantArgs: []any{"SENT"},
		},
		{
			name:     "compare time",
			pred:     filter.Compare{Field: filter.FieldSendAfter, Op: filter.OpGt, Value: now},
			wantSQL:  "send_after > $1",
			wantArgs: []any{now},
		},
		{
			name:     "membership",
			pred:     filter.In{Field: filter.FieldStatus, Values: []string{"SENT", "FAILED"}},
			wantSQL:  "status = ANY($1)",
			wantArgs: []any{[]string{"SENT", "FAILED"}},
		},
		{
			name:    "is null",
			pred:    filter.IsNull{Field: filter.FieldUserID},
			wantSQL: "user_id IS NULL",
		},
		{
			name: "and with not",
			pred: filter.And{
				filter.Compare{Field: filter.FieldUserID, Op: filter.OpEq, Value: "u1"},
				filter.Not{P: filter.IsNull{Field: filter.FieldSentAt}},
			},
			wantSQL:  "(user_id = $1) AND (NOT (sent_at IS NULL))",
			wantArgs: []any{"u1"},
		},
		{
			name: "or",
			pred: filter.Or{
				filter.IsNull{Field: filter.FieldSendAfter},
				filter.Compare{Field: filter.FieldSendAfter, Op: filter.OpLte, Value: now},
			},
			wantSQL:  "(send_after IS NULL) OR (send_after <= $1)",
			wantArgs: []any{now},
		},
		{
			name:     "exact match",
			pred:     filter.StringMatch{Field: filter.FieldContextName, Lookup: filter.LookupExact, Value: "welcome"},
			wantSQL:  "context_name = $1",
			wantArgs: []any{"welcome"},
		},
		{
			name:     "exact match case insensitive",
			pred:     filter.StringMatch{Field: filter.FieldContextName, Lookup: filter.LookupExact, Value: "Welcome", CaseInsensitive: true},
			wantSQL:  "LOWER(context_name) = LOWER($1)",
			wantArgs: []any{"Welcome"},
		},
		{
			name:     "starts with",
			pred:     filter.StringMatch{Field: filter.FieldTitle, Lookup: filter.LookupStartsWith, Value: "Hi"},
			wantSQL:  "title LIKE $1",
			wantArgs: []any{"Hi%"},
		},
		{
			name:     "includes case insensitive",
			pred:     filter.StringMatch{Field: filter.FieldTitle, Lookup: filter.LookupIncludes, Value: "invoice"},
			wantSQL:  "title LIKE $1",
			wantArgs: []any{"%invoice%"},
		},
		{
			name:     "ends with escapes metacharacters",
			pred:     filter.StringMatch{Field: filter.FieldTitle, Lookup: filter.LookupEndsWith, Value: "100%_done"},
			wantSQL:  "title LIKE $1",
			wantArgs: []any{`%100\%\_done`},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			a := &args{}
			sql, err := renderPredicate(tc.pred, a)
			require.NoError(t, err)
			assert.Equal(t, tc.wantSQL, sql)
			assert.Equal(t, tc.wantArgs, a.values)
		})
	}

	t.Run("ilike for case insensitive lookups", func(t *testing.T) {
		t.Parallel()
		a := &args{}
		sql, err := renderPredicate(filter.StringMatch{
			Field:           filter.FieldTitle,
			Lookup:          filter.LookupIncludes,
			Value:           "Invoice",
			CaseInsensitive: true,
		}, a)
		require.NoError(t, err)
		assert.Equal(t, "title ILIKE $1", sql)
	})

	t.Run("unknown field is rejected", func(t *testing.T) {
		t.Parallel()
		a := &args{}
		_, err := renderPredicate(filter.Compare{Field: filter.Field("evil; DROP TABLE"), Op: filter.OpEq, Value: "x"}, a)
		require.ErrorIs(t, err, ErrUnknownColumn)
	})
}

func TestRenderOrder(t *testing.T) {
	t.Parallel()

	t.Run("default", func(t *testing.T) {
		t.Parallel()
		sql, err := renderOrder(nil)
		require.NoError(t, err)
		assert.Equal(t, "ORDER BY created_at ASC", sql)
	})

	t.Run("multiple directives", func(t *testing.T) {
		t.Parallel()
		sql, err := renderOrder([]notification.Order{
			{Field: filter.FieldStatus},
			{Field: filter.FieldCreatedAt, Desc: true},
		})
		require.NoError(t, err)
		assert.Equal(t, "ORDER BY status ASC, created_at DESC", sql)
	})

	t.Run("unknown field is rejected", func(t *testing.T) {
		t.Parallel()
		_, err := renderOrder([]notification.Order{{Field: filter.Field("bogus")}})
		require.ErrorIs(t, err, ErrUnknownColumn)
	})
}

func TestBuildSet(t *testing.T) {
	t.Parallel()

	t.Run("only set fields are written", func(t *testing.T) {
		t.Parallel()
		a := &args{}
		set := buildSet(notification.UpdateRecord{
			Status: notification.Set(notification.StatusSent),
		}, a)

		assert.Equal(t, "updated_at = now(), status = $1", set)
		assert.Equal(t, []any{"SENT"}, a.values)
	})

	t.Run("set nil pointer writes NULL", func(t *testing.T) {
		t.Parallel()
		a := &args{}
		set := buildSet(notification.UpdateRecord{
			UserID: notification.Set[*string](nil),
		}, a)

		assert.Equal(t, "updated_at = now(), user_id = $1", set)
		require.Len(t, a.values, 1)
		assert.Nil(t, a.values[0])
	})

	t.Run("empty update still touches updated_at", func(t *testing.T) {
		t.Parallel()
		a := &args{}
		set := buildSet(notification.UpdateRecord{}, a)
		assert.Equal(t, "updated_at = now()", set)
		assert.Empty(t, a.values)
	})
}
