package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deppfellow/trackr/internal/model"
)

// scriptedRow answers one QueryRow call.
type scriptedRow struct {
	value int64
	err   error
}

func (r scriptedRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int64) = r.value
	return nil
}

// scriptedQuerier replays rows in order and records every statement.
type scriptedQuerier struct {
	rows  []scriptedRow
	sql   []string
	execs []string
}

func (q *scriptedQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.execs = append(q.execs, sql)
	return pgconn.NewCommandTag("DELETE 1"), nil
}

func (q *scriptedQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("unexpected Query")
}

func (q *scriptedQuerier) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	q.sql = append(q.sql, sql)
	row := q.rows[0]
	q.rows = q.rows[1:]
	return row
}

func testEvent() *model.Event {
	return &model.Event{ProjectID: 1, Message: "boom", Level: "error", Received: time.Now()}
}

func TestClaimGroup(t *testing.T) {
	ctx := context.Background()

	t.Run("known hash", func(t *testing.T) {
		q := &scriptedQuerier{rows: []scriptedRow{{value: 9}}}
		id, created, err := claimGroup(ctx, q, testEvent(), "h")
		require.NoError(t, err)
		assert.Equal(t, int64(9), id)
		assert.False(t, created)
		assert.Len(t, q.sql, 1)
	})

	t.Run("new hash", func(t *testing.T) {
		q := &scriptedQuerier{rows: []scriptedRow{
			{err: pgx.ErrNoRows}, // lookup
			{value: 7},           // short id
			{value: 100},         // group
			{value: 100},         // hash claimed
		}}
		id, created, err := claimGroup(ctx, q, testEvent(), "h")
		require.NoError(t, err)
		assert.Equal(t, int64(100), id)
		assert.True(t, created)
		assert.Contains(t, q.sql[3], "ON CONFLICT (project_id, hash) DO NOTHING")
		assert.Empty(t, q.execs)
	})

	t.Run("hash claimed concurrently", func(t *testing.T) {
		q := &scriptedQuerier{rows: []scriptedRow{
			{err: pgx.ErrNoRows},
			{value: 7},
			{value: 100},
			{err: pgx.ErrNoRows}, // conflict, nothing returned
			{value: 55},          // the winner's group
		}}
		id, created, err := claimGroup(ctx, q, testEvent(), "h")
		require.NoError(t, err)
		assert.Equal(t, int64(55), id)
		assert.False(t, created)
		require.Len(t, q.execs, 1)
		assert.True(t, strings.HasPrefix(q.execs[0], "DELETE FROM groups"))
	})
}
