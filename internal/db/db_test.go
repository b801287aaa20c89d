package db

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setupQueries(t *testing.T) (*sql.DB, *Queries) {
	t.Helper()
	conn, err := Connect(t.Context(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	q, err := Prepare(t.Context(), conn)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return conn, q
}

func TestConnect_RequiresDataDir(t *testing.T) {
	t.Parallel()

	_, err := Connect(t.Context(), "")
	require.Error(t, err)
}

func TestKV(t *testing.T) {
	t.Parallel()
	_, q := setupQueries(t)
	ctx := t.Context()

	_, err := q.GetValue(ctx, "sessions")
	require.True(t, errors.Is(err, sql.ErrNoRows))

	require.NoError(t, q.SetValue(ctx, SetValueParams{Key: "sessions", Value: []byte(`[]`)}))
	require.NoError(t, q.SetValue(ctx, SetValueParams{Key: "sessions", Value: []byte(`[1]`)}))
	require.NoError(t, q.SetValue(ctx, SetValueParams{Key: "messages:a", Value: []byte(`x`)}))
	require.NoError(t, q.SetValue(ctx, SetValueParams{Key: "messages:b", Value: []byte(`y`)}))

	v, err := q.GetValue(ctx, "sessions")
	require.NoError(t, err)
	require.Equal(t, `[1]`, string(v))

	keys, err := q.ListKeysByPrefix(ctx, "messages:")
	require.NoError(t, err)
	require.Equal(t, []string{"messages:a", "messages:b"}, keys)

	require.NoError(t, q.DeleteValue(ctx, "sessions"))
	_, err = q.GetValue(ctx, "sessions")
	require.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestCheckpoints_CascadeDelete(t *testing.T) {
	t.Parallel()
	conn, q := setupQueries(t)
	ctx := t.Context()

	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	qtx := q.WithTx(tx)

	cp, err := qtx.CreateCheckpoint(ctx, CreateCheckpointParams{
		ID:        "cp1",
		SessionID: "s1",
		MessageID: "m1",
		Label:     "fix the bug",
		CreatedAt: time.Now().UnixMilli(),
	})
	require.NoError(t, err)
	require.Equal(t, "cp1", cp.ID)

	require.NoError(t, qtx.CreateCheckpointFile(ctx, CreateCheckpointFileParams{
		CheckpointID: "cp1", Path: "a.py", Existed: 1, Content: []byte("print(1)"), Hash: "h",
	}))
	require.NoError(t, tx.Commit())

	files, err := q.ListCheckpointFiles(ctx, "cp1")
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "a.py", files[0].Path)

	list, err := q.ListCheckpointsBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, q.DeleteSessionCheckpoints(ctx, "s1"))
	files, err = q.ListCheckpointFiles(ctx, "cp1")
	require.NoError(t, err)
	require.Empty(t, files)
}
