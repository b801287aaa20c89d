package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/purpose168/chorus/internal/db"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetNilClears(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := t.Context()

	require.NoError(t, m.Set(ctx, ActiveModelKey, []byte("gpt-4o")))
	v, err := GetString(ctx, m, ActiveModelKey)
	require.NoError(t, err)
	require.Equal(t, "gpt-4o", v)

	require.NoError(t, m.Set(ctx, ActiveModelKey, nil))
	_, err = m.Get(ctx, ActiveModelKey)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite(t *testing.T) {
	t.Parallel()

	conn, err := db.Connect(t.Context(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	s := NewSQLite(db.New(conn))
	ctx := t.Context()

	_, err = s.Get(ctx, SessionsKey)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, SessionsKey, []byte(`[{"id":"a"}]`)))
	type entry struct {
		ID string `json:"id"`
	}
	got, err := GetJSON[[]entry](ctx, s, SessionsKey)
	require.NoError(t, err)
	require.Equal(t, []entry{{ID: "a"}}, got)

	require.NoError(t, s.Set(ctx, MessagesKey("a"), []byte(`[]`)))
	keys, err := s.Keys(ctx, "messages:")
	require.NoError(t, err)
	require.Equal(t, []string{"messages:a"}, keys)

	require.NoError(t, s.Set(ctx, SessionsKey, nil))
	_, err = s.Get(ctx, SessionsKey)
	require.ErrorIs(t, err, ErrNotFound)
}

// recordingStore 记录写入顺序
type recordingStore struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingStore) Get(context.Context, string) ([]byte, error) { return nil, ErrNotFound }

func (r *recordingStore) Set(_ context.Context, key string, _ []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	return nil
}

func TestWriter_OrderedAndFlushed(t *testing.T) {
	t.Parallel()

	rec := &recordingStore{}
	w := NewWriter(rec)
	defer w.Close()

	var want []string
	for i := range 100 {
		key := fmt.Sprintf("k%03d", i)
		want = append(want, key)
		w.Set(key, []byte("v"))
	}
	require.NoError(t, w.Flush(t.Context()))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Equal(t, want, rec.keys)
}

func TestWriter_FailuresAreNotFatal(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	m.FailSets(true)
	w := NewWriter(m)

	w.SetJSON(UsageKey("s1"), map[string]int{"total": 1})
	require.NoError(t, w.Flush(t.Context()))

	m.FailSets(false)
	w.SetJSON(UsageKey("s1"), map[string]int{"total": 2})
	w.Close()

	got, err := GetJSON[map[string]int](t.Context(), m, UsageKey("s1"))
	require.NoError(t, err)
	require.Equal(t, 2, got["total"])

	// 关闭后的写入被丢弃，Flush 立即返回
	w.Set("late", []byte("x"))
	require.NoError(t, w.Flush(t.Context()))
	_, err = m.Get(t.Context(), "late")
	require.True(t, errors.Is(err, ErrNotFound))
}
