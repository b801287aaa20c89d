package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/purpose168/chorus/internal/db"
	"github.com/purpose168/chorus/internal/message"
	"github.com/stretchr/testify/require"
)

func toolCall(name string, args map[string]any) message.Message {
	return message.Message{
		Role:  message.Assistant,
		Parts: []message.Part{message.ToolCall{ID: name, Name: name, Args: args}},
	}
}

func TestTouchedPaths(t *testing.T) {
	t.Parallel()

	history := []message.Message{
		{Role: message.User, Parts: []message.Part{message.TextContent{Text: "改一下"}}},
		toolCall("read_file", map[string]any{"path": "ignored.go"}),
		toolCall("write_file", map[string]any{"path": "a.go"}),
		toolCall("edit", map[string]any{"file_path": "b.go"}),
		toolCall("move_file", map[string]any{"source": "c.go", "destination": "d.go"}),
		toolCall("replace_in_file", map[string]any{"path": "a.go"}),
		toolCall("delete_file", map[string]any{"path": 42}),
	}

	require.Equal(t, []string{"a.go", "b.go", "c.go", "d.go"}, TouchedPaths(history))
	require.Empty(t, TouchedPaths(nil))
}

func TestLabel(t *testing.T) {
	t.Parallel()

	require.Equal(t, "修复登录 bug", Label("  修复登录   bug\n详细说明"))
	long := "把所有的处理函数都改成使用上下文参数并且补充对应的单元测试以及文档说明，确保兼容旧版本接口"
	got := Label(long)
	require.Equal(t, []rune(long)[:40], []rune(got)[:40])
	require.Equal(t, "…", string([]rune(got)[40:]))
}

func TestCoordinator_BeforeTurn(t *testing.T) {
	t.Parallel()

	mem := NewMemory()
	c := NewCoordinator(mem)
	defer c.Shutdown()
	ctx := t.Context()

	history := []message.Message{toolCall("write", map[string]any{"path": "main.go"})}
	cp, err := c.BeforeTurn(ctx, "s1", "m1", "/proj", "加个功能", history)
	require.NoError(t, err)
	require.Equal(t, "m1", cp.MessageID)
	require.Equal(t, []File{{Path: "main.go", Existed: true}}, cp.Files)

	empty, err := c.BeforeTurn(ctx, "s1", "m2", "/proj", "再来", nil)
	require.NoError(t, err)
	require.Empty(t, empty.Files)

	list, err := c.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.Equal(t, 1, c.Restore(ctx, "s1", cp.ID).Restored)
	require.NoError(t, c.Delete(ctx, "s1", cp.ID))
	require.NotEmpty(t, c.Restore(ctx, "s1", cp.ID).Errors)

	require.NoError(t, c.DeleteSession(ctx, "s1"))
	list, err = c.List(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, list)
}

func newDBBackend(t *testing.T) *DBBackend {
	t.Helper()
	conn, err := db.Connect(t.Context(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	q, err := db.Prepare(t.Context(), conn)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return NewDBBackend(conn, q)
}

func TestDBBackend_RestoreRoundTrip(t *testing.T) {
	t.Parallel()

	b := newDBBackend(t)
	ctx := t.Context()
	proj := t.TempDir()

	write := func(name, content string) {
		require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(proj, name)), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(proj, name), []byte(content), 0o644))
	}
	read := func(name string) string {
		data, err := os.ReadFile(filepath.Join(proj, name))
		require.NoError(t, err)
		return string(data)
	}

	write("same.go", "package same")
	write("changed.go", "package original")
	write("sub/deleted.go", "package deleted")

	cp, err := b.Create(ctx, CreateParams{
		SessionID:   "s1",
		MessageID:   "m1",
		Label:       "快照",
		ProjectPath: proj,
		Paths:       []string{"same.go", "changed.go", "sub/deleted.go", "new.go"},
	})
	require.NoError(t, err)
	require.Equal(t, []File{
		{Path: "same.go", Existed: true},
		{Path: "changed.go", Existed: true},
		{Path: "sub/deleted.go", Existed: true},
		{Path: "new.go", Existed: false},
	}, cp.Files)

	write("changed.go", "package modified")
	require.NoError(t, os.RemoveAll(filepath.Join(proj, "sub")))
	write("new.go", "package created")

	res := b.Restore(ctx, "s1", cp.ID)
	require.Empty(t, res.Errors)
	require.Equal(t, 3, res.Restored)

	require.Equal(t, "package same", read("same.go"))
	require.Equal(t, "package original", read("changed.go"))
	require.Equal(t, "package deleted", read("sub/deleted.go"))
	_, err = os.Stat(filepath.Join(proj, "new.go"))
	require.True(t, os.IsNotExist(err))

	// 再次恢复没有可变更的文件
	require.Equal(t, 0, b.Restore(ctx, "s1", cp.ID).Restored)
}

func TestDBBackend_OversizedFileListedAndReported(t *testing.T) {
	t.Parallel()

	b := newDBBackend(t)
	ctx := t.Context()
	proj := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(proj, "big.bin"), make([]byte, maxSnapshotSize+1), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(proj, "small.go"), []byte("package small"), 0o644))

	cp, err := b.Create(ctx, CreateParams{
		SessionID:   "s1",
		MessageID:   "m1",
		Label:       "大文件",
		ProjectPath: proj,
		Paths:       []string{"big.bin", "small.go"},
	})
	require.NoError(t, err)
	require.Len(t, cp.Files, 2)
	require.Equal(t, "big.bin", cp.Files[0].Path)
	require.True(t, cp.Files[0].Existed)
	require.NotEmpty(t, cp.Files[0].Skipped)
	require.Empty(t, cp.Files[1].Skipped)

	list, err := b.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, cp.Files, list[0].Files)

	require.NoError(t, os.WriteFile(filepath.Join(proj, "small.go"), []byte("package changed"), 0o644))
	res := b.Restore(ctx, "s1", cp.ID)
	require.Equal(t, 1, res.Restored)
	require.Len(t, res.Errors, 1)
	require.Equal(t, "big.bin", res.Errors[0].Path)

	info, err := os.Stat(filepath.Join(proj, "big.bin"))
	require.NoError(t, err)
	require.Equal(t, int64(maxSnapshotSize+1), info.Size())
}

func TestDBBackend_ListAndDelete(t *testing.T) {
	t.Parallel()

	b := newDBBackend(t)
	ctx := t.Context()

	cp1, err := b.Create(ctx, CreateParams{SessionID: "s1", MessageID: "m1", Label: "一"})
	require.NoError(t, err)
	_, err = b.Create(ctx, CreateParams{SessionID: "s1", MessageID: "m2", Label: "二"})
	require.NoError(t, err)
	_, err = b.Create(ctx, CreateParams{SessionID: "s2", MessageID: "m3", Label: "三"})
	require.NoError(t, err)

	list, err := b.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.NoError(t, b.Delete(ctx, "s1", cp1.ID))
	require.NotEmpty(t, b.Restore(ctx, "s1", cp1.ID).Errors)

	require.NoError(t, b.DeleteSession(ctx, "s1"))
	list, err = b.List(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, list)

	list, err = b.List(ctx, "s2")
	require.NoError(t, err)
	require.Len(t, list, 1)
}
