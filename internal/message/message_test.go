package message

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMessage_JSONKeepsPartOrder(t *testing.T) {
	t.Parallel()

	msg := Message{
		ID:        "m1",
		SessionID: "s1",
		Role:      Assistant,
		Parts: []Part{
			TextContent{Text: ""},
			ToolCall{ID: "c1", Name: "write_file", Args: map[string]any{"path": "a.py"}, Status: ToolCallRunning},
			ToolResult{ToolCallID: "c1", Name: "write_file", Success: true, Output: "ok"},
			TextContent{Text: "Done."},
			ThinkingContent{Steps: []string{"plan"}, Duration: 2 * time.Second, IsComplete: true},
			ReasoningContent{Content: "because", IsComplete: true},
			ImageContent{URL: "https://example.com/a.png", MIMEType: "image/png"},
		},
		Model: "gpt-4o",
		Plan:  "1. edit",
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var got Message
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, msg, got)
}

func TestUnmarshalParts_UnknownType(t *testing.T) {
	t.Parallel()

	_, err := UnmarshalParts([]byte(`[{"type":"finish","data":{}}]`))
	require.Error(t, err)
}

func TestHasContent(t *testing.T) {
	t.Parallel()

	require.False(t, HasContent([]Part{TextContent{Text: "  "}, ThinkingContent{Steps: []string{"x"}}}))
	require.True(t, HasContent([]Part{TextContent{}, ToolResult{ToolCallID: "c"}}))
	require.True(t, HasContent([]Part{TextContent{Text: "hi"}}))
}

func TestClone_DoesNotShareArgs(t *testing.T) {
	t.Parallel()

	orig := Message{Parts: []Part{ToolCall{ID: "c", Args: map[string]any{"path": "a"}}}}
	cp := orig.Clone()
	cp.Parts[0].(ToolCall).Args["path"] = "b"

	require.Equal(t, "a", orig.Parts[0].(ToolCall).Args["path"])
}

func TestFileContext(t *testing.T) {
	t.Parallel()

	require.Empty(t, FileContext([]Attachment{{FilePath: "x.png", MimeType: "image/png"}}))

	got := FileContext([]Attachment{
		{FilePath: "main.py", MimeType: "text/x-python", Content: []byte("print(1)")},
	})
	require.Contains(t, got, "<file path='main.py'>")
	require.Contains(t, got, "print(1)")
}
