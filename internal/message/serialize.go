package message

import (
	"encoding/json"
	"fmt"
)

type partType string

const (
	textType       partType = "text"
	toolCallType   partType = "tool_call"
	toolResultType partType = "tool_result"
	thinkingType   partType = "thinking"
	reasoningType  partType = "reasoning"
	imageType      partType = "image"
)

type partWrapper struct {
	Type partType `json:"type"`
	Data Part     `json:"data"`
}

// MarshalParts 将片段列表序列化为带类型标签的 JSON
func MarshalParts(parts []Part) ([]byte, error) {
	wrapped := make([]partWrapper, len(parts))
	for i, part := range parts {
		var typ partType
		switch part.(type) {
		case TextContent:
			typ = textType
		case ToolCall:
			typ = toolCallType
		case ToolResult:
			typ = toolResultType
		case ThinkingContent:
			typ = thinkingType
		case ReasoningContent:
			typ = reasoningType
		case ImageContent:
			typ = imageType
		default:
			return nil, fmt.Errorf("未知的内容片段类型: %T", part)
		}
		wrapped[i] = partWrapper{Type: typ, Data: part}
	}
	return json.Marshal(wrapped)
}

// UnmarshalParts 解析 MarshalParts 的输出
func UnmarshalParts(data []byte) ([]Part, error) {
	var raw []struct {
		Type partType        `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	parts := make([]Part, 0, len(raw))
	for _, w := range raw {
		var (
			part Part
			err  error
		)
		switch w.Type {
		case textType:
			part, err = decode[TextContent](w.Data)
		case toolCallType:
			part, err = decode[ToolCall](w.Data)
		case toolResultType:
			part, err = decode[ToolResult](w.Data)
		case thinkingType:
			part, err = decode[ThinkingContent](w.Data)
		case reasoningType:
			part, err = decode[ReasoningContent](w.Data)
		case imageType:
			part, err = decode[ImageContent](w.Data)
		default:
			return nil, fmt.Errorf("未知的内容片段类型: %s", w.Type)
		}
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return parts, nil
}

func decode[T Part](data json.RawMessage) (Part, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

type messageJSON struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Role      Role            `json:"role"`
	Parts     json.RawMessage `json:"parts"`
	Model     string          `json:"model,omitempty"`
	Provider  string          `json:"provider,omitempty"`
	Plan      string          `json:"plan,omitempty"`
	CreatedAt int64           `json:"created_at"`
	UpdatedAt int64           `json:"updated_at"`
}

// MarshalJSON 实现 json.Marshaler
func (m Message) MarshalJSON() ([]byte, error) {
	parts, err := MarshalParts(m.Parts)
	if err != nil {
		return nil, err
	}
	return json.Marshal(messageJSON{
		ID:        m.ID,
		SessionID: m.SessionID,
		Role:      m.Role,
		Parts:     parts,
		Model:     m.Model,
		Provider:  m.Provider,
		Plan:      m.Plan,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	})
}

// UnmarshalJSON 实现 json.Unmarshaler
func (m *Message) UnmarshalJSON(data []byte) error {
	var mj messageJSON
	if err := json.Unmarshal(data, &mj); err != nil {
		return err
	}
	var parts []Part
	if len(mj.Parts) > 0 && string(mj.Parts) != "null" {
		var err error
		if parts, err = UnmarshalParts(mj.Parts); err != nil {
			return fmt.Errorf("解析消息 %s 的内容片段失败: %w", mj.ID, err)
		}
	}
	*m = Message{
		ID:        mj.ID,
		SessionID: mj.SessionID,
		Role:      mj.Role,
		Parts:     parts,
		Model:     mj.Model,
		Provider:  mj.Provider,
		Plan:      mj.Plan,
		CreatedAt: mj.CreatedAt,
		UpdatedAt: mj.UpdatedAt,
	}
	return nil
}
