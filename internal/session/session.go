// Package session 管理会话目录与每个会话的有序消息列表。
//
// 内存状态是权威来源：加载持久化消息时，若内存中已有该会话的消息
// （例如进行中的轮次已写入），加载结果被丢弃。
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/purpose168/chorus/internal/message"
	"github.com/purpose168/chorus/internal/pubsub"
	"github.com/purpose168/chorus/internal/store"
)

// DefaultTitle 未指定标题时使用的会话标题
const DefaultTitle = "新会话"

var (
	// ErrNotFound 会话不存在
	ErrNotFound = errors.New("会话不存在")
	// ErrMessageNotFound 消息不存在
	ErrMessageNotFound = errors.New("消息不存在")
)

// Session 会话
type Session struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	ProjectPath string `json:"project_path,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// Manager 会话管理器
type Manager struct {
	store  store.Store
	writer *store.Writer

	sessionBroker *pubsub.Broker[Session]
	messageBroker *pubsub.Broker[message.Message]

	mu       sync.Mutex
	order    []string // 最近创建的在前
	sessions map[string]Session
	messages map[string][]message.Message // 仅包含已加载的会话
	active   string
}

// NewManager 创建会话管理器，写入经由 writer 异步持久化
func NewManager(s store.Store, w *store.Writer) *Manager {
	return &Manager{
		store:         s,
		writer:        w,
		sessionBroker: pubsub.NewBroker[Session](),
		messageBroker: pubsub.NewBroker[message.Message](),
		sessions:      make(map[string]Session),
		messages:      make(map[string][]message.Message),
	}
}

// SessionEvents 会话变化的订阅入口
func (m *Manager) SessionEvents() pubsub.Subscriber[Session] { return m.sessionBroker }

// MessageEvents 消息变化的订阅入口
func (m *Manager) MessageEvents() pubsub.Subscriber[message.Message] { return m.messageBroker }

// Shutdown 关闭事件代理
func (m *Manager) Shutdown() {
	m.sessionBroker.Shutdown()
	m.messageBroker.Shutdown()
}

// Load 启动时读取会话目录，只加载活动会话的历史
func (m *Manager) Load(ctx context.Context) error {
	list, err := store.GetJSON[[]Session](ctx, m.store, store.SessionsKey)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("读取会话目录失败: %w", err)
	}
	active, err := store.GetString(ctx, m.store, store.ActiveSessionKey)
	if err != nil {
		slog.Warn("读取活动会话失败", "error", err)
	}

	m.mu.Lock()
	for _, s := range list {
		if _, ok := m.sessions[s.ID]; ok {
			continue
		}
		m.sessions[s.ID] = s
		m.order = append(m.order, s.ID)
	}
	if _, ok := m.sessions[active]; !ok {
		active = ""
		if len(m.order) > 0 {
			active = m.order[0]
		}
	}
	if m.active == "" {
		m.active = active
	}
	active = m.active
	m.mu.Unlock()

	if active == "" {
		return nil
	}
	return m.Ensure(ctx, active)
}

// Create 创建会话并设为活动会话
func (m *Manager) Create(ctx context.Context, title string) (Session, error) {
	now := time.Now().UnixMilli()
	s := Session{
		ID:        uuid.New().String(),
		Title:     normalizeTitle(title),
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.order = slices.Insert(m.order, 0, s.ID)
	m.messages[s.ID] = []message.Message{}
	m.active = s.ID
	m.persistDirectoryLocked()
	m.mu.Unlock()

	m.sessionBroker.Publish(pubsub.CreatedEvent, s)
	return s, nil
}

func normalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return DefaultTitle
	}
	return title
}

// Select 将会话设为活动会话，仅在内存中没有副本时加载持久化消息
func (m *Manager) Select(ctx context.Context, id string) error {
	if err := m.Ensure(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	m.active = id
	m.persistActiveLocked()
	m.mu.Unlock()
	return nil
}

// Ensure 确保会话的消息已加载，不改变活动会话
func (m *Manager) Ensure(ctx context.Context, id string) error {
	m.mu.Lock()
	_, known := m.sessions[id]
	_, loaded := m.messages[id]
	m.mu.Unlock()
	if !known {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if loaded {
		return nil
	}

	msgs, err := store.GetJSON[[]message.Message](ctx, m.store, store.MessagesKey(id))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		// 内存仍是权威来源，读取失败时以空列表继续
		slog.Warn("加载会话消息失败", "session_id", id, "error", err)
		msgs = nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if _, ok := m.messages[id]; ok {
		slog.Debug("内存中已有会话消息，丢弃加载结果", "session_id", id)
		return nil
	}
	if msgs == nil {
		msgs = []message.Message{}
	}
	m.messages[id] = msgs
	return nil
}

// Delete 删除会话及其持久化的消息与用量记录
// 删除活动会话时重新选择第一个剩余会话，没有剩余时清空选择
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.sessions, id)
	delete(m.messages, id)
	m.order = slices.DeleteFunc(m.order, func(v string) bool { return v == id })
	if m.active == id {
		m.active = ""
		if len(m.order) > 0 {
			m.active = m.order[0]
		}
	}
	m.persistDirectoryLocked()
	m.writer.Delete(store.MessagesKey(id))
	m.writer.Delete(store.UsageKey(id))
	active := m.active
	m.mu.Unlock()

	m.sessionBroker.Publish(pubsub.DeletedEvent, s)
	if active != "" {
		if err := m.Ensure(ctx, active); err != nil {
			slog.Warn("加载新的活动会话失败", "session_id", active, "error", err)
		}
	}
	return nil
}

// Rename 修改会话标题
func (m *Manager) Rename(_ context.Context, id, title string) error {
	return m.update(id, func(s *Session) { s.Title = normalizeTitle(title) })
}

// SetProjectPath 设置会话关联的项目路径
func (m *Manager) SetProjectPath(_ context.Context, id, path string) error {
	return m.update(id, func(s *Session) { s.ProjectPath = path })
}

func (m *Manager) update(id string, fn func(*Session)) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	fn(&s)
	s.UpdatedAt = time.Now().UnixMilli()
	m.sessions[id] = s
	m.persistDirectoryLocked()
	m.mu.Unlock()

	m.sessionBroker.Publish(pubsub.UpdatedEvent, s)
	return nil
}

// ClearMessages 清空会话的消息
func (m *Manager) ClearMessages(_ context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.sessions[id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	old := m.messages[id]
	m.messages[id] = []message.Message{}
	m.writer.Delete(store.MessagesKey(id))
	m.mu.Unlock()

	for _, msg := range old {
		m.messageBroker.Publish(pubsub.DeletedEvent, msg.Clone())
	}
	return nil
}

// Get 返回会话
func (m *Manager) Get(id string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// List 按目录顺序返回全部会话
func (m *Manager) List() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Session, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.sessions[id])
	}
	return out
}

// Active 返回活动会话
func (m *Manager) Active() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[m.active]
	return s, ok
}

// Messages 返回会话消息的副本，未加载时返回 nil
func (m *Manager) Messages(id string) []message.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[id]
	if msgs == nil {
		return nil
	}
	out := make([]message.Message, len(msgs))
	for i, msg := range msgs {
		out[i] = msg.Clone()
	}
	return out
}

// AppendMessage 追加消息，会话的消息未加载时视为空列表
func (m *Manager) AppendMessage(sessionID string, msg message.Message) error {
	now := time.Now().UnixMilli()
	if msg.CreatedAt == 0 {
		msg.CreatedAt = now
	}
	msg.UpdatedAt = now
	msg.SessionID = sessionID

	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	m.messages[sessionID] = append(m.messages[sessionID], msg)
	s.UpdatedAt = now
	m.sessions[sessionID] = s
	m.mu.Unlock()

	m.messageBroker.Publish(pubsub.CreatedEvent, msg.Clone())
	return nil
}

// UpdateMessage 原地修改消息
func (m *Manager) UpdateMessage(sessionID, messageID string, fn func(*message.Message)) error {
	m.mu.Lock()
	msgs := m.messages[sessionID]
	idx := slices.IndexFunc(msgs, func(msg message.Message) bool { return msg.ID == messageID })
	if idx < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}
	fn(&msgs[idx])
	msgs[idx].UpdatedAt = time.Now().UnixMilli()
	updated := msgs[idx].Clone()
	m.mu.Unlock()

	m.messageBroker.Publish(pubsub.UpdatedEvent, updated)
	return nil
}

// UpdateParts 替换占位消息的片段列表
func (m *Manager) UpdateParts(sessionID, messageID string, parts []message.Part) error {
	parts = message.CloneParts(parts)
	return m.UpdateMessage(sessionID, messageID, func(msg *message.Message) {
		msg.Parts = parts
	})
}

// PersistMessages 将会话消息排入后台写入
func (m *Manager) PersistMessages(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs, ok := m.messages[sessionID]
	if !ok {
		return
	}
	if _, ok := m.sessions[sessionID]; !ok {
		return
	}
	m.writer.SetJSON(store.MessagesKey(sessionID), msgs)
	m.persistDirectoryLocked()
}

func (m *Manager) persistDirectoryLocked() {
	list := make([]Session, 0, len(m.order))
	for _, id := range m.order {
		list = append(list, m.sessions[id])
	}
	m.writer.SetJSON(store.SessionsKey, list)
	m.persistActiveLocked()
}

func (m *Manager) persistActiveLocked() {
	if m.active == "" {
		m.writer.Delete(store.ActiveSessionKey)
		return
	}
	m.writer.Set(store.ActiveSessionKey, []byte(m.active))
}
