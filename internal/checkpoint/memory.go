package checkpoint

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound 检查点不存在
var ErrNotFound = errors.New("检查点不存在")

// Memory 只记录元数据的内存后端，恢复时不触碰文件系统
type Memory struct {
	mu          sync.Mutex
	checkpoints map[string][]Checkpoint
	failCreate  error
}

var (
	_ Backend        = (*Memory)(nil)
	_ SessionDeleter = (*Memory)(nil)
)

// NewMemory 创建内存后端
func NewMemory() *Memory {
	return &Memory{checkpoints: make(map[string][]Checkpoint)}
}

// FailCreate 使后续 Create 返回 err，传入 nil 恢复正常
func (m *Memory) FailCreate(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCreate = err
}

func (m *Memory) Create(_ context.Context, params CreateParams) (Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return Checkpoint{}, m.failCreate
	}
	cp := Checkpoint{
		ID:          uuid.New().String(),
		SessionID:   params.SessionID,
		MessageID:   params.MessageID,
		Label:       params.Label,
		ProjectPath: params.ProjectPath,
		CreatedAt:   time.Now().UnixMilli(),
	}
	for _, p := range params.Paths {
		cp.Files = append(cp.Files, File{Path: p, Existed: true})
	}
	m.checkpoints[params.SessionID] = append(m.checkpoints[params.SessionID], cp)
	return cp, nil
}

func (m *Memory) List(_ context.Context, sessionID string) ([]Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.checkpoints[sessionID]), nil
}

func (m *Memory) Restore(_ context.Context, sessionID, checkpointID string) RestoreResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cp := range m.checkpoints[sessionID] {
		if cp.ID == checkpointID {
			return RestoreResult{Restored: len(cp.Files)}
		}
	}
	return RestoreResult{Errors: []FileError{{Message: ErrNotFound.Error()}}}
}

func (m *Memory) Delete(_ context.Context, sessionID, checkpointID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.checkpoints[sessionID]
	idx := slices.IndexFunc(list, func(cp Checkpoint) bool { return cp.ID == checkpointID })
	if idx < 0 {
		return ErrNotFound
	}
	m.checkpoints[sessionID] = slices.Delete(list, idx, idx+1)
	return nil
}

func (m *Memory) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checkpoints, sessionID)
	return nil
}
