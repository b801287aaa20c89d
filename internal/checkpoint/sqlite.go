package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/purpose168/chorus/internal/db"
	"github.com/zeebo/xxh3"
)

// maxSnapshotSize 超过该大小的文件不做快照
const maxSnapshotSize = 8 << 20

// DBBackend 基于 SQLite 的检查点后端，保存文件内容与 xxh3 哈希
type DBBackend struct {
	conn *sql.DB
	q    *db.Queries
}

var (
	_ Backend        = (*DBBackend)(nil)
	_ SessionDeleter = (*DBBackend)(nil)
)

// NewDBBackend 创建 SQLite 后端
func NewDBBackend(conn *sql.DB, q *db.Queries) *DBBackend {
	return &DBBackend{conn: conn, q: q}
}

func hashOf(content []byte) string {
	return strconv.FormatUint(xxh3.Hash(content), 16)
}

func resolvePath(projectPath, path string) string {
	if filepath.IsAbs(path) || projectPath == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(projectPath, path)
}

// Create 在一个事务内写入检查点及其文件快照
func (b *DBBackend) Create(ctx context.Context, params CreateParams) (Checkpoint, error) {
	tx, err := b.conn.BeginTx(ctx, nil)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	qtx := b.q.WithTx(tx)

	row, err := qtx.CreateCheckpoint(ctx, db.CreateCheckpointParams{
		ID:          uuid.New().String(),
		SessionID:   params.SessionID,
		MessageID:   params.MessageID,
		Label:       params.Label,
		ProjectPath: params.ProjectPath,
		CreatedAt:   time.Now().UnixMilli(),
	})
	if err != nil {
		return Checkpoint{}, fmt.Errorf("创建检查点失败: %w", err)
	}

	cp := fromDB(row)
	for _, path := range params.Paths {
		content, err := os.ReadFile(resolvePath(params.ProjectPath, path))
		existed := true
		var skipped string
		switch {
		case errors.Is(err, fs.ErrNotExist):
			existed = false
			content = nil
		case err != nil:
			slog.Warn("读取文件失败，跳过快照", "path", path, "error", err)
			skipped = fmt.Sprintf("读取失败: %v", err)
			content = nil
		case len(content) > maxSnapshotSize:
			slog.Warn("文件过大，跳过快照", "path", path, "size", len(content))
			skipped = fmt.Sprintf("文件过大 (%d 字节)", len(content))
			content = nil
		}

		var existedInt int64
		if existed {
			existedInt = 1
		}
		if err := qtx.CreateCheckpointFile(ctx, db.CreateCheckpointFileParams{
			CheckpointID: cp.ID,
			Path:         path,
			Existed:      existedInt,
			Content:      content,
			Hash:         hashOf(content),
			Skipped:      skipped,
		}); err != nil {
			return Checkpoint{}, fmt.Errorf("保存文件快照 %s 失败: %w", path, err)
		}
		cp.Files = append(cp.Files, File{Path: path, Existed: existed, Skipped: skipped})
	}

	if err := tx.Commit(); err != nil {
		return Checkpoint{}, fmt.Errorf("提交事务失败: %w", err)
	}
	return cp, nil
}

// List 列出会话的检查点（含文件列表）
func (b *DBBackend) List(ctx context.Context, sessionID string) ([]Checkpoint, error) {
	rows, err := b.q.ListCheckpointsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]Checkpoint, 0, len(rows))
	for _, row := range rows {
		cp := fromDB(row)
		files, err := b.q.ListCheckpointFiles(ctx, cp.ID)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			cp.Files = append(cp.Files, File{Path: f.Path, Existed: f.Existed == 1, Skipped: f.Skipped})
		}
		out = append(out, cp)
	}
	return out, nil
}

// Restore 恢复检查点
// 内容哈希未变的文件跳过，变化的重写，快照时不存在的删除
func (b *DBBackend) Restore(ctx context.Context, sessionID, checkpointID string) RestoreResult {
	var res RestoreResult
	row, err := b.q.GetCheckpoint(ctx, db.GetCheckpointParams{ID: checkpointID, SessionID: sessionID})
	if err != nil {
		res.Errors = append(res.Errors, FileError{Message: fmt.Sprintf("读取检查点失败: %v", err)})
		return res
	}
	files, err := b.q.ListCheckpointFiles(ctx, checkpointID)
	if err != nil {
		res.Errors = append(res.Errors, FileError{Message: fmt.Sprintf("读取快照文件失败: %v", err)})
		return res
	}

	for _, f := range files {
		if ctx.Err() != nil {
			res.Errors = append(res.Errors, FileError{Path: f.Path, Message: ctx.Err().Error()})
			continue
		}
		if f.Skipped != "" {
			res.Errors = append(res.Errors, FileError{Path: f.Path, Message: "快照时未保存内容: " + f.Skipped})
			continue
		}
		changed, err := restoreFile(resolvePath(row.ProjectPath, f.Path), f)
		if err != nil {
			res.Errors = append(res.Errors, FileError{Path: f.Path, Message: err.Error()})
			continue
		}
		if changed {
			res.Restored++
		}
	}
	return res
}

func restoreFile(abs string, f db.CheckpointFile) (bool, error) {
	if f.Existed == 0 {
		err := os.Remove(abs)
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("删除文件失败: %w", err)
		}
		return true, nil
	}

	if current, err := os.ReadFile(abs); err == nil && hashOf(current) == f.Hash {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return false, fmt.Errorf("创建目录失败: %w", err)
	}
	if err := os.WriteFile(abs, f.Content, 0o644); err != nil {
		return false, fmt.Errorf("写入文件失败: %w", err)
	}
	return true, nil
}

// Delete 删除检查点，文件快照级联删除
func (b *DBBackend) Delete(ctx context.Context, sessionID, checkpointID string) error {
	return b.q.DeleteCheckpoint(ctx, db.DeleteCheckpointParams{ID: checkpointID, SessionID: sessionID})
}

// DeleteSession 删除会话的全部检查点
func (b *DBBackend) DeleteSession(ctx context.Context, sessionID string) error {
	return b.q.DeleteSessionCheckpoints(ctx, sessionID)
}

func fromDB(row db.Checkpoint) Checkpoint {
	return Checkpoint{
		ID:          row.ID,
		SessionID:   row.SessionID,
		MessageID:   row.MessageID,
		Label:       row.Label,
		ProjectPath: row.ProjectPath,
		CreatedAt:   row.CreatedAt,
	}
}
