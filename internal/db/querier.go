// 本文件由 sqlc 自动生成。请勿手动编辑。
// 版本信息:
//   sqlc v1.30.0

package db

import (
	"context"
)

// Querier 定义了数据库查询接口
type Querier interface {
	CreateCheckpoint(ctx context.Context, arg CreateCheckpointParams) (Checkpoint, error)
	CreateCheckpointFile(ctx context.Context, arg CreateCheckpointFileParams) error
	DeleteCheckpoint(ctx context.Context, arg DeleteCheckpointParams) error
	DeleteSessionCheckpoints(ctx context.Context, sessionID string) error
	DeleteValue(ctx context.Context, key string) error
	GetCheckpoint(ctx context.Context, arg GetCheckpointParams) (Checkpoint, error)
	GetValue(ctx context.Context, key string) ([]byte, error)
	ListCheckpointFiles(ctx context.Context, checkpointID string) ([]CheckpointFile, error)
	ListCheckpointsBySession(ctx context.Context, sessionID string) ([]Checkpoint, error)
	ListKeysByPrefix(ctx context.Context, prefix string) ([]string, error)
	SetValue(ctx context.Context, arg SetValueParams) error
}

var _ Querier = (*Queries)(nil)
