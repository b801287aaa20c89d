// 由 sqlc 自动生成的代码。请勿编辑。
// 版本信息:
//   sqlc v1.30.0
// 源文件: checkpoints.sql

package db

import (
	"context"
)

const createCheckpoint = `-- name: CreateCheckpoint :one
INSERT INTO checkpoints (
    id,
    session_id,
    message_id,
    label,
    project_path,
    created_at
) VALUES (
    ?, ?, ?, ?, ?, ?
) RETURNING id, session_id, message_id, label, project_path, created_at
`

type CreateCheckpointParams struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id"`
	MessageID   string `json:"message_id"`
	Label       string `json:"label"`
	ProjectPath string `json:"project_path"`
	CreatedAt   int64  `json:"created_at"`
}

func (q *Queries) CreateCheckpoint(ctx context.Context, arg CreateCheckpointParams) (Checkpoint, error) {
	row := q.queryRow(ctx, q.createCheckpointStmt, createCheckpoint,
		arg.ID,
		arg.SessionID,
		arg.MessageID,
		arg.Label,
		arg.ProjectPath,
		arg.CreatedAt,
	)
	var i Checkpoint
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.MessageID,
		&i.Label,
		&i.ProjectPath,
		&i.CreatedAt,
	)
	return i, err
}

const createCheckpointFile = `-- name: CreateCheckpointFile :exec
INSERT INTO checkpoint_files (
    checkpoint_id,
    path,
    existed,
    content,
    hash,
    skipped
) VALUES (
    ?, ?, ?, ?, ?, ?
)
`

type CreateCheckpointFileParams struct {
	CheckpointID string `json:"checkpoint_id"`
	Path         string `json:"path"`
	Existed      int64  `json:"existed"`
	Content      []byte `json:"content"`
	Hash         string `json:"hash"`
	Skipped      string `json:"skipped"`
}

func (q *Queries) CreateCheckpointFile(ctx context.Context, arg CreateCheckpointFileParams) error {
	_, err := q.exec(ctx, q.createCheckpointFileStmt, createCheckpointFile,
		arg.CheckpointID,
		arg.Path,
		arg.Existed,
		arg.Content,
		arg.Hash,
		arg.Skipped,
	)
	return err
}

const deleteCheckpoint = `-- name: DeleteCheckpoint :exec
DELETE FROM checkpoints
WHERE id = ? AND session_id = ?
`

type DeleteCheckpointParams struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
}

func (q *Queries) DeleteCheckpoint(ctx context.Context, arg DeleteCheckpointParams) error {
	_, err := q.exec(ctx, q.deleteCheckpointStmt, deleteCheckpoint, arg.ID, arg.SessionID)
	return err
}

const deleteSessionCheckpoints = `-- name: DeleteSessionCheckpoints :exec
DELETE FROM checkpoints
WHERE session_id = ?
`

func (q *Queries) DeleteSessionCheckpoints(ctx context.Context, sessionID string) error {
	_, err := q.exec(ctx, q.deleteSessionCheckpointsStmt, deleteSessionCheckpoints, sessionID)
	return err
}

const getCheckpoint = `-- name: GetCheckpoint :one
SELECT id, session_id, message_id, label, project_path, created_at
FROM checkpoints
WHERE id = ? AND session_id = ? LIMIT 1
`

type GetCheckpointParams struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
}

func (q *Queries) GetCheckpoint(ctx context.Context, arg GetCheckpointParams) (Checkpoint, error) {
	row := q.queryRow(ctx, q.getCheckpointStmt, getCheckpoint, arg.ID, arg.SessionID)
	var i Checkpoint
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.MessageID,
		&i.Label,
		&i.ProjectPath,
		&i.CreatedAt,
	)
	return i, err
}

const listCheckpointFiles = `-- name: ListCheckpointFiles :many
SELECT checkpoint_id, path, existed, content, hash, skipped
FROM checkpoint_files
WHERE checkpoint_id = ?
ORDER BY path ASC
`

func (q *Queries) ListCheckpointFiles(ctx context.Context, checkpointID string) ([]CheckpointFile, error) {
	rows, err := q.query(ctx, q.listCheckpointFilesStmt, listCheckpointFiles, checkpointID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []CheckpointFile{}
	for rows.Next() {
		var i CheckpointFile
		if err := rows.Scan(
			&i.CheckpointID,
			&i.Path,
			&i.Existed,
			&i.Content,
			&i.Hash,
			&i.Skipped,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listCheckpointsBySession = `-- name: ListCheckpointsBySession :many
SELECT id, session_id, message_id, label, project_path, created_at
FROM checkpoints
WHERE session_id = ?
ORDER BY created_at ASC, id ASC
`

func (q *Queries) ListCheckpointsBySession(ctx context.Context, sessionID string) ([]Checkpoint, error) {
	rows, err := q.query(ctx, q.listCheckpointsBySessionStmt, listCheckpointsBySession, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Checkpoint{}
	for rows.Next() {
		var i Checkpoint
		if err := rows.Scan(
			&i.ID,
			&i.SessionID,
			&i.MessageID,
			&i.Label,
			&i.ProjectPath,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
