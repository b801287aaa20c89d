// 由 sqlc 自动生成的代码。请勿编辑。
// 版本信息:
//   sqlc v1.30.0
// 源文件: kv.sql

package db

import (
	"context"
)

const deleteValue = `-- name: DeleteValue :exec
DELETE FROM kv
WHERE key = ?
`

func (q *Queries) DeleteValue(ctx context.Context, key string) error {
	_, err := q.exec(ctx, q.deleteValueStmt, deleteValue, key)
	return err
}

const getValue = `-- name: GetValue :one
SELECT value
FROM kv
WHERE key = ? LIMIT 1
`

func (q *Queries) GetValue(ctx context.Context, key string) ([]byte, error) {
	row := q.queryRow(ctx, q.getValueStmt, getValue, key)
	var value []byte
	err := row.Scan(&value)
	return value, err
}

const listKeysByPrefix = `-- name: ListKeysByPrefix :many
SELECT key
FROM kv
WHERE key LIKE ? || '%'
ORDER BY key
`

func (q *Queries) ListKeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := q.query(ctx, q.listKeysByPrefixStmt, listKeysByPrefix, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		items = append(items, key)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const setValue = `-- name: SetValue :exec
INSERT INTO kv (key, value, updated_at)
VALUES (?, ?, strftime('%s', 'now'))
ON CONFLICT (key) DO UPDATE SET
    value = excluded.value,
    updated_at = excluded.updated_at
`

type SetValueParams struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

func (q *Queries) SetValue(ctx context.Context, arg SetValueParams) error {
	_, err := q.exec(ctx, q.setValueStmt, setValue, arg.Key, arg.Value)
	return err
}
