// 由 sqlc 自动生成的代码。请勿编辑。
// 版本信息:
//   sqlc v1.30.0

package db

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX 定义数据库事务接口
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Prepare 预编译所有 SQL 查询语句并返回 Queries 实例
func Prepare(ctx context.Context, db DBTX) (*Queries, error) {
	q := Queries{db: db}
	var err error
	if q.createCheckpointStmt, err = db.PrepareContext(ctx, createCheckpoint); err != nil {
		return nil, fmt.Errorf("准备查询 CreateCheckpoint 时出错: %w", err)
	}
	if q.createCheckpointFileStmt, err = db.PrepareContext(ctx, createCheckpointFile); err != nil {
		return nil, fmt.Errorf("准备查询 CreateCheckpointFile 时出错: %w", err)
	}
	if q.deleteCheckpointStmt, err = db.PrepareContext(ctx, deleteCheckpoint); err != nil {
		return nil, fmt.Errorf("准备查询 DeleteCheckpoint 时出错: %w", err)
	}
	if q.deleteSessionCheckpointsStmt, err = db.PrepareContext(ctx, deleteSessionCheckpoints); err != nil {
		return nil, fmt.Errorf("准备查询 DeleteSessionCheckpoints 时出错: %w", err)
	}
	if q.deleteValueStmt, err = db.PrepareContext(ctx, deleteValue); err != nil {
		return nil, fmt.Errorf("准备查询 DeleteValue 时出错: %w", err)
	}
	if q.getCheckpointStmt, err = db.PrepareContext(ctx, getCheckpoint); err != nil {
		return nil, fmt.Errorf("准备查询 GetCheckpoint 时出错: %w", err)
	}
	if q.getValueStmt, err = db.PrepareContext(ctx, getValue); err != nil {
		return nil, fmt.Errorf("准备查询 GetValue 时出错: %w", err)
	}
	if q.listCheckpointFilesStmt, err = db.PrepareContext(ctx, listCheckpointFiles); err != nil {
		return nil, fmt.Errorf("准备查询 ListCheckpointFiles 时出错: %w", err)
	}
	if q.listCheckpointsBySessionStmt, err = db.PrepareContext(ctx, listCheckpointsBySession); err != nil {
		return nil, fmt.Errorf("准备查询 ListCheckpointsBySession 时出错: %w", err)
	}
	if q.listKeysByPrefixStmt, err = db.PrepareContext(ctx, listKeysByPrefix); err != nil {
		return nil, fmt.Errorf("准备查询 ListKeysByPrefix 时出错: %w", err)
	}
	if q.setValueStmt, err = db.PrepareContext(ctx, setValue); err != nil {
		return nil, fmt.Errorf("准备查询 SetValue 时出错: %w", err)
	}
	return &q, nil
}

// Close 关闭所有预编译的 SQL 语句
func (q *Queries) Close() error {
	var err error
	for name, stmt := range map[string]*sql.Stmt{
		"createCheckpointStmt":         q.createCheckpointStmt,
		"createCheckpointFileStmt":     q.createCheckpointFileStmt,
		"deleteCheckpointStmt":         q.deleteCheckpointStmt,
		"deleteSessionCheckpointsStmt": q.deleteSessionCheckpointsStmt,
		"deleteValueStmt":              q.deleteValueStmt,
		"getCheckpointStmt":            q.getCheckpointStmt,
		"getValueStmt":                 q.getValueStmt,
		"listCheckpointFilesStmt":      q.listCheckpointFilesStmt,
		"listCheckpointsBySessionStmt": q.listCheckpointsBySessionStmt,
		"listKeysByPrefixStmt":         q.listKeysByPrefixStmt,
		"setValueStmt":                 q.setValueStmt,
	} {
		if stmt == nil {
			continue
		}
		if cerr := stmt.Close(); cerr != nil {
			err = fmt.Errorf("关闭 %s 时出错: %w", name, cerr)
		}
	}
	return err
}

func (q *Queries) exec(ctx context.Context, stmt *sql.Stmt, query string, args ...interface{}) (sql.Result, error) {
	switch {
	case stmt != nil && q.tx != nil:
		return q.tx.StmtContext(ctx, stmt).ExecContext(ctx, args...)
	case stmt != nil:
		return stmt.ExecContext(ctx, args...)
	default:
		return q.db.ExecContext(ctx, query, args...)
	}
}

func (q *Queries) query(ctx context.Context, stmt *sql.Stmt, query string, args ...interface{}) (*sql.Rows, error) {
	switch {
	case stmt != nil && q.tx != nil:
		return q.tx.StmtContext(ctx, stmt).QueryContext(ctx, args...)
	case stmt != nil:
		return stmt.QueryContext(ctx, args...)
	default:
		return q.db.QueryContext(ctx, query, args...)
	}
}

func (q *Queries) queryRow(ctx context.Context, stmt *sql.Stmt, query string, args ...interface{}) *sql.Row {
	switch {
	case stmt != nil && q.tx != nil:
		return q.tx.StmtContext(ctx, stmt).QueryRowContext(ctx, args...)
	case stmt != nil:
		return stmt.QueryRowContext(ctx, args...)
	default:
		return q.db.QueryRowContext(ctx, query, args...)
	}
}

// Queries 封装所有数据库查询操作
type Queries struct {
	db                           DBTX
	tx                           *sql.Tx
	createCheckpointStmt         *sql.Stmt
	createCheckpointFileStmt     *sql.Stmt
	deleteCheckpointStmt         *sql.Stmt
	deleteSessionCheckpointsStmt *sql.Stmt
	deleteValueStmt              *sql.Stmt
	getCheckpointStmt            *sql.Stmt
	getValueStmt                 *sql.Stmt
	listCheckpointFilesStmt      *sql.Stmt
	listCheckpointsBySessionStmt *sql.Stmt
	listKeysByPrefixStmt         *sql.Stmt
	setValueStmt                 *sql.Stmt
}

// WithTx 返回与指定事务关联的 Queries 实例
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{
		db:                           tx,
		tx:                           tx,
		createCheckpointStmt:         q.createCheckpointStmt,
		createCheckpointFileStmt:     q.createCheckpointFileStmt,
		deleteCheckpointStmt:         q.deleteCheckpointStmt,
		deleteSessionCheckpointsStmt: q.deleteSessionCheckpointsStmt,
		deleteValueStmt:              q.deleteValueStmt,
		getCheckpointStmt:            q.getCheckpointStmt,
		getValueStmt:                 q.getValueStmt,
		listCheckpointFilesStmt:      q.listCheckpointFilesStmt,
		listCheckpointsBySessionStmt: q.listCheckpointsBySessionStmt,
		listKeysByPrefixStmt:         q.listKeysByPrefixStmt,
		setValueStmt:                 q.setValueStmt,
	}
}
