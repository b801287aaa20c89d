package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/purpose168/chorus/internal/db"
)

// SQLite 基于 kv 表的 Store 实现
type SQLite struct {
	q db.Querier
}

// NewSQLite 使用给定的查询集创建存储
func NewSQLite(q db.Querier) *SQLite {
	return &SQLite{q: q}
}

// Get 实现 Store
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.q.GetValue(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

// Set 实现 Store
func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		return s.q.DeleteValue(ctx, key)
	}
	return s.q.SetValue(ctx, db.SetValueParams{Key: key, Value: value})
}

// Keys 列出带指定前缀的键
func (s *SQLite) Keys(ctx context.Context, prefix string) ([]string, error) {
	return s.q.ListKeysByPrefix(ctx, prefix)
}
