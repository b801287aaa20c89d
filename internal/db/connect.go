package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
)

// FileName 数据目录中的数据库文件名
const FileName = "chorus.db"

// Connect 打开数据目录中的 SQLite 数据库并运行迁移
func Connect(ctx context.Context, dataDir string) (*sql.DB, error) {
	if dataDir == "" {
		return nil, errors.New("data_directory 未设置")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	db, err := openDB(filepath.Join(dataDir, FileName))
	if err != nil {
		return nil, err
	}

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(FS)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		slog.Error("设置方言失败", "error", err)
		return fmt.Errorf("设置方言失败: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		slog.Error("应用迁移失败", "error", err)
		return fmt.Errorf("应用迁移失败: %w", err)
	}
	return nil
}

// pragma 两种驱动共用的连接参数
type pragma struct {
	name  string
	value string
}

var pragmas = []pragma{
	{"foreign_keys", "on"},
	{"journal_mode", "WAL"},
	{"page_size", "4096"},
	{"cache_size", "-8000"},
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
}
