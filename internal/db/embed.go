package db

import "embed"

// FS 嵌入的迁移脚本，由 goose 在 Connect 时执行
//
//go:embed migrations/*.sql
var FS embed.FS
